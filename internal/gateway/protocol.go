package gateway

import (
	"encoding/json"
)

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type Envelope struct {
	ID     *json.RawMessage `json:"id,omitempty"`
	Method string           `json:"method,omitempty"`
	Params json.RawMessage  `json:"params,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *RPCError        `json:"error,omitempty"`
}

type InvokeRequestParams struct {
	RequestID string          `json:"requestId,omitempty"`
	Command   string          `json:"command"`
	Args      json.RawMessage `json:"args,omitempty"`
}

type InvokeResultParams struct {
	RequestID string      `json:"requestId,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     *RPCError   `json:"error,omitempty"`
}

// PanelInfo describes the display the node drives.
type PanelInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	ID     string `json:"id,omitempty"`
}

type NodeRegistration struct {
	Role     string     `json:"role"`
	Name     string     `json:"name,omitempty"`
	Caps     []string   `json:"caps"`
	Commands []string   `json:"commands"`
	Panel    *PanelInfo `json:"panel,omitempty"`
}

const (
	methodRegister      = "node.register"
	methodInvokeRequest = "node.invoke.request"
	methodInvokeResult  = "node.invoke.result"
)

func DefaultRegistration(name string, panel *PanelInfo) NodeRegistration {
	return NodeRegistration{
		Role:  "node",
		Name:  name,
		Caps:  []string{"eink", "touch"},
		Panel: panel,
		Commands: []string{
			"ui.put",
			"ui.remove",
			"ui.clear",
			"ui.list",
			"ui.refresh",
			"ui.snapshot",
		},
	}
}
