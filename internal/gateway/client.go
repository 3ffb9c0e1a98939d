package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrNoConnection = errors.New("gateway: no connection")

const (
	writeTimeout = 5 * time.Second
	readTimeout  = 90 * time.Second
	maxBackoff   = 30 * time.Second
)

type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type InvokeHandler func(ctx context.Context, req InvokeRequestParams) (interface{}, error)

// wsConn is the part of *websocket.Conn the client uses.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (int, []byte, error)
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

type Config struct {
	URL          string
	Header       http.Header
	Dialer       DialContextFunc
	Logger       zerolog.Logger
	Register     NodeRegistration
	OnInvoke     InvokeHandler
	PingInterval time.Duration
}

// Client keeps a websocket session with the gateway open, answers invoke
// requests and pushes events.
type Client struct {
	url          string
	header       http.Header
	dialer       DialContextFunc
	logger       zerolog.Logger
	register     NodeRegistration
	onInvoke     InvokeHandler
	pingInterval time.Duration

	connMu     sync.Mutex
	conn       wsConn
	writeMu    sync.Mutex
	requestSeq atomic.Uint64
}

func New(cfg Config) *Client {
	interval := cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Client{
		url:          cfg.URL,
		header:       cfg.Header,
		dialer:       cfg.Dialer,
		logger:       cfg.Logger,
		register:     cfg.Register,
		onInvoke:     cfg.OnInvoke,
		pingInterval: interval,
	}
}

// Run connects and serves until ctx is done, reconnecting with exponential
// backoff.
func (c *Client) Run(ctx context.Context) error {
	if c.dialer == nil {
		return errors.New("gateway: dialer required")
	}
	if c.onInvoke == nil {
		return errors.New("gateway: invoke handler required")
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("gateway connect failed")
			if err := sleepContext(ctx, backoff); err != nil {
				return err
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		c.setConn(conn)
		if err := c.serve(ctx, conn); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("gateway session ended")
		}
		c.closeConn()
	}
}

func (c *Client) serve(ctx context.Context, conn wsConn) error {
	if err := c.registerNode(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)
	return c.readLoop(ctx, conn)
}

func (c *Client) SendEvent(ctx context.Context, method string, params interface{}) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return c.send(Envelope{Method: method, Params: payload})
}

func (c *Client) send(env Envelope) error {
	conn := c.getConn()
	if conn == nil {
		return ErrNoConnection
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.write(conn, websocket.TextMessage, data)
}

func (c *Client) write(conn wsConn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(messageType, data)
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		NetDialContext:   c.dialer,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(8 << 20)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	return conn, nil
}

func (c *Client) registerNode(ctx context.Context) error {
	params, err := json.Marshal(c.register)
	if err != nil {
		return err
	}
	id := json.RawMessage(strconv.Quote(c.nextID()))
	return c.send(Envelope{ID: &id, Method: methodRegister, Params: params})
}

func (c *Client) pingLoop(ctx context.Context, conn wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("gateway ping failed")
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn wsConn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("gateway: invalid message")
			continue
		}
		switch {
		case env.Method == methodInvokeRequest:
			// Waiting refreshes can block on the panel; keep reading so
			// pongs still extend the deadline.
			go func(env Envelope) {
				if err := c.handleInvoke(ctx, env); err != nil {
					c.logger.Warn().Err(err).Msg("gateway: invoke handler error")
				}
			}(env)
		case env.Error != nil:
			c.logger.Warn().Int("code", env.Error.Code).Str("message", env.Error.Message).Msg("gateway: error response")
		}
	}
}

func (c *Client) handleInvoke(ctx context.Context, env Envelope) error {
	var params InvokeRequestParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		return err
	}
	c.logger.Debug().Str("command", params.Command).Str("requestId", params.RequestID).Msg("gateway invoke")
	result, err := c.onInvoke(ctx, params)
	if env.ID != nil {
		return c.respondRPC(env.ID, result, err)
	}
	return c.respondEvent(params.RequestID, result, err)
}

func (c *Client) respondRPC(id *json.RawMessage, result interface{}, err error) error {
	env := Envelope{ID: id}
	if err != nil {
		env.Error = &RPCError{Code: 1, Message: err.Error()}
		return c.send(env)
	}
	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return marshalErr
	}
	env.Result = raw
	return c.send(env)
}

func (c *Client) respondEvent(requestID string, result interface{}, err error) error {
	params := InvokeResultParams{RequestID: requestID}
	if err != nil {
		params.Error = &RPCError{Code: 1, Message: err.Error()}
	} else {
		params.Result = result
	}
	payload, marshalErr := json.Marshal(params)
	if marshalErr != nil {
		return marshalErr
	}
	return c.send(Envelope{Method: methodInvokeResult, Params: payload})
}

func (c *Client) nextID() string {
	return strconv.FormatUint(c.requestSeq.Add(1), 10)
}

func (c *Client) getConn() wsConn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) setConn(conn wsConn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
