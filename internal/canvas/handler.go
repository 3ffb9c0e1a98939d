package canvas

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclaw/inkdash/internal/eink"
	"github.com/openclaw/inkdash/internal/ui"
)

// EmitAction forwards a tap on an element to the gateway.
const EmitAction ui.Action = "emit"

var (
	ErrUnknownElement = errors.New("unknown element")
	ErrUnknownCommand = errors.New("unknown ui command")
)

type ActionSender interface {
	SendEvent(ctx context.Context, method string, params interface{}) error
}

type InvokeRequest struct {
	Command string
	Args    json.RawMessage
}

// ElementSpec is the wire form of an element pushed with ui.put.
type ElementSpec struct {
	ID      string `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Scale   int    `json:"scale,omitempty"`
	Gray    *uint8 `json:"gray,omitempty"`
	Image   string `json:"image,omitempty"`
	Refresh string `json:"refresh,omitempty"`
	Action  bool   `json:"action,omitempty"`
}

type RefreshSpec struct {
	Full     bool       `json:"full,omitempty"`
	Region   *eink.Rect `json:"region,omitempty"`
	Mode     string     `json:"mode,omitempty"`
	Waveform string     `json:"waveform,omitempty"`
	Wait     bool       `json:"wait,omitempty"`
	Marker   uint32     `json:"marker,omitempty"`
}

type sceneElement struct {
	elem    *ui.Element
	handler *ui.Handler
}

// Handler owns the scene: the named elements pushed by the gateway, the
// active region table they register into, and the actions taps trigger.
type Handler struct {
	mu        sync.Mutex
	renderer  *Renderer
	refresher Refresher
	regions   *ui.Regions
	app       *ui.App
	elements  map[string]*sceneElement
	ids       map[*ui.Element]string
	sender    ActionSender
	logger    zerolog.Logger
}

func NewHandler(renderer *Renderer, sender ActionSender, logger zerolog.Logger) *Handler {
	registry := ui.NewRegistry()
	regions := ui.NewRegions(registry, logger)
	h := &Handler{
		renderer:  renderer,
		refresher: renderer.refresher,
		regions:   regions,
		app: &ui.App{
			Painter:   renderer,
			Refresher: renderer.refresher,
			Regions:   regions,
		},
		elements: make(map[string]*sceneElement),
		ids:      make(map[*ui.Element]string),
		sender:   sender,
		logger:   logger,
	}
	registry.Register(EmitAction, h.emit)
	return h
}

func (h *Handler) HandleInvoke(ctx context.Context, req InvokeRequest) (interface{}, error) {
	switch req.Command {
	case "ui.put":
		var spec ElementSpec
		if err := json.Unmarshal(req.Args, &spec); err != nil {
			return nil, err
		}
		return h.Put(spec)
	case "ui.remove":
		var args struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(req.Args, &args); err != nil {
			return nil, err
		}
		return nil, h.Remove(args.ID)
	case "ui.clear":
		h.Clear()
		return nil, nil
	case "ui.refresh":
		var spec RefreshSpec
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &spec); err != nil {
				return nil, err
			}
		}
		return h.refresh(spec)
	case "ui.list":
		return h.List(), nil
	case "ui.snapshot":
		var args struct {
			Region *eink.Rect `json:"region,omitempty"`
		}
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				return nil, err
			}
		}
		region := eink.InvalidRect
		if args.Region != nil {
			region = *args.Region
		}
		return h.renderer.Snapshot(region)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command)
	}
}

func (h *Handler) HandleInvokeRequest(ctx context.Context, req InvokeRequest) (interface{}, error) {
	req.Command = strings.TrimSpace(req.Command)
	return h.HandleInvoke(ctx, req)
}

// Put creates or updates the element named by spec.ID and draws it.
func (h *Handler) Put(spec ElementSpec) (map[string]interface{}, error) {
	if spec.ID == "" {
		return nil, errors.New("element id required")
	}
	content, err := decodeContent(spec)
	if err != nil {
		return nil, err
	}
	policy, err := parseRefreshPolicy(spec.Refresh)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	se, ok := h.elements[spec.ID]
	if !ok {
		se = &sceneElement{elem: ui.NewElement(spec.X, spec.Y, policy, content)}
		h.elements[spec.ID] = se
		h.ids[se.elem] = spec.ID
	} else {
		se.elem.Update(spec.X, spec.Y, policy, content)
	}
	if spec.Action && se.handler == nil {
		se.handler = &ui.Handler{Action: EmitAction, Element: se.elem}
		// Draw only moves regions when the rect changes, so register the
		// current one for an element that was already on screen.
		if rect, drawn := se.elem.LastDrawn(); drawn {
			h.regions.Create(int(rect.Top), int(rect.Left), int(rect.Height), int(rect.Width), *se.handler)
		}
	} else if !spec.Action && se.handler != nil {
		se.handler = nil
		h.regions.RemoveElement(se.elem)
	}
	handler := se.handler
	h.mu.Unlock()

	se.elem.Draw(h.app, handler)
	rect, _ := se.elem.LastDrawn()
	return map[string]interface{}{"id": spec.ID, "rect": rect}, nil
}

// Remove blanks the element's last drawn area and forgets it.
func (h *Handler) Remove(id string) error {
	h.mu.Lock()
	se, ok := h.elements[id]
	if ok {
		delete(h.elements, id)
		delete(h.ids, se.elem)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownElement, id)
	}
	h.regions.RemoveElement(se.elem)
	if rect, drawn := se.elem.LastDrawn(); drawn {
		h.renderer.FillRect(rect, ui.Background)
		h.refresher.PartialRefresh(rect, eink.PartialAsync, eink.WaveformModeDU, eink.TempUseRemarkableDraw, eink.DitherPassthrough, 0)
	}
	return nil
}

func (h *Handler) Clear() {
	h.mu.Lock()
	h.elements = make(map[string]*sceneElement)
	h.ids = make(map[*ui.Element]string)
	h.mu.Unlock()
	h.regions.Reset()
	h.renderer.Clear()
}

func (h *Handler) List() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sortedIDs()
}

func (h *Handler) sortedIDs() []string {
	ids := make([]string, 0, len(h.elements))
	for id := range h.elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Handler) refresh(spec RefreshSpec) (map[string]interface{}, error) {
	waveform := eink.WaveformModeGC16
	if spec.Waveform != "" {
		parsed, err := eink.ParseWaveformMode(spec.Waveform)
		if err != nil {
			return nil, err
		}
		waveform = parsed
	}
	if spec.Marker != 0 {
		collision := h.refresher.WaitRefreshComplete(spec.Marker)
		return map[string]interface{}{"marker": spec.Marker, "collision": collision}, nil
	}
	if spec.Full || spec.Region == nil {
		marker := h.refresher.FullRefresh(waveform, eink.TempUseAmbient, eink.DitherPassthrough, 0, spec.Wait)
		return map[string]interface{}{"marker": marker}, nil
	}
	mode, err := parsePartialMode(spec.Mode)
	if err != nil {
		return nil, err
	}
	result := h.refresher.PartialRefresh(*spec.Region, mode, waveform, eink.TempUseRemarkableDraw, eink.DitherPassthrough, 0)
	if mode == eink.PartialAsync {
		return map[string]interface{}{"marker": result}, nil
	}
	return map[string]interface{}{"collision": result}, nil
}

// HandleTouch dispatches a tap to the active region under it.
func (h *Handler) HandleTouch(ctx context.Context, x, y int) bool {
	return h.regions.Dispatch(ctx, y, x)
}

func (h *Handler) emit(ctx context.Context, elem *ui.Element, y, x int) {
	h.mu.Lock()
	id, ok := h.ids[elem]
	h.mu.Unlock()
	if !ok || h.sender == nil {
		return
	}
	payload := map[string]interface{}{
		"id":   id,
		"x":    x,
		"y":    y,
		"time": time.Now().UnixMilli(),
	}
	if err := h.sender.SendEvent(ctx, "ui.action", payload); err != nil {
		h.logger.Warn().Err(err).Str("id", id).Msg("failed to send ui action")
	}
}

func decodeContent(spec ElementSpec) (ui.Content, error) {
	switch spec.Type {
	case "text":
		fg := Black
		if spec.Gray != nil {
			fg = color.Gray{Y: *spec.Gray}
		}
		return ui.Text{Text: spec.Text, Scale: spec.Scale, Foreground: fg}, nil
	case "image":
		raw, err := base64.StdEncoding.DecodeString(spec.Image)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return ui.Image{Img: img}, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown element type %q", spec.Type)
	}
}

func parseRefreshPolicy(name string) (eink.RefreshPolicy, error) {
	switch name {
	case "", "refresh":
		return eink.Refresh, nil
	case "none":
		return eink.NoRefresh, nil
	case "wait":
		return eink.RefreshAndWait, nil
	default:
		return 0, fmt.Errorf("unknown refresh policy %q", name)
	}
}

func parsePartialMode(name string) (eink.PartialRefreshMode, error) {
	switch name {
	case "", "async":
		return eink.PartialAsync, nil
	case "wait":
		return eink.PartialWait, nil
	case "dry-run":
		return eink.PartialDryRun, nil
	default:
		return 0, fmt.Errorf("unknown partial refresh mode %q", name)
	}
}
