package ui

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openclaw/inkdash/internal/eink"
)

// Action names a function registered in a Registry.
type Action string

type ActionFunc func(ctx context.Context, elem *Element, y, x int)

// Handler is an activation record: tapping the region it is bound to runs
// Action with Element.
type Handler struct {
	Action  Action
	Element *Element
}

type ActiveRegion struct {
	Rect    eink.Rect
	Handler Handler
}

type Registry struct {
	mu      sync.RWMutex
	actions map[Action]ActionFunc
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[Action]ActionFunc)}
}

func (r *Registry) Register(action Action, fn ActionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action] = fn
}

func (r *Registry) Lookup(action Action) (ActionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.actions[action]
	return fn, ok
}

// Regions is the active region table. Lookups take a read lock; Create
// and Remove are exclusive.
type Regions struct {
	mu       sync.RWMutex
	regions  []ActiveRegion
	registry *Registry
	logger   zerolog.Logger
}

func NewRegions(registry *Registry, logger zerolog.Logger) *Regions {
	return &Regions{registry: registry, logger: logger}
}

// Find returns the first region containing (y, x).
func (r *Regions) Find(y, x int) (ActiveRegion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexAt(y, x)
	if idx < 0 {
		return ActiveRegion{}, false
	}
	return r.regions[idx], true
}

// Create adds a region for handler. A zero-area rect could never be hit
// or removed by point, so it is not recorded.
func (r *Regions) Create(top, left, height, width int, handler Handler) {
	if height <= 0 || width <= 0 {
		return
	}
	region := ActiveRegion{
		Rect: eink.Rect{
			Top:    uint32(top),
			Left:   uint32(left),
			Width:  uint32(width),
			Height: uint32(height),
		},
		Handler: handler,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions = append(r.regions, region)
}

// Remove drops the region containing (top, left), if any.
func (r *Regions) Remove(top, left int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexAt(top, left)
	if idx < 0 {
		return
	}
	r.regions = append(r.regions[:idx], r.regions[idx+1:]...)
}

// RemoveElement drops every region bound to elem.
func (r *Regions) RemoveElement(elem *Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.regions[:0]
	for _, region := range r.regions {
		if region.Handler.Element != elem {
			kept = append(kept, region)
		}
	}
	for i := len(kept); i < len(r.regions); i++ {
		r.regions[i] = ActiveRegion{}
	}
	r.regions = kept
}

func (r *Regions) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regions = nil
}

func (r *Regions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regions)
}

// Dispatch runs the action bound to the region under (y, x). The table
// lock is released before the action runs so the action may redraw.
func (r *Regions) Dispatch(ctx context.Context, y, x int) bool {
	region, ok := r.Find(y, x)
	if !ok {
		return false
	}
	fn, ok := r.registry.Lookup(region.Handler.Action)
	if !ok {
		r.logger.Warn().Str("action", string(region.Handler.Action)).Msg("no function registered for action")
		return false
	}
	fn(ctx, region.Handler.Element, y, x)
	return true
}

func (r *Regions) indexAt(y, x int) int {
	for i := range r.regions {
		if r.regions[i].Rect.Contains(y, x) {
			return i
		}
	}
	return -1
}
