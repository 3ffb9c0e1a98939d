// Package ui redraws on-screen elements with minimal refreshes and keeps
// the active region table in step with what is visible.
package ui

import (
	"image"
	"image/color"
	"sync"

	"github.com/openclaw/inkdash/internal/eink"
)

// Painter rasterizes into the framebuffer. Draw calls return the area they
// touched and apply the refresh policy themselves.
type Painter interface {
	FillRect(rect eink.Rect, c color.Gray)
	DrawText(y, x int, c color.Gray, scale int, text string, policy eink.RefreshPolicy) eink.Rect
	DrawImage(img image.Image, y, x int, policy eink.RefreshPolicy) eink.Rect
}

type Refresher interface {
	PartialRefresh(region eink.Rect, mode eink.PartialRefreshMode, waveform eink.WaveformMode, temp eink.DisplayTemp, dither eink.DitherMode, quantBit int32) uint32
}

type RegionTable interface {
	Find(y, x int) (ActiveRegion, bool)
	Create(top, left, height, width int, handler Handler)
	Remove(top, left int)
}

// App is what an element needs to draw itself.
type App struct {
	Painter   Painter
	Refresher Refresher
	Regions   RegionTable
}

var Background = color.Gray{Y: 0xFF}

// Content is one of Text or Image. A nil Content draws nothing.
type Content interface {
	content()
}

type Text struct {
	Text       string
	Scale      int
	Foreground color.Gray
}

type Image struct {
	Img image.Image
}

func (Text) content()  {}
func (Image) content() {}

// Element is a piece of content anchored at (X, Y). Handlers may hold a
// reference to it while it is redrawn, so all access goes through its lock.
type Element struct {
	mu        sync.RWMutex
	x, y      int
	refresh   eink.RefreshPolicy
	content   Content
	lastDrawn *eink.Rect
}

func NewElement(x, y int, refresh eink.RefreshPolicy, content Content) *Element {
	return &Element{x: x, y: y, refresh: refresh, content: content}
}

// LastDrawn returns the rectangle covered by the previous Draw.
func (e *Element) LastDrawn() (eink.Rect, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastDrawn == nil {
		return eink.InvalidRect, false
	}
	return *e.lastDrawn, true
}

// Update changes what the next Draw renders. The last drawn rectangle is
// kept so Draw can clear it.
func (e *Element) Update(x, y int, refresh eink.RefreshPolicy, content Content) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.x, e.y = x, y
	e.refresh = refresh
	e.content = content
}

// Draw clears the previously drawn area, renders the current content and
// moves the element's active region when handler is set.
func (e *Element) Draw(app *App, handler *Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	x, y := e.x, e.y
	old := eink.InvalidRect
	if e.lastDrawn != nil {
		old = *e.lastDrawn
		app.Painter.FillRect(old, Background)

		// Refreshing a spot we are about to draw over again only flashes
		// a blank frame.
		if old.Top != uint32(y) && old.Left != uint32(x) {
			app.Refresher.PartialRefresh(old, eink.PartialWait, eink.WaveformModeDU,
				eink.TempUseRemarkableDraw, eink.DitherPassthrough, 0)
		}
	}

	var rect eink.Rect
	switch c := e.content.(type) {
	case Text:
		rect = app.Painter.DrawText(y, x, c.Foreground, c.Scale, c.Text, e.refresh)
	case Image:
		rect = app.Painter.DrawImage(c.Img, y, x, e.refresh)
	default:
		return
	}

	if old != rect && handler != nil {
		if old.Valid() {
			app.Regions.Remove(int(old.Top), int(old.Left))
		}
		if _, ok := app.Regions.Find(y, x); !ok {
			app.Regions.Create(int(rect.Top), int(rect.Left), int(rect.Height), int(rect.Width), *handler)
		}
	}

	e.lastDrawn = &rect
}
