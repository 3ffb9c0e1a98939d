package canvas

import (
	"image"
	"sync"

	"github.com/openclaw/inkdash/internal/eink"
)

const (
	bannerScale  = 2
	bannerMargin = 8
)

// Banner shows a one-line notice in the bottom-left corner over whatever
// is on screen and puts the covered pixels back when hidden.
type Banner struct {
	mu       sync.Mutex
	renderer *Renderer
	text     string
	under    *image.Gray
}

func NewBanner(renderer *Renderer, text string) *Banner {
	return &Banner{renderer: renderer, text: text}
}

// Show draws the banner and waits for the panel to finish the update.
func (b *Banner) Show() eink.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.under != nil {
		return eink.RectFromImage(b.under.Bounds())
	}
	size := b.renderer.TextSize(b.text, bannerScale)
	bounds := b.renderer.Bounds()
	y := bounds.Max.Y - size.Y - bannerMargin
	if y < 0 {
		y = 0
	}
	b.under = b.renderer.Save(eink.Rect{
		Top:    uint32(y),
		Left:   bannerMargin,
		Width:  uint32(size.X),
		Height: uint32(size.Y),
	})
	return b.renderer.DrawText(y, bannerMargin, Black, bannerScale, b.text, eink.RefreshAndWait)
}

// Hide restores the content the banner covered.
func (b *Banner) Hide() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.under == nil {
		return
	}
	b.renderer.Restore(b.under, eink.Refresh)
	b.under = nil
}
