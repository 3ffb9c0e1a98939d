package canvas

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/openclaw/inkdash/internal/eink"
)

type Refresher interface {
	FullRefresh(waveform eink.WaveformMode, temp eink.DisplayTemp, dither eink.DitherMode, quantBit int32, wait bool) uint32
	PartialRefresh(region eink.Rect, mode eink.PartialRefreshMode, waveform eink.WaveformMode, temp eink.DisplayTemp, dither eink.DitherMode, quantBit int32) uint32
	WaitRefreshComplete(marker uint32) uint32
}

var (
	White = color.Gray{Y: 0xFF}
	Black = color.Gray{Y: 0x00}
)

// Renderer draws into framebuffer memory and refreshes what it drew.
type Renderer struct {
	mu        sync.Mutex
	img       *image.Gray
	refresher Refresher
	face      font.Face
}

func NewRenderer(img *image.Gray, refresher Refresher) *Renderer {
	return &Renderer{
		img:       img,
		refresher: refresher,
		face:      basicfont.Face7x13,
	}
}

func (r *Renderer) Bounds() image.Rectangle {
	return r.img.Bounds()
}

// Clear paints the whole surface white and waits for a full GC16 refresh.
func (r *Renderer) Clear() uint32 {
	r.mu.Lock()
	draw.Draw(r.img, r.img.Bounds(), image.NewUniform(White), image.Point{}, draw.Src)
	r.mu.Unlock()
	return r.refresher.FullRefresh(eink.WaveformModeGC16, eink.TempUseAmbient, eink.DitherPassthrough, 0, true)
}

func (r *Renderer) FillRect(rect eink.Rect, c color.Gray) {
	if !rect.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	dst := rect.Image().Intersect(r.img.Bounds())
	draw.Draw(r.img, dst, image.NewUniform(c), image.Point{}, draw.Src)
}

// DrawText renders text with its top-left corner at (x, y), each glyph
// pixel scaled up to a scale x scale block.
func (r *Renderer) DrawText(y, x int, c color.Gray, scale int, text string, policy eink.RefreshPolicy) eink.Rect {
	if scale < 1 {
		scale = 1
	}
	mask := r.textMask(text, scale)
	origin := image.Pt(x, y)

	r.mu.Lock()
	dst := mask.Bounds().Add(origin).Intersect(r.img.Bounds())
	if !dst.Empty() {
		draw.DrawMask(r.img, dst, image.NewUniform(c), image.Point{}, mask, dst.Min.Sub(origin), draw.Over)
	}
	r.mu.Unlock()

	rect := touched(dst, y, x)
	r.apply(rect, policy)
	return rect
}

func (r *Renderer) DrawImage(img image.Image, y, x int, policy eink.RefreshPolicy) eink.Rect {
	if img == nil {
		return eink.Rect{Top: uint32(y), Left: uint32(x)}
	}
	src := img.Bounds()
	origin := image.Pt(x, y)

	r.mu.Lock()
	dst := image.Rectangle{Max: src.Size()}.Add(origin).Intersect(r.img.Bounds())
	if !dst.Empty() {
		draw.Draw(r.img, dst, img, src.Min.Add(dst.Min.Sub(origin)), draw.Src)
	}
	r.mu.Unlock()

	rect := touched(dst, y, x)
	r.apply(rect, policy)
	return rect
}

func (r *Renderer) textMask(text string, scale int) *image.Alpha {
	metrics := r.face.Metrics()
	d := &font.Drawer{Face: r.face}
	width := d.MeasureString(text).Ceil()
	height := (metrics.Ascent + metrics.Descent).Ceil()
	if text == "" || width <= 0 {
		return image.NewAlpha(image.Rectangle{})
	}

	glyphs := image.NewAlpha(image.Rect(0, 0, width, height))
	d.Dst = glyphs
	d.Src = image.Opaque
	d.Dot = fixed.P(0, metrics.Ascent.Ceil())
	d.DrawString(text)
	if scale == 1 {
		return glyphs
	}

	scaled := image.NewAlpha(image.Rect(0, 0, width*scale, height*scale))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), glyphs, glyphs.Bounds(), draw.Src, nil)
	return scaled
}

func (r *Renderer) apply(rect eink.Rect, policy eink.RefreshPolicy) {
	if rect.Empty() {
		return
	}
	switch policy {
	case eink.Refresh:
		r.refresher.PartialRefresh(rect, eink.PartialAsync, eink.WaveformModeGC16Fast, eink.TempUseRemarkableDraw, eink.DitherPassthrough, 0)
	case eink.RefreshAndWait:
		r.refresher.PartialRefresh(rect, eink.PartialWait, eink.WaveformModeGC16Fast, eink.TempUseRemarkableDraw, eink.DitherPassthrough, 0)
	case eink.NoRefresh:
	}
}

// touched returns the drawn area, or an empty rect anchored at the
// requested position when nothing landed on screen.
func touched(dst image.Rectangle, y, x int) eink.Rect {
	if dst.Empty() {
		if y < 0 {
			y = 0
		}
		if x < 0 {
			x = 0
		}
		return eink.Rect{Top: uint32(y), Left: uint32(x)}
	}
	return eink.RectFromImage(dst)
}

// TextSize reports the size DrawText would cover for text at scale,
// before clipping.
func (r *Renderer) TextSize(text string, scale int) image.Point {
	if scale < 1 {
		scale = 1
	}
	return r.textMask(text, scale).Bounds().Size()
}

// Save copies the pixels under rect so Restore can put them back.
func (r *Renderer) Save(rect eink.Rect) *image.Gray {
	r.mu.Lock()
	defer r.mu.Unlock()
	area := rect.Image().Intersect(r.img.Bounds())
	saved := image.NewGray(area)
	if !area.Empty() {
		draw.Draw(saved, area, r.img, area.Min, draw.Src)
	}
	return saved
}

// Restore writes saved back at its own bounds and refreshes the area.
func (r *Renderer) Restore(saved *image.Gray, policy eink.RefreshPolicy) eink.Rect {
	r.mu.Lock()
	area := saved.Bounds().Intersect(r.img.Bounds())
	if !area.Empty() {
		draw.Draw(r.img, area, saved, area.Min, draw.Src)
	}
	r.mu.Unlock()

	rect := touched(area, saved.Bounds().Min.Y, saved.Bounds().Min.X)
	r.apply(rect, policy)
	return rect
}
