package ui

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/inkdash/internal/eink"
)

type paintCall struct {
	op     string
	y, x   int
	rect   eink.Rect
	policy eink.RefreshPolicy
}

// fakePainter returns a rect of fixed size anchored at the draw position.
type fakePainter struct {
	mu     sync.Mutex
	calls  []paintCall
	width  uint32
	height uint32
}

func (p *fakePainter) record(c paintCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, c)
}

func (p *fakePainter) FillRect(rect eink.Rect, c color.Gray) {
	p.record(paintCall{op: "fill", rect: rect})
}

func (p *fakePainter) DrawText(y, x int, c color.Gray, scale int, text string, policy eink.RefreshPolicy) eink.Rect {
	rect := eink.Rect{Top: uint32(y), Left: uint32(x), Width: p.width * uint32(len(text)), Height: p.height}
	p.record(paintCall{op: "text", y: y, x: x, rect: rect, policy: policy})
	return rect
}

func (p *fakePainter) DrawImage(img image.Image, y, x int, policy eink.RefreshPolicy) eink.Rect {
	b := img.Bounds()
	rect := eink.Rect{Top: uint32(y), Left: uint32(x), Width: uint32(b.Dx()), Height: uint32(b.Dy())}
	p.record(paintCall{op: "image", y: y, x: x, rect: rect, policy: policy})
	return rect
}

func (p *fakePainter) ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.calls {
		out = append(out, c.op)
	}
	return out
}

type refreshCall struct {
	region   eink.Rect
	mode     eink.PartialRefreshMode
	waveform eink.WaveformMode
	dither   eink.DitherMode
}

type fakeRefresher struct {
	calls []refreshCall
}

func (r *fakeRefresher) PartialRefresh(region eink.Rect, mode eink.PartialRefreshMode, waveform eink.WaveformMode, temp eink.DisplayTemp, dither eink.DitherMode, quantBit int32) uint32 {
	r.calls = append(r.calls, refreshCall{region: region, mode: mode, waveform: waveform, dither: dither})
	return 0
}

// countingRegions wraps Regions and counts mutations.
type countingRegions struct {
	*Regions
	creates int
	removes int
}

func (c *countingRegions) Create(top, left, height, width int, handler Handler) {
	c.creates++
	c.Regions.Create(top, left, height, width, handler)
}

func (c *countingRegions) Remove(top, left int) {
	c.removes++
	c.Regions.Remove(top, left)
}

type fixture struct {
	painter   *fakePainter
	refresher *fakeRefresher
	regions   *countingRegions
	app       *App
}

func newFixture() *fixture {
	f := &fixture{
		painter:   &fakePainter{width: 8, height: 13},
		refresher: &fakeRefresher{},
		regions:   &countingRegions{Regions: NewRegions(NewRegistry(), zerolog.Nop())},
	}
	f.app = &App{Painter: f.painter, Refresher: f.refresher, Regions: f.regions}
	return f
}

func TestDrawFirstTime(t *testing.T) {
	f := newFixture()
	elem := NewElement(100, 200, eink.Refresh, Text{Text: "hello", Scale: 1})
	handler := &Handler{Action: "tap", Element: elem}

	elem.Draw(f.app, handler)

	assert.Equal(t, []string{"text"}, f.painter.ops(), "no clear on the first draw")
	assert.Empty(t, f.refresher.calls)
	assert.Equal(t, eink.Refresh, f.painter.calls[0].policy)
	assert.Equal(t, 1, f.regions.creates)
	assert.Zero(t, f.regions.removes)

	rect, ok := elem.LastDrawn()
	require.True(t, ok)
	assert.Equal(t, eink.Rect{Top: 200, Left: 100, Width: 40, Height: 13}, rect)

	region, ok := f.regions.Find(205, 110)
	require.True(t, ok)
	assert.Equal(t, rect, region.Rect)
	assert.Same(t, elem, region.Handler.Element)
}

func TestDrawWithoutHandlerLeavesRegionsAlone(t *testing.T) {
	f := newFixture()
	elem := NewElement(0, 0, eink.NoRefresh, Text{Text: "x"})

	elem.Draw(f.app, nil)

	assert.Zero(t, f.regions.creates)
	_, ok := elem.LastDrawn()
	assert.True(t, ok)
}

func TestDrawSkipsCreateWhenRegionExists(t *testing.T) {
	f := newFixture()
	other := NewElement(0, 0, eink.NoRefresh, nil)
	f.regions.Regions.Create(0, 0, 500, 500, Handler{Action: "other", Element: other})

	elem := NewElement(10, 10, eink.NoRefresh, Text{Text: "abc"})
	elem.Draw(f.app, &Handler{Action: "tap", Element: elem})

	assert.Zero(t, f.regions.creates)
	assert.Equal(t, 1, f.regions.Len())
}

func TestRedrawSamePlaceSameRect(t *testing.T) {
	f := newFixture()
	elem := NewElement(50, 60, eink.NoRefresh, Text{Text: "same"})
	handler := &Handler{Action: "tap", Element: elem}

	elem.Draw(f.app, handler)
	before, _ := f.regions.Find(60, 50)
	elem.Draw(f.app, handler)

	assert.Equal(t, []string{"text", "fill", "text"}, f.painter.ops())
	assert.Empty(t, f.refresher.calls, "old rect shares the origin so no clear refresh")
	assert.Equal(t, 1, f.regions.creates)
	assert.Zero(t, f.regions.removes)
	after, ok := f.regions.Find(60, 50)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.regions.Len())
}

func TestRedrawMovedElement(t *testing.T) {
	f := newFixture()
	elem := NewElement(50, 60, eink.RefreshAndWait, Text{Text: "move"})
	handler := &Handler{Action: "tap", Element: elem}
	elem.Draw(f.app, handler)

	elem.Update(300, 400, eink.RefreshAndWait, Text{Text: "moved"})
	elem.Draw(f.app, handler)

	old := eink.Rect{Top: 60, Left: 50, Width: 32, Height: 13}
	require.Len(t, f.refresher.calls, 1)
	call := f.refresher.calls[0]
	assert.Equal(t, old, call.region)
	assert.Equal(t, eink.PartialWait, call.mode)
	assert.Equal(t, eink.WaveformModeDU, call.waveform)
	assert.Equal(t, eink.DitherPassthrough, call.dither)

	assert.Equal(t, old, f.painter.calls[1].rect, "old rect cleared")
	assert.Equal(t, 1, f.regions.removes)
	assert.Equal(t, 2, f.regions.creates)
	assert.Equal(t, 1, f.regions.Len())
	_, ok := f.regions.Find(60, 50)
	assert.False(t, ok)
	_, ok = f.regions.Find(400, 300)
	assert.True(t, ok)
}

func TestRedrawSharingOneAxisSkipsClearRefresh(t *testing.T) {
	f := newFixture()
	elem := NewElement(50, 60, eink.NoRefresh, Text{Text: "a"})
	elem.Draw(f.app, nil)

	elem.Update(50, 90, eink.NoRefresh, Text{Text: "a"})
	elem.Draw(f.app, nil)

	assert.Empty(t, f.refresher.calls, "left unchanged so no refresh of the cleared area")
	assert.Equal(t, []string{"text", "fill", "text"}, f.painter.ops())
}

func TestRedrawShrunkTextAtSameOrigin(t *testing.T) {
	f := newFixture()
	elem := NewElement(10, 10, eink.NoRefresh, Text{Text: "longer"})
	handler := &Handler{Action: "tap", Element: elem}
	elem.Draw(f.app, handler)

	elem.Update(10, 10, eink.NoRefresh, Text{Text: "s"})
	elem.Draw(f.app, handler)

	assert.Empty(t, f.refresher.calls)
	assert.Equal(t, 1, f.regions.removes)
	assert.Equal(t, 2, f.regions.creates)
	region, ok := f.regions.Find(10, 10)
	require.True(t, ok)
	assert.Equal(t, uint32(8), region.Rect.Width)
}

func TestDrawUnspecifiedIsNoop(t *testing.T) {
	f := newFixture()
	elem := NewElement(10, 10, eink.Refresh, nil)

	elem.Draw(f.app, &Handler{Action: "tap", Element: elem})

	assert.Empty(t, f.painter.ops())
	assert.Zero(t, f.regions.creates)
	_, ok := elem.LastDrawn()
	assert.False(t, ok)
}

func TestDrawImage(t *testing.T) {
	f := newFixture()
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	elem := NewElement(5, 6, eink.RefreshAndWait, Image{Img: img})

	elem.Draw(f.app, nil)

	require.Len(t, f.painter.calls, 1)
	assert.Equal(t, "image", f.painter.calls[0].op)
	assert.Equal(t, eink.RefreshAndWait, f.painter.calls[0].policy)
	rect, _ := elem.LastDrawn()
	assert.Equal(t, eink.Rect{Top: 6, Left: 5, Width: 20, Height: 10}, rect)
}

func TestDrawIdempotentRegions(t *testing.T) {
	f := newFixture()
	elem := NewElement(1, 2, eink.NoRefresh, Text{Text: "idem"})
	handler := &Handler{Action: "tap", Element: elem}

	elem.Draw(f.app, handler)
	snapshot := append([]ActiveRegion(nil), f.regions.regions...)
	elem.Draw(f.app, handler)

	assert.Equal(t, snapshot, f.regions.regions)
}

func TestHandlerRedrawsFromDispatch(t *testing.T) {
	f := newFixture()
	registry := NewRegistry()
	regions := NewRegions(registry, zerolog.Nop())
	app := &App{Painter: f.painter, Refresher: f.refresher, Regions: regions}

	elem := NewElement(0, 0, eink.NoRefresh, Text{Text: "off"})
	handler := &Handler{Action: "toggle", Element: elem}
	registry.Register("toggle", func(ctx context.Context, e *Element, y, x int) {
		e.Update(0, 0, eink.NoRefresh, Text{Text: "on!"})
		e.Draw(app, handler)
	})
	elem.Draw(app, handler)

	require.True(t, regions.Dispatch(context.Background(), 5, 5))
	rect, _ := elem.LastDrawn()
	assert.Equal(t, uint32(24), rect.Width, "redrawn with the new text")
	assert.Equal(t, 1, regions.Len())
}

func TestDrawAlternatingEmptyTextKeepsOneRegion(t *testing.T) {
	f := newFixture()
	elem := NewElement(4, 4, eink.NoRefresh, Text{Text: ""})
	handler := &Handler{Action: "tap", Element: elem}
	elem.Draw(f.app, handler)
	assert.Zero(t, f.regions.Len(), "nothing visible, nothing to tap")

	for i := 0; i < 5; i++ {
		elem.Update(4, 4, eink.NoRefresh, Text{Text: "hi"})
		elem.Draw(f.app, handler)
		require.Equal(t, 1, f.regions.Len())
		region, ok := f.regions.Find(5, 5)
		require.True(t, ok)
		assert.Equal(t, elem, region.Handler.Element)

		elem.Update(4, 4, eink.NoRefresh, Text{Text: ""})
		elem.Draw(f.app, handler)
		require.Zero(t, f.regions.Len())
		_, ok = f.regions.Find(5, 5)
		assert.False(t, ok)
	}
}
