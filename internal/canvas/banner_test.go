package canvas

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/inkdash/internal/eink"
)

func TestBannerRestoresCoveredContent(t *testing.T) {
	r, img, refresher := newTestRenderer(300, 200)
	content := color.Gray{Y: 100}
	r.FillRect(eink.Rect{Top: 150, Left: 0, Width: 200, Height: 50}, content)

	banner := NewBanner(r, "sleeping")
	rect := banner.Show()
	assert.Equal(t, eink.Rect{Top: 166, Left: 8, Width: 112, Height: 26}, rect)
	require.Len(t, refresher.partial, 1)
	assert.Equal(t, eink.PartialWait, refresher.partial[0].mode)

	black := 0
	for y := 166; y < 192; y++ {
		for x := 8; x < 120; x++ {
			if img.GrayAt(x, y) == Black {
				black++
			}
		}
	}
	assert.NotZero(t, black, "banner text drawn")

	banner.Hide()
	for y := 150; y < 200; y++ {
		for x := 0; x < 200; x++ {
			require.Equal(t, content, img.GrayAt(x, y), "pixel %d,%d", x, y)
		}
	}
	require.Len(t, refresher.partial, 2)
	assert.Equal(t, eink.PartialAsync, refresher.partial[1].mode)
	assert.Equal(t, rect, refresher.partial[1].region)
}

func TestBannerHideWithoutShow(t *testing.T) {
	r, _, refresher := newTestRenderer(50, 50)
	NewBanner(r, "zz").Hide()
	assert.Empty(t, refresher.partial)
}

func TestBannerShowTwiceKeepsFirstSave(t *testing.T) {
	r, img, _ := newTestRenderer(300, 200)
	r.FillRect(eink.Rect{Width: 300, Height: 200}, White)
	banner := NewBanner(r, "sleeping")
	first := banner.Show()
	assert.Equal(t, first, banner.Show())

	banner.Hide()
	for y := 166; y < 192; y++ {
		for x := 8; x < 120; x++ {
			require.Equal(t, White, img.GrayAt(x, y), "pixel %d,%d", x, y)
		}
	}
}
