package canvas

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/openclaw/inkdash/internal/eink"
)

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Snapshot encodes the surface as base64 PNG, cropped to region when it is
// valid and non-empty.
func (r *Renderer) Snapshot(region eink.Rect) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return SnapshotBase64(r.img, region)
}

func SnapshotBase64(img image.Image, region eink.Rect) (string, error) {
	if region.Valid() && !region.Empty() {
		if sub, ok := img.(subImager); ok {
			img = sub.SubImage(region.Image())
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
