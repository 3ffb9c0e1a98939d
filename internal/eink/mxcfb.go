package eink

import (
	"fmt"
	"image"
	"math"
)

// Rect is laid out like struct mxcfb_rect and is passed to the driver as is.
type Rect struct {
	Top    uint32 `json:"top"`
	Left   uint32 `json:"left"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// InvalidRect marks a region that has never been drawn.
var InvalidRect = Rect{Top: math.MaxUint32, Left: math.MaxUint32}

func (r Rect) Valid() bool {
	return r != InvalidRect
}

func (r Rect) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Contains reports whether the pixel at (y, x) lies inside r.
func (r Rect) Contains(y, x int) bool {
	if y < 0 || x < 0 {
		return false
	}
	uy, ux := uint64(y), uint64(x)
	return uy >= uint64(r.Top) && uy < uint64(r.Top)+uint64(r.Height) &&
		ux >= uint64(r.Left) && ux < uint64(r.Left)+uint64(r.Width)
}

// Image converts r to an image.Rectangle in (x, y) order.
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.Left), int(r.Top), int(r.Left)+int(r.Width), int(r.Top)+int(r.Height))
}

func (r Rect) String() string {
	if !r.Valid() {
		return "rect(invalid)"
	}
	return fmt.Sprintf("rect(top=%d left=%d %dx%d)", r.Top, r.Left, r.Width, r.Height)
}

// RectFromImage converts an image.Rectangle, dropping negative coordinates.
func RectFromImage(r image.Rectangle) Rect {
	r = r.Canon()
	if r.Min.X < 0 {
		r.Min.X = 0
	}
	if r.Min.Y < 0 {
		r.Min.Y = 0
	}
	if r.Empty() {
		return Rect{Top: uint32(r.Min.Y), Left: uint32(r.Min.X)}
	}
	return Rect{
		Top:    uint32(r.Min.Y),
		Left:   uint32(r.Min.X),
		Width:  uint32(r.Dx()),
		Height: uint32(r.Dy()),
	}
}

type UpdateMode uint32

const (
	UpdateModePartial UpdateMode = 0
	UpdateModeFull    UpdateMode = 1
)

type WaveformMode uint32

const (
	WaveformModeInit     WaveformMode = 0x0
	WaveformModeDU       WaveformMode = 0x1
	WaveformModeGC16     WaveformMode = 0x2
	WaveformModeGC16Fast WaveformMode = 0x3
	WaveformModeA2       WaveformMode = 0x4
	WaveformModeGL16     WaveformMode = 0x5
	WaveformModeGL16Fast WaveformMode = 0x6
	WaveformModeDU4      WaveformMode = 0x7
	WaveformModeREAGL    WaveformMode = 0x8
	WaveformModeREAGLD   WaveformMode = 0x9
	WaveformModeGL4      WaveformMode = 0xA
	WaveformModeGL16Inv  WaveformMode = 0xB
	WaveformModeAuto     WaveformMode = 257
)

var waveformNames = map[WaveformMode]string{
	WaveformModeInit:     "init",
	WaveformModeDU:       "du",
	WaveformModeGC16:     "gc16",
	WaveformModeGC16Fast: "gc16-fast",
	WaveformModeA2:       "a2",
	WaveformModeGL16:     "gl16",
	WaveformModeGL16Fast: "gl16-fast",
	WaveformModeDU4:      "du4",
	WaveformModeREAGL:    "reagl",
	WaveformModeREAGLD:   "reagld",
	WaveformModeGL4:      "gl4",
	WaveformModeGL16Inv:  "gl16-inv",
	WaveformModeAuto:     "auto",
}

func (w WaveformMode) String() string {
	if name, ok := waveformNames[w]; ok {
		return name
	}
	return fmt.Sprintf("waveform(%d)", uint32(w))
}

// ParseWaveformMode maps a config name such as "gc16" back to its mode.
func ParseWaveformMode(name string) (WaveformMode, error) {
	for mode, n := range waveformNames {
		if n == name {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown waveform mode %q", name)
}

type DisplayTemp int32

const (
	TempUseRemarkableDraw DisplayTemp = 0x0018
	TempUseAmbient        DisplayTemp = 0x1000
	TempUsePapyrus        DisplayTemp = 0x1001
	TempUseMax            DisplayTemp = 0xFFFF
)

type DitherMode int32

const (
	DitherPassthrough DitherMode = 0x0
	DitherDrawing     DitherMode = 0x1
	DitherY1          DitherMode = 0x2000
	DitherY4          DitherMode = 0x4000
)

const (
	FlagEnableInversion uint32 = 0x01
	FlagForceMonochrome uint32 = 0x02
	FlagUseCMap         uint32 = 0x04
	FlagUseAltBuffer    uint32 = 0x100
	FlagTestCollision   uint32 = 0x200
	FlagGroupUpdate     uint32 = 0x400
)

type AltBufferData struct {
	PhysAddr        uint32
	Width           uint32
	Height          uint32
	AltUpdateRegion Rect
}

// UpdateData mirrors struct mxcfb_update_data.
type UpdateData struct {
	UpdateRegion  Rect
	WaveformMode  uint32
	UpdateMode    uint32
	UpdateMarker  uint32
	Temp          int32
	Flags         uint32
	DitherMode    int32
	QuantBit      int32
	AltBufferData AltBufferData
}

// UpdateMarkerData mirrors struct mxcfb_update_marker_data.
type UpdateMarkerData struct {
	UpdateMarker  uint32
	CollisionTest uint32
}

// Controller is the device control surface of an mxcfb EPDC driver.
type Controller interface {
	SendUpdate(data *UpdateData) error
	WaitForUpdateComplete(data *UpdateMarkerData) error
}
