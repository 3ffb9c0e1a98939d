package eink

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// MinUpdateDimension is the smallest width or height sent with
// MXCFB_SEND_UPDATE. Larger values make collisions between updates more
// likely, smaller ones leave more artifacts on the panel.
const MinUpdateDimension uint32 = 32

type PartialRefreshMode int

const (
	// PartialDryRun dispatches with FlagTestCollision and waits for the result.
	PartialDryRun PartialRefreshMode = iota
	PartialAsync
	PartialWait
)

func (m PartialRefreshMode) String() string {
	switch m {
	case PartialDryRun:
		return "dry-run"
	case PartialAsync:
		return "async"
	case PartialWait:
		return "wait"
	default:
		return "unknown"
	}
}

// RefreshPolicy tells a drawing call whether to refresh what it touched.
// The zero value refreshes without waiting.
type RefreshPolicy int

const (
	Refresh RefreshPolicy = iota
	NoRefresh
	RefreshAndWait
)

func (p RefreshPolicy) String() string {
	switch p {
	case Refresh:
		return "refresh"
	case NoRefresh:
		return "none"
	case RefreshAndWait:
		return "refresh-and-wait"
	default:
		return "unknown"
	}
}

// Markers hands out update markers. Values are never reused for the
// lifetime of the counter and 0 is never returned.
type Markers struct {
	last atomic.Uint32
}

func (m *Markers) Next() uint32 {
	for {
		v := m.last.Add(1)
		if v != 0 {
			return v
		}
	}
}

// Refresher dispatches refresh requests to an EPDC controller.
type Refresher struct {
	ctrl    Controller
	width   uint32
	height  uint32
	markers *Markers
	logger  zerolog.Logger
}

func NewRefresher(ctrl Controller, width, height int, logger zerolog.Logger) *Refresher {
	return NewRefresherWithMarkers(ctrl, width, height, &Markers{}, logger)
}

// NewRefresherWithMarkers lets several refreshers on the same device share
// one marker counter.
func NewRefresherWithMarkers(ctrl Controller, width, height int, markers *Markers, logger zerolog.Logger) *Refresher {
	return &Refresher{
		ctrl:    ctrl,
		width:   uint32(width),
		height:  uint32(height),
		markers: markers,
		logger:  logger,
	}
}

func (r *Refresher) Bounds() Rect {
	return Rect{Width: r.width, Height: r.height}
}

// FullRefresh refreshes the whole panel and returns the marker it used,
// waiting for completion first when wait is set.
func (r *Refresher) FullRefresh(waveform WaveformMode, temp DisplayTemp, dither DitherMode, quantBit int32, wait bool) uint32 {
	data := UpdateData{
		UpdateRegion: Rect{Width: r.width, Height: r.height},
		UpdateMode:   uint32(UpdateModeFull),
		UpdateMarker: r.markers.Next(),
		WaveformMode: uint32(waveform),
		Temp:         int32(temp),
		DitherMode:   int32(dither),
		QuantBit:     quantBit,
	}
	r.send(&data)
	if wait {
		r.wait(data.UpdateMarker)
	}
	return data.UpdateMarker
}

// PartialRefresh refreshes region. PartialAsync returns the marker used;
// PartialWait and PartialDryRun block and return the collision flag. A
// region whose origin is off the panel is dropped and 0 is returned.
func (r *Refresher) PartialRefresh(region Rect, mode PartialRefreshMode, waveform WaveformMode, temp DisplayTemp, dither DitherMode, quantBit int32) uint32 {
	updateRegion, ok := r.clip(region)
	if !ok {
		return 0
	}
	var flags uint32
	if mode == PartialDryRun {
		flags = FlagTestCollision
	}
	data := UpdateData{
		UpdateRegion: updateRegion,
		UpdateMode:   uint32(UpdateModePartial),
		UpdateMarker: r.markers.Next(),
		WaveformMode: uint32(waveform),
		Temp:         int32(temp),
		Flags:        flags,
		DitherMode:   int32(dither),
		QuantBit:     quantBit,
	}
	r.send(&data)

	switch mode {
	case PartialWait, PartialDryRun:
		return r.wait(data.UpdateMarker)
	default:
		return data.UpdateMarker
	}
}

// WaitRefreshComplete blocks until marker completes and returns the
// collision flag reported by the driver.
func (r *Refresher) WaitRefreshComplete(marker uint32) uint32 {
	return r.wait(marker)
}

// clip applies the minimum dimension and then trims the region to the
// panel edges.
func (r *Refresher) clip(region Rect) (Rect, bool) {
	if region.Left >= r.width || region.Top >= r.height {
		return Rect{}, false
	}
	if region.Width < MinUpdateDimension {
		region.Width = MinUpdateDimension
	}
	if region.Height < MinUpdateDimension {
		region.Height = MinUpdateDimension
	}
	if maxX := uint64(region.Left) + uint64(region.Width); maxX > uint64(r.width) {
		region.Width = r.width - region.Left
	}
	if maxY := uint64(region.Top) + uint64(region.Height); maxY > uint64(r.height) {
		region.Height = r.height - region.Top
	}
	return region, true
}

func (r *Refresher) send(data *UpdateData) {
	if err := r.ctrl.SendUpdate(data); err != nil {
		r.logger.Warn().Err(err).
			Uint32("marker", data.UpdateMarker).
			Uint32("mode", data.UpdateMode).
			Stringer("region", data.UpdateRegion).
			Msg("SEND_UPDATE failed")
	}
}

func (r *Refresher) wait(marker uint32) uint32 {
	data := UpdateMarkerData{UpdateMarker: marker}
	if err := r.ctrl.WaitForUpdateComplete(&data); err != nil {
		r.logger.Warn().Err(err).Uint32("marker", marker).Msg("WAIT_FOR_UPDATE_COMPLETE failed")
		return 0
	}
	return data.CollisionTest
}
