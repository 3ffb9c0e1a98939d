package eink

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"
)

const (
	EVSyn = 0
	EVKey = 1
	EVAbs = 3

	ABSX           = 0x00
	ABSY           = 0x01
	ABSMTPositionX = 0x35
	ABSMTPositionY = 0x36

	BTNToolFinger = 325
	BTNTouch      = 330

	KEYPower = 116
)

type InputEvent struct {
	Sec   int32
	Usec  int32
	Type  uint16
	Code  uint16
	Value int32
}

type TouchEvent struct {
	X    int
	Y    int
	Down bool
	At   time.Time
}

type PowerEvent struct {
	Pressed bool
	At      time.Time
}

// TouchTransform maps raw digitizer coordinates onto framebuffer pixels.
// Kobo digitizers report in portrait with swapped and mirrored axes.
type TouchTransform struct {
	SwapXY  bool
	MirrorX bool
	MirrorY bool
	Width   int
	Height  int
}

func (t TouchTransform) Apply(x, y int) (int, int) {
	if t.SwapXY {
		x, y = y, x
	}
	if t.MirrorX && t.Width > 0 {
		x = t.Width - 1 - x
	}
	if t.MirrorY && t.Height > 0 {
		y = t.Height - 1 - y
	}
	return x, y
}

type InputDevice struct {
	file      *os.File
	transform TouchTransform
}

func OpenInputDevice(path string, transform TouchTransform) (*InputDevice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &InputDevice{file: file, transform: transform}, nil
}

func (d *InputDevice) Close() error {
	if d == nil || d.file == nil {
		return nil
	}
	return d.file.Close()
}

func (d *InputDevice) ReadEvents() (<-chan TouchEvent, <-chan PowerEvent, <-chan error) {
	return readEvents(d.file, d.transform)
}

func readEvents(r io.Reader, transform TouchTransform) (<-chan TouchEvent, <-chan PowerEvent, <-chan error) {
	touchCh := make(chan TouchEvent, 16)
	powerCh := make(chan PowerEvent, 4)
	errCh := make(chan error, 1)

	go func() {
		defer close(touchCh)
		defer close(powerCh)
		defer close(errCh)

		var (
			rawX, rawY int
			touching   bool
			dirty      bool
		)
		for {
			event, err := readInputEvent(r)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errCh <- err
				}
				return
			}
			switch event.Type {
			case EVAbs:
				switch event.Code {
				case ABSX, ABSMTPositionX:
					rawX = int(event.Value)
					dirty = true
				case ABSY, ABSMTPositionY:
					rawY = int(event.Value)
					dirty = true
				}
			case EVKey:
				switch event.Code {
				case BTNTouch, BTNToolFinger:
					touching = event.Value != 0
					dirty = true
				case KEYPower:
					powerCh <- PowerEvent{Pressed: event.Value != 0, At: eventTime(event)}
				}
			case EVSyn:
				if !dirty {
					continue
				}
				x, y := transform.Apply(rawX, rawY)
				touchCh <- TouchEvent{X: x, Y: y, Down: touching, At: eventTime(event)}
				dirty = false
			}
		}
	}()

	return touchCh, powerCh, errCh
}

func readInputEvent(r io.Reader) (InputEvent, error) {
	var ev InputEvent
	if err := binary.Read(r, binary.LittleEndian, &ev); err != nil {
		return InputEvent{}, err
	}
	return ev, nil
}

func eventTime(ev InputEvent) time.Time {
	return time.Unix(int64(ev.Sec), int64(ev.Usec)*1000)
}
