package eink

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvents(t *testing.T, events ...InputEvent) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	for _, ev := range events {
		require.NoError(t, binary.Write(buf, binary.LittleEndian, ev))
	}
	return buf
}

func TestReadInputEvent(t *testing.T) {
	buf := writeEvents(t, InputEvent{Sec: 1, Usec: 2, Type: EVAbs, Code: ABSX, Value: 123})
	read, err := readInputEvent(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(ABSX), read.Code)
	assert.Equal(t, int32(123), read.Value)
}

func TestReadEventsTouchAndPower(t *testing.T) {
	buf := writeEvents(t,
		InputEvent{Type: EVAbs, Code: ABSMTPositionX, Value: 10},
		InputEvent{Type: EVAbs, Code: ABSMTPositionY, Value: 20},
		InputEvent{Type: EVKey, Code: BTNTouch, Value: 1},
		InputEvent{Type: EVSyn},
		InputEvent{Type: EVSyn},
		InputEvent{Type: EVKey, Code: KEYPower, Value: 1},
	)
	touchCh, powerCh, errCh := readEvents(buf, TouchTransform{SwapXY: true})

	var touches []TouchEvent
	for touch := range touchCh {
		touches = append(touches, touch)
	}
	require.Len(t, touches, 1)
	assert.Equal(t, 20, touches[0].X)
	assert.Equal(t, 10, touches[0].Y)
	assert.True(t, touches[0].Down)

	power, ok := <-powerCh
	require.True(t, ok)
	assert.True(t, power.Pressed)

	_, ok = <-errCh
	assert.False(t, ok, "EOF must close the error channel without an error")
}

func TestTouchTransformMirror(t *testing.T) {
	tr := TouchTransform{SwapXY: true, MirrorX: true, Width: 100, Height: 200}
	x, y := tr.Apply(5, 30)
	assert.Equal(t, 69, x)
	assert.Equal(t, 5, y)
}
