package eink

import (
	"fmt"
	"image"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type fbFixScreeninfo struct {
	ID         [16]byte
	SMemStart  uint32
	SMemLen    uint32
	Type       uint32
	TypeAux    uint32
	Visual     uint32
	XPanStep   uint16
	YPanStep   uint16
	YWrapStep  uint16
	LineLength uint32
	MMIOStart  uint32
	MMIOLen    uint32
	Accel      uint32
	Cap        uint16
	Reserved   [2]uint16
}

type fbVarScreeninfo struct {
	XRes         uint32
	YRes         uint32
	XResVirtual  uint32
	YResVirtual  uint32
	XOffset      uint32
	YOffset      uint32
	BitsPerPixel uint32
	Grayscale    uint32
	Red          fbBitfield
	Green        fbBitfield
	Blue         fbBitfield
	Transp       fbBitfield
	NonStd       uint32
	Activate     uint32
	Height       uint32
	Width        uint32
	AccelFlags   uint32
	Pixclock     uint32
	LeftMargin   uint32
	RightMargin  uint32
	UpperMargin  uint32
	LowerMargin  uint32
	HsyncLen     uint32
	VsyncLen     uint32
	Sync         uint32
	Vmode        uint32
	Rotate       uint32
	Colorspace   uint32
	Reserved     [4]uint32
}

type fbBitfield struct {
	Offset   uint32
	Length   uint32
	MSBRight uint32
}

// Framebuffer is an 8 bpp EPDC framebuffer. Its pixel memory is exposed as
// an *image.Gray and its refresh ioctls implement Controller.
type Framebuffer struct {
	file   *os.File
	data   []byte
	gray   *image.Gray
	ID     string
	Width  int
	Height int
	Stride int
	BPP    int
}

func Open(path string) (*Framebuffer, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open framebuffer")
	}
	var vinfo fbVarScreeninfo
	var finfo fbFixScreeninfo
	if err := ioctl(file.Fd(), fbIOGetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "FBIOGET_VSCREENINFO")
	}
	if err := ioctl(file.Fd(), fbIOGetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "FBIOGET_FSCREENINFO")
	}
	if vinfo.BitsPerPixel != 8 {
		_ = file.Close()
		return nil, fmt.Errorf("unsupported bpp: %d", vinfo.BitsPerPixel)
	}
	length := int(finfo.SMemLen)
	data, err := unix.Mmap(int(file.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "mmap")
	}
	fb := &Framebuffer{
		file:   file,
		data:   data,
		ID:     cString(finfo.ID[:]),
		Width:  int(vinfo.XRes),
		Height: int(vinfo.YRes),
		Stride: int(finfo.LineLength),
		BPP:    int(vinfo.BitsPerPixel),
	}
	fb.gray = fb.wrapGray()
	return fb, nil
}

// NewFramebufferFromBuffer returns a memory-only framebuffer. Its
// Controller methods succeed without touching any device.
func NewFramebufferFromBuffer(width, height int) *Framebuffer {
	fb := &Framebuffer{
		data:   make([]byte, width*height),
		Width:  width,
		Height: height,
		Stride: width,
		BPP:    8,
	}
	fb.gray = fb.wrapGray()
	return fb
}

func (fb *Framebuffer) wrapGray() *image.Gray {
	return &image.Gray{
		Pix:    fb.data,
		Stride: fb.Stride,
		Rect:   image.Rect(0, 0, fb.Width, fb.Height),
	}
}

// Gray returns the pixel memory. Writes to it land on the panel after the
// next refresh covering the written area.
func (fb *Framebuffer) Gray() *image.Gray {
	return fb.gray
}

func (fb *Framebuffer) Bounds() Rect {
	return Rect{Width: uint32(fb.Width), Height: uint32(fb.Height)}
}

func (fb *Framebuffer) Close() error {
	if fb == nil {
		return nil
	}
	if fb.file != nil && fb.data != nil {
		_ = unix.Munmap(fb.data)
	}
	fb.data = nil
	fb.gray = nil
	if fb.file != nil {
		return fb.file.Close()
	}
	return nil
}

func (fb *Framebuffer) SendUpdate(data *UpdateData) error {
	if fb == nil || fb.file == nil {
		return nil
	}
	return ioctl(fb.file.Fd(), mxcfbSendUpdate, unsafe.Pointer(data))
}

func (fb *Framebuffer) WaitForUpdateComplete(data *UpdateMarkerData) error {
	if fb == nil || fb.file == nil {
		return nil
	}
	return ioctl(fb.file.Fd(), mxcfbWaitForUpdateComplete, unsafe.Pointer(data))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
