package eink

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, iocType, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (iocType << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func iocNoArg(iocType, nr uintptr) uintptr {
	return ioc(iocNone, iocType, nr, 0)
}

func iow(iocType, nr, size uintptr) uintptr {
	return ioc(iocWrite, iocType, nr, size)
}

func iowr(iocType, nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, iocType, nr, size)
}

var (
	fbIOGetVScreenInfo = iocNoArg('F', 0x00)
	fbIOGetFScreenInfo = iocNoArg('F', 0x02)

	mxcfbSendUpdate            = iow('F', 0x2E, unsafe.Sizeof(UpdateData{}))
	mxcfbWaitForUpdateComplete = iowr('F', 0x2F, unsafe.Sizeof(UpdateMarkerData{}))
)

func ioctl(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}
