package kernelio

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// discoveryIOCtl is the control-device ioctl request code that fills a
// ScsiAddress buffer (spec §6.1: "discovery IOCTL with request code
// 0xBEEF001").
const discoveryIOCtl = 0xBEEF001

// ScsiAddress is the four-component SCSI address the discovery ioctl
// reports for a freshly attached virtual device.
type ScsiAddress struct {
	Host    uint32
	Channel uint32
	Target  uint32
	LUN     uint32
}

// ErrDeviceNotReady wraps -ENODEV from the discovery ioctl, which the
// kernel module returns while the virtual device is still attaching;
// the spec says the caller should simply retry.
var ErrDeviceNotReady = errors.New("kernelio: device not yet ready, try again")

// discoverAddress issues the discovery ioctl on an already-open control
// file descriptor and decodes the resulting SCSI address.
func discoverAddress(fd uintptr) (ScsiAddress, error) {
	var raw [16]byte

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(discoveryIOCtl), uintptr(unsafe.Pointer(&raw[0])))
	if errno == unix.ENODEV {
		return ScsiAddress{}, ErrDeviceNotReady
	}
	if errno != 0 {
		return ScsiAddress{}, errno
	}

	return ScsiAddress{
		Host:    leUint32(raw[0:4]),
		Channel: leUint32(raw[4:8]),
		Target:  leUint32(raw[8:12]),
		LUN:     leUint32(raw[12:16]),
	}, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// DiscoverAddress opens path and issues the discovery ioctl, retrying
// while the kernel reports ErrDeviceNotReady is not itself handled here
// (the caller decides retry cadence); it is exposed for tooling (e.g.
// a `devices` CLI subcommand) that needs to resolve a control device to
// its SCSI address without starting a full Bridge.
func DiscoverAddress(path string) (ScsiAddress, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return ScsiAddress{}, err
	}
	defer unix.Close(fd)

	return discoverAddress(uintptr(fd))
}
