package kernelio

import (
	stderrors "errors"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/cdemu/cdemu-sub002/internal/dispatch"
)

// ErrorFunc reports a fatal kernel I/O error to the device owner, which
// mirrors the "kernel-io-error" signal (spec §6.1/§7): the owner is
// expected to restart the device with Stop followed by Start.
type ErrorFunc func(error)

// conn is the read/write surface loop needs; *os.File satisfies it for
// a real control device, and tests substitute a socketpair end.
type conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Bridge runs the request/response loop against one control device,
// translating C9's vhba_request/vhba_response wire format into C8
// dispatch.Dispatch calls. One Bridge serves one device; the daemon
// facade (C13) owns a Bridge per attached device.
type Bridge struct {
	ctx     *dispatch.Context
	onError ErrorFunc

	mu      sync.Mutex
	file    *os.File
	done    chan struct{}
	running bool

	Address ScsiAddress
}

// NewBridge creates a Bridge that dispatches requests against ctx.
// onError is invoked (from the I/O goroutine) on a fatal short read or
// short write; it must not block.
func NewBridge(ctx *dispatch.Context, onError ErrorFunc) *Bridge {
	return &Bridge{ctx: ctx, onError: onError}
}

// Start opens ctlDevice, resolves its SCSI address via the discovery
// ioctl, and starts the I/O goroutine. It mirrors
// cdemu_device_start: open the control device, then hand its file
// descriptor to a background loop.
func (b *Bridge) Start(ctlDevice string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return stderrors.New("kernelio: bridge already running")
	}

	f, err := os.OpenFile(ctlDevice, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "kernelio: open control device %s", ctlDevice)
	}

	addr, err := discoverAddress(f.Fd())
	if err != nil && !stderrors.Is(err, ErrDeviceNotReady) {
		f.Close()
		return errors.Wrap(err, "kernelio: discovery ioctl")
	}
	b.Address = addr

	b.file = f
	b.done = make(chan struct{})
	b.running = true

	go b.loop(f, b.done)

	return nil
}

// Stop closes the control device, which unblocks the pending read in
// the I/O goroutine, then waits for it to exit. It mirrors
// cdemu_device_stop's quit-watch-join-thread sequence, adapted to
// Go's "close to cancel a blocking read" idiom in place of GLib's
// g_main_loop_quit.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	f := b.file
	done := b.done
	b.running = false
	b.mu.Unlock()

	closeErr := f.Close()
	<-done

	return closeErr
}

// loop is the I/O goroutine body: read one request, dispatch it, write
// one response, repeat. It mirrors cdemu_device_io_handler, translated
// from GLib's per-readability callback into a blocking read loop.
func (b *Bridge) loop(f conn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, BufSize)

	for {
		n, err := f.Read(buf)
		if err != nil {
			// Stop() closing the fd surfaces here; treat it as a
			// clean shutdown rather than a kernel I/O error.
			return
		}
		if n < requestHeaderSize {
			b.reportError(&ErrShortRead{Got: n, Want: requestHeaderSize})
			return
		}

		req, err := decodeRequest(buf[:n])
		if err != nil {
			b.reportError(err)
			return
		}

		status, out, sense := dispatch.Dispatch(b.ctx, req.cdb(), req.Payload)
		if sense != nil {
			out = sense
		}

		resp := encodeResponse(req.Tag, status, out)
		wn, err := f.Write(resp)
		if err != nil {
			b.reportError(err)
			return
		}
		if wn < responseSize {
			b.reportError(&ErrShortWrite{Got: wn, Want: responseSize})
			return
		}
	}
}

func (b *Bridge) reportError(err error) {
	if b.onError != nil {
		b.onError(err)
	}
}
