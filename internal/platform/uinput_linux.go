//go:build linux

package platform

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// uinput ioctls (linux/uinput.h).
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565

	// eviocgid is _IOR('E', 0x02, struct input_id).
	eviocgid = 0x80084502

	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busVirtual = 0x06
)

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// inputID is struct input_id.
type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputUserDev is the legacy device setup record written before create.
type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FFEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// uinputWriter is a KeyWriter backed by a virtual keyboard.
type uinputWriter struct {
	mu sync.Mutex
	f  *os.File
}

func openUinput(path string) (*uinputWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w (is the uinput module loaded and writable?)", path, err)
	}
	w := &uinputWriter{f: f}
	if err := w.setup(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *uinputWriter) setup() error {
	for _, bit := range []int{evSyn, evKey} {
		if err := ioctlInt(w.f, uiSetEvBit, bit); err != nil {
			return fmt.Errorf("UI_SET_EVBIT %d: %w", bit, err)
		}
	}
	for code := 1; code <= KEY_MAX; code++ {
		if err := ioctlInt(w.f, uiSetKeyBit, code); err != nil {
			return fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], VirtualDeviceName)
	dev.ID.Bustype = busVirtual
	dev.ID.Vendor = uint16(SyntheticTag >> 16)
	dev.ID.Product = uint16(SyntheticTag & 0xffff)
	dev.ID.Version = 1
	if err := binary.Write(w.f, binary.LittleEndian, &dev); err != nil {
		return fmt.Errorf("write device setup: %w", err)
	}
	if err := ioctlInt(w.f, uiDevCreate, 0); err != nil {
		return fmt.Errorf("UI_DEV_CREATE: %w", err)
	}
	return nil
}

// ioctlInt issues an int ioctl without taking the file out of the poller,
// which f.Fd would do.
func ioctlInt(f *os.File, req uint, value int) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetInt(int(fd), req, value)
	}); err != nil {
		return err
	}
	return ioErr
}

// deviceID reads the bus, vendor and product IDs of an evdev node.
func deviceID(f *os.File) (inputID, error) {
	var id inputID
	rc, err := f.SyscallConn()
	if err != nil {
		return id, err
	}
	var errno unix.Errno
	if err := rc.Control(func(fd uintptr) {
		_, _, errno = unix.Syscall(unix.SYS_IOCTL, fd, eviocgid, uintptr(unsafe.Pointer(&id)))
	}); err != nil {
		return id, err
	}
	if errno != 0 {
		return id, errno
	}
	return id, nil
}

func (w *uinputWriter) write(typ, code uint16, value int32) error {
	var tv unix.Timeval
	if err := unix.Gettimeofday(&tv); err != nil {
		return err
	}
	ev := inputEvent{Time: tv, Type: typ, Code: code, Value: value}
	return binary.Write(w.f, binary.LittleEndian, &ev)
}

func (w *uinputWriter) WriteKey(code uint16, value int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(evKey, code, value)
}

func (w *uinputWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(evSyn, synReport, 0)
}

func (w *uinputWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	_ = ioctlInt(w.f, uiDevDestroy, 0)
	err := w.f.Close()
	w.f = nil
	return err
}

// UinputOutput plays actions and re-injects passed-through keys on a
// virtual keyboard.
type UinputOutput struct {
	*Emitter
	w       *uinputWriter
	forward bool
}

// NewUinputOutput creates the virtual keyboard. When forward is false,
// passed-through keys are not re-injected; use that when the physical
// keyboard is not grabbed.
func NewUinputOutput(path string, forward bool, log *slog.Logger) (*UinputOutput, error) {
	w, err := openUinput(path)
	if err != nil {
		return nil, err
	}
	return &UinputOutput{Emitter: NewEmitter(w, log), w: w, forward: forward}, nil
}

// Forward re-injects ev when forwarding is enabled.
func (o *UinputOutput) Forward(ev Event) error {
	if !o.forward {
		return nil
	}
	return o.Emitter.Forward(ev)
}

// Close releases held keys and destroys the virtual keyboard.
func (o *UinputOutput) Close() error {
	relErr := o.ReleaseAll()
	if err := o.w.Close(); err != nil {
		return err
	}
	return relErr
}
