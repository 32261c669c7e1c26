package platform

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// InputDevicesPath lists the kernel's input devices on Linux.
const InputDevicesPath = "/proc/bus/input/devices"

const evKeyBit = 1

// InputDevice is one block of /proc/bus/input/devices.
type InputDevice struct {
	Name     string
	Vendor   uint16
	Product  uint16
	Handlers []string
	ev       []string
	key      []string
}

// EventPath returns the /dev/input node for the device, or "".
func (d InputDevice) EventPath() string {
	for _, h := range d.Handlers {
		if strings.HasPrefix(h, "event") {
			return "/dev/input/" + h
		}
	}
	return ""
}

// IsKeyboard reports whether the device emits key events and has both a
// letter row and CapsLock, which rules out mice, power buttons and the like.
func (d InputDevice) IsKeyboard() bool {
	if !hasBit(d.ev, evKeyBit) {
		return false
	}
	for _, code := range []uint16{KEY_Q, KEY_A, KEY_Z, KEY_CAPSLOCK} {
		if !hasBit(d.key, int(code)) {
			return false
		}
	}
	return true
}

// IsVirtual reports whether the device is our own uinput keyboard, by its
// SyntheticTag IDs or, failing that, its name.
func (d InputDevice) IsVirtual() bool {
	return IsSyntheticID(d.Vendor, d.Product) || d.Name == VirtualDeviceName
}

// ParseInputDevices reads the /proc/bus/input/devices format.
func ParseInputDevices(r io.Reader) ([]InputDevice, error) {
	var (
		out  []InputDevice
		cur  InputDevice
		seen bool
	)
	flush := func() {
		if seen {
			out = append(out, cur)
		}
		cur, seen = InputDevice{}, false
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		if len(line) < 3 || line[1] != ':' {
			continue
		}
		seen = true
		body := strings.TrimSpace(line[2:])
		switch line[0] {
		case 'I':
			for _, f := range strings.Fields(body) {
				k, v, _ := strings.Cut(f, "=")
				id, err := strconv.ParseUint(v, 16, 16)
				if err != nil {
					continue
				}
				switch k {
				case "Vendor":
					cur.Vendor = uint16(id)
				case "Product":
					cur.Product = uint16(id)
				}
			}
		case 'N':
			cur.Name = strings.Trim(strings.TrimPrefix(body, "Name="), `"`)
		case 'H':
			cur.Handlers = strings.Fields(strings.TrimPrefix(body, "Handlers="))
		case 'B':
			switch {
			case strings.HasPrefix(body, "EV="):
				cur.ev = strings.Fields(strings.TrimPrefix(body, "EV="))
			case strings.HasPrefix(body, "KEY="):
				cur.key = strings.Fields(strings.TrimPrefix(body, "KEY="))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return out, nil
}

// Keyboards filters devs down to real keyboards with an event node.
func Keyboards(devs []InputDevice) []InputDevice {
	var out []InputDevice
	for _, d := range devs {
		if d.IsVirtual() || !d.IsKeyboard() || d.EventPath() == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// hasBit tests bit n of a kernel bitmap printed as hex words, most
// significant word first.
func hasBit(words []string, n int) bool {
	size := strconv.IntSize
	idx := len(words) - 1 - n/size
	if idx < 0 || idx >= len(words) {
		return false
	}
	w, err := strconv.ParseUint(words[idx], 16, 64)
	if err != nil {
		return false
	}
	return w&(1<<uint(n%size)) != 0
}
