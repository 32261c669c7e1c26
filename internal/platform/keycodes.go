package platform

import (
	"fmt"
	"sort"

	"capsunlocked/internal/action"
	"capsunlocked/internal/keys"
)

// Linux input key codes (linux/input-event-codes.h).
const (
	KEY_ESC        = 1
	KEY_1          = 2
	KEY_2          = 3
	KEY_3          = 4
	KEY_4          = 5
	KEY_5          = 6
	KEY_6          = 7
	KEY_7          = 8
	KEY_8          = 9
	KEY_9          = 10
	KEY_0          = 11
	KEY_MINUS      = 12
	KEY_EQUAL      = 13
	KEY_BACKSPACE  = 14
	KEY_TAB        = 15
	KEY_Q          = 16
	KEY_W          = 17
	KEY_E          = 18
	KEY_R          = 19
	KEY_T          = 20
	KEY_Y          = 21
	KEY_U          = 22
	KEY_I          = 23
	KEY_O          = 24
	KEY_P          = 25
	KEY_LEFTBRACE  = 26
	KEY_RIGHTBRACE = 27
	KEY_ENTER      = 28
	KEY_LEFTCTRL   = 29
	KEY_A          = 30
	KEY_S          = 31
	KEY_D          = 32
	KEY_F          = 33
	KEY_G          = 34
	KEY_H          = 35
	KEY_J          = 36
	KEY_K          = 37
	KEY_L          = 38
	KEY_SEMICOLON  = 39
	KEY_APOSTROPHE = 40
	KEY_GRAVE      = 41
	KEY_LEFTSHIFT  = 42
	KEY_BACKSLASH  = 43
	KEY_Z          = 44
	KEY_X          = 45
	KEY_C          = 46
	KEY_V          = 47
	KEY_B          = 48
	KEY_N          = 49
	KEY_M          = 50
	KEY_COMMA      = 51
	KEY_DOT        = 52
	KEY_SLASH      = 53
	KEY_RIGHTSHIFT = 54
	KEY_LEFTALT    = 56
	KEY_SPACE      = 57
	KEY_CAPSLOCK   = 58
	KEY_F1         = 59
	KEY_F2         = 60
	KEY_F3         = 61
	KEY_F4         = 62
	KEY_F5         = 63
	KEY_F6         = 64
	KEY_F7         = 65
	KEY_F8         = 66
	KEY_F9         = 67
	KEY_F10        = 68
	KEY_NUMLOCK    = 69
	KEY_SCROLLLOCK = 70
	KEY_F11        = 87
	KEY_F12        = 88
	KEY_RIGHTCTRL  = 97
	KEY_SYSRQ      = 99
	KEY_RIGHTALT   = 100
	KEY_HOME       = 102
	KEY_UP         = 103
	KEY_PAGEUP     = 104
	KEY_LEFT       = 105
	KEY_RIGHT      = 106
	KEY_END        = 107
	KEY_DOWN       = 108
	KEY_PAGEDOWN   = 109
	KEY_INSERT     = 110
	KEY_DELETE     = 111
	KEY_MUTE       = 113
	KEY_VOLUMEDOWN = 114
	KEY_VOLUMEUP   = 115
	KEY_PAUSE      = 119
	KEY_LEFTMETA   = 125
	KEY_RIGHTMETA  = 126
	KEY_COMPOSE    = 127

	// KEY_MAX bounds the codes the virtual device advertises.
	KEY_MAX = 0x2ff
)

// codeNames gives each code the name it is reported under.
var codeNames = map[uint16]string{
	KEY_ESC:        "ESC",
	KEY_1:          "1",
	KEY_2:          "2",
	KEY_3:          "3",
	KEY_4:          "4",
	KEY_5:          "5",
	KEY_6:          "6",
	KEY_7:          "7",
	KEY_8:          "8",
	KEY_9:          "9",
	KEY_0:          "0",
	KEY_MINUS:      "MINUS",
	KEY_EQUAL:      "EQUAL",
	KEY_BACKSPACE:  "BACKSPACE",
	KEY_TAB:        "TAB",
	KEY_Q:          "Q",
	KEY_W:          "W",
	KEY_E:          "E",
	KEY_R:          "R",
	KEY_T:          "T",
	KEY_Y:          "Y",
	KEY_U:          "U",
	KEY_I:          "I",
	KEY_O:          "O",
	KEY_P:          "P",
	KEY_LEFTBRACE:  "LEFTBRACE",
	KEY_RIGHTBRACE: "RIGHTBRACE",
	KEY_ENTER:      "ENTER",
	KEY_LEFTCTRL:   "CTRL",
	KEY_A:          "A",
	KEY_S:          "S",
	KEY_D:          "D",
	KEY_F:          "F",
	KEY_G:          "G",
	KEY_H:          "H",
	KEY_J:          "J",
	KEY_K:          "K",
	KEY_L:          "L",
	KEY_SEMICOLON:  "SEMICOLON",
	KEY_APOSTROPHE: "APOSTROPHE",
	KEY_GRAVE:      "GRAVE",
	KEY_LEFTSHIFT:  "SHIFT",
	KEY_BACKSLASH:  "BACKSLASH",
	KEY_Z:          "Z",
	KEY_X:          "X",
	KEY_C:          "C",
	KEY_V:          "V",
	KEY_B:          "B",
	KEY_N:          "N",
	KEY_M:          "M",
	KEY_COMMA:      "COMMA",
	KEY_DOT:        "DOT",
	KEY_SLASH:      "SLASH",
	KEY_RIGHTSHIFT: "RIGHTSHIFT",
	KEY_LEFTALT:    "ALT",
	KEY_SPACE:      "SPACE",
	KEY_CAPSLOCK:   CapsLockKey,
	KEY_F1:         "F1",
	KEY_F2:         "F2",
	KEY_F3:         "F3",
	KEY_F4:         "F4",
	KEY_F5:         "F5",
	KEY_F6:         "F6",
	KEY_F7:         "F7",
	KEY_F8:         "F8",
	KEY_F9:         "F9",
	KEY_F10:        "F10",
	KEY_F11:        "F11",
	KEY_F12:        "F12",
	KEY_NUMLOCK:    "NUMLOCK",
	KEY_SCROLLLOCK: "SCROLLLOCK",
	KEY_RIGHTCTRL:  "RIGHTCTRL",
	KEY_SYSRQ:      "PRINTSCREEN",
	KEY_RIGHTALT:   "RIGHTALT",
	KEY_HOME:       "HOME",
	KEY_UP:         "UP",
	KEY_PAGEUP:     "PAGEUP",
	KEY_LEFT:       "LEFT",
	KEY_RIGHT:      "RIGHT",
	KEY_END:        "END",
	KEY_DOWN:       "DOWN",
	KEY_PAGEDOWN:   "PAGEDOWN",
	KEY_INSERT:     "INSERT",
	KEY_DELETE:     "DELETE",
	KEY_MUTE:       "MUTE",
	KEY_VOLUMEDOWN: "VOLUMEDOWN",
	KEY_VOLUMEUP:   "VOLUMEUP",
	KEY_PAUSE:      "PAUSE",
	KEY_LEFTMETA:   "META",
	KEY_RIGHTMETA:  "RIGHTMETA",
	KEY_COMPOSE:    "MENU",
}

// nameAliases are extra spellings accepted in action strings.
var nameAliases = map[string]uint16{
	"ESCAPE":     KEY_ESC,
	"RETURN":     KEY_ENTER,
	"DEL":        KEY_DELETE,
	"INS":        KEY_INSERT,
	"PGUP":       KEY_PAGEUP,
	"PGDN":       KEY_PAGEDOWN,
	"LEFTSHIFT":  KEY_LEFTSHIFT,
	"LSHIFT":     KEY_LEFTSHIFT,
	"RSHIFT":     KEY_RIGHTSHIFT,
	"CONTROL":    KEY_LEFTCTRL,
	"LEFTCTRL":   KEY_LEFTCTRL,
	"LCTRL":      KEY_LEFTCTRL,
	"RCTRL":      KEY_RIGHTCTRL,
	"LEFTALT":    KEY_LEFTALT,
	"OPTION":     KEY_LEFTALT,
	"ALTGR":      KEY_RIGHTALT,
	"LEFTMETA":   KEY_LEFTMETA,
	"CMD":        KEY_LEFTMETA,
	"COMMAND":    KEY_LEFTMETA,
	"SUPER":      KEY_LEFTMETA,
	"WIN":        KEY_LEFTMETA,
	"CAPS":       KEY_CAPSLOCK,
	"PERIOD":     KEY_DOT,
	"BACKQUOTE":  KEY_GRAVE,
	"SYSRQ":      KEY_SYSRQ,
	"PRTSC":      KEY_SYSRQ,
	"BKSP":       KEY_BACKSPACE,
	"ENTERKEY":   KEY_ENTER,
	"SPACEBAR":   KEY_SPACE,
	"SCROLL":     KEY_SCROLLLOCK,
	"APPS":       KEY_COMPOSE,
	"CONTEXT":    KEY_COMPOSE,
	"VOLUMEMUTE": KEY_MUTE,
}

var nameCodes = func() map[string]uint16 {
	m := make(map[string]uint16, len(codeNames)+len(nameAliases))
	for code, name := range codeNames {
		m[name] = code
	}
	for name, code := range nameAliases {
		m[name] = code
	}
	return m
}()

// KeyName returns the normalized name for a raw code. Unnamed codes are
// rendered as hex, e.g. "0X1D0".
func KeyName(code uint16) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("0X%X", code)
}

// KeyCode resolves a key name, alias or hex code.
func KeyCode(name string) (uint16, bool) {
	k := keys.CanonicalKey(name)
	if code, ok := nameCodes[k]; ok {
		return code, true
	}
	return action.HexCode(k)
}

// KnownCodes returns every named code in ascending order.
func KnownCodes() []uint16 {
	out := make([]uint16, 0, len(codeNames))
	for code := range codeNames {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
