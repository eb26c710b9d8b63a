package rpio

import (
	"math/bits"

	"github.com/fabian-schmidt/go-rpihal/model"
)

// Mask is a set of pins, bit n represents GPIO n.
type Mask uint64

// Pins physically present on the SoC.
const (
	BCM283xPinsMask Mask = 0x003FFFFFFFFFFFFF // GPIO 0-53
	BCM2711PinsMask Mask = 0x03FFFFFFFFFFFFFF // GPIO 0-57
)

// Pins routed to the user header.
const (
	UserPinsMask26Rev1   Mask = 0x0000000003E6CF93
	UserPinsMask26Rev2P1 Mask = 0x000000000BC6CF9C
	UserPinsMask26Rev2P5 Mask = 0x00000000F0000000 // add-on header P5
	UserPinsMask26Rev2        = UserPinsMask26Rev2P1 | UserPinsMask26Rev2P5
	// UserPinsMask40 is GPIO 2-27. GPIO 0 and 1 are reserved for the HAT
	// ID EEPROM. The first 26 pins are compatible with the 26 pin rev2 header.
	UserPinsMask40 Mask = 0x000000000FFFFFFC
)

// Policy decides which pins a program may access.
type Policy struct {
	gen    model.Generation
	header model.Header
}

// NewPolicy returns the policy of a board.
func NewPolicy(m model.Model) Policy {
	return Policy{gen: m.Generation(), header: m.Header}
}

// UserPins returns the pins safe for general use. It is 0 when the header
// layout is not known, in which case no pin may be accessed.
func (p Policy) UserPins() Mask {
	switch p.header {
	case model.Header26Rev1:
		return UserPinsMask26Rev1
	case model.Header26Rev2:
		return UserPinsMask26Rev2
	case model.Header40:
		return UserPinsMask40
	default:
		return 0
	}
}

// SocPins returns every pin of the SoC, 0 if the generation is not known.
func (p Policy) SocPins() Mask {
	switch p.gen {
	case model.GenerationLegacy:
		return BCM283xPinsMask
	case model.GenerationBCM2711:
		return BCM2711PinsMask
	default:
		return 0
	}
}

// LastPin returns the highest GPIO number of the SoC, -1 if unknown.
func (p Policy) LastPin() int {
	return bits.Len64(uint64(p.SocPins())) - 1
}

func (p Policy) active(locked bool) Mask {
	if locked {
		return p.UserPins()
	}
	return p.SocPins()
}

// Check reports whether pin is accessible. Locked checks against the user
// pins, unlocked against all SoC pins.
func (p Policy) Check(pin int, locked bool) bool {
	if pin < 0 || pin >= 64 {
		return false
	}
	return p.active(locked)&PinToBit(pin) != 0
}

// PinToBit returns the mask bit of pin, 0 if pin is out of range.
func PinToBit(pin int) Mask {
	if pin < 0 || pin >= 64 {
		return 0
	}
	return 1 << uint(pin)
}

// BitToPin returns the GPIO number of the lowest set bit, -1 if m is 0.
func BitToPin(m Mask) int {
	if m == 0 {
		return -1
	}
	return bits.TrailingZeros64(uint64(m))
}

// Pins returns the GPIO numbers set in m in ascending order.
func (m Mask) Pins() []int {
	var out []int
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros64(v))
	}
	return out
}
