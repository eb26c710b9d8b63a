package rpio

import "fmt"

// FselEntry is the function select state of one pin.
type FselEntry struct {
	Pin  int    `json:"pin"`
	Code uint32 `json:"code"`
	Func string `json:"func"`
	User bool   `json:"user"`
}

// PullEntry is the pull resistor state of one pin.
type PullEntry struct {
	Pin  int    `json:"pin"`
	Pull string `json:"pull"`
	User bool   `json:"user"`
}

// DumpFunctionSelect reads the function select field of every SoC pin set in
// bits. It bypasses the lock, nothing is written.
func (c *Chip) DumpFunctionSelect(bits Mask) ([]FselEntry, error) {
	if c == nil || c.mem == nil {
		return nil, ErrMappingFailed
	}
	user := c.policy.UserPins()
	var out []FselEntry
	for _, pin := range (bits & c.policy.SocPins()).Pins() {
		code := c.readFsel(pin)
		out = append(out, FselEntry{
			Pin:  pin,
			Code: code,
			Func: fselName(code),
			User: user&PinToBit(pin) != 0,
		})
	}
	return out, nil
}

// DumpPull reads the pull field of every SoC pin set in bits. Only BCM2711
// exposes the pull state.
func (c *Chip) DumpPull(bits Mask) ([]PullEntry, error) {
	if c == nil || c.mem == nil {
		return nil, ErrMappingFailed
	}
	if !c.model.IsBCM2711() {
		return nil, fmt.Errorf("%w: pull state can't be read on %s", ErrConfigurationFailed, c.model.SoC)
	}
	user := c.policy.UserPins()
	var out []PullEntry
	for _, pin := range (bits & c.policy.SocPins()).Pins() {
		shift := uint(pin%16) * 2
		var name string
		switch readRegister(c.mem, regPUPPDN0+pin/16) >> shift & pullMask {
		case bcm2711PullNone:
			name = PullNone.String()
		case bcm2711PullUp:
			name = PullUp.String()
		case bcm2711PullDown:
			name = PullDown.String()
		default:
			name = "reserved"
		}
		out = append(out, PullEntry{Pin: pin, Pull: name, User: user&PinToBit(pin) != 0})
	}
	return out, nil
}
