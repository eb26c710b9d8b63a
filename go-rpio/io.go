package rpio

import (
	"errors"
	"fmt"
)

// ReadPin returns the level of pin, true for high.
func (c *Chip) ReadPin(pin int) (bool, error) {
	if err := c.checkPin(pin); err != nil {
		return false, err
	}
	return c.readPin(pin), nil
}

// WritePin drives pin high (true) or low (false) through the set and clear
// registers. The pin must be configured as output for the level to appear.
func (c *Chip) WritePin(pin int, state bool) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	c.writePin(pin, state)
	return nil
}

// TogglePin inverts the level of pin. The read and the write are two
// separate register accesses.
func (c *Chip) TogglePin(pin int) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	c.writePin(pin, !c.readPin(pin))
	return nil
}

func (c *Chip) readPin(pin int) bool {
	return readRegister(c.mem, regGPLEV0+pin/32)&(1<<uint(pin%32)) != 0
}

// Set and clear are write-1-to-affect, zero bits are ignored by the hardware.
func (c *Chip) writePin(pin int, state bool) {
	reg := regGPCLR0
	if state {
		reg = regGPSET0
	}
	writeRegister(c.mem, reg+pin/32, 1<<uint(pin%32))
}

// ReadLo returns the level register of GPIO 0-31.
func (c *Chip) ReadLo() (uint32, error) {
	if c == nil || c.mem == nil {
		return 0, ErrMappingFailed
	}
	return readRegister(c.mem, regGPLEV0), nil
}

// ReadHi returns the level register of GPIO 32 and above.
func (c *Chip) ReadHi() (uint32, error) {
	if c == nil || c.mem == nil {
		return 0, ErrMappingFailed
	}
	return readRegister(c.mem, regGPLEV1), nil
}

// ReadAll returns the levels of all pins, GPIO n in bit n. The value is the
// raw hardware state, no pin mask is applied.
func (c *Chip) ReadAll() (uint64, error) {
	lo, err := c.ReadLo()
	if err != nil {
		return 0, err
	}
	hi, err := c.ReadHi()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// SetMasked drives every user pin set in bits high. Bits outside the user
// pins are dropped silently.
func (c *Chip) SetMasked(bits Mask) error {
	return c.writeMasked(regGPSET0, bits)
}

// ClearMasked drives every user pin set in bits low. Bits outside the user
// pins are dropped silently.
func (c *Chip) ClearMasked(bits Mask) error {
	return c.writeMasked(regGPCLR0, bits)
}

func (c *Chip) writeMasked(reg int, bits Mask) error {
	if c == nil || c.mem == nil {
		return ErrMappingFailed
	}
	user := c.policy.UserPins()
	if user == 0 {
		return fmt.Errorf("%w: no user pins on %s", ErrUnsupportedSoC, c.model)
	}
	bits &= user
	if lo := uint32(bits); lo != 0 {
		writeRegister(c.mem, reg, lo)
	}
	if hi := uint32(bits >> 32); hi != 0 {
		writeRegister(c.mem, reg+1, hi)
	}
	return nil
}

// ResetPin restores the power-on configuration of pin and drives it low.
func (c *Chip) ResetPin(pin int) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	return c.resetPin(pin)
}

func (c *Chip) resetPin(pin int) error {
	cfg, err := c.DefaultConfig(pin)
	if err != nil {
		return err
	}
	if err := c.configure(pin, cfg); err != nil {
		return err
	}
	c.writePin(pin, false)
	return nil
}

// ResetAll resets every user pin, see ResetPin. Pins outside the user pins
// are never touched, also when the Chip is unlocked.
func (c *Chip) ResetAll() error {
	if c == nil || c.mem == nil {
		return ErrMappingFailed
	}
	bits := c.policy.SocPins() & c.policy.UserPins()
	if bits == 0 {
		c.log.Error("no pins available", "model", c.model.String(), "header", c.model.Header.String())
		return fmt.Errorf("%w: no user pins on %s", ErrUnsupportedSoC, c.model)
	}
	var errs []error
	for _, pin := range bits.Pins() {
		if err := c.resetPin(pin); err != nil {
			errs = append(errs, fmt.Errorf("pin %d: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}
