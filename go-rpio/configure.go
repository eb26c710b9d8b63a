package rpio

import (
	"errors"
	"fmt"

	"github.com/fabian-schmidt/go-rpihal/model"
)

// ConfigurePin applies cfg to pin: function select first, then the pull
// resistor using the mechanism of the SoC generation.
//
// The configuration is validated as a whole before any register is written.
func (c *Chip) ConfigurePin(pin int, cfg PinConfig) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	return c.configure(pin, cfg)
}

// ConfigurePins applies cfg to every pin set in bits. All pins are attempted,
// the returned error joins the individual failures.
func (c *Chip) ConfigurePins(bits Mask, cfg PinConfig) error {
	var errs []error
	for _, pin := range bits.Pins() {
		if err := c.ConfigurePin(pin, cfg); err != nil {
			errs = append(errs, fmt.Errorf("pin %d: %w", pin, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Chip) configure(pin int, cfg PinConfig) error {
	code, err := fselCode(cfg)
	if err != nil {
		return err
	}
	if cfg.Drive != DriveDefault {
		return fmt.Errorf("%w: drive strength is not supported", ErrConfigurationFailed)
	}
	if cfg.Pull > PullDown {
		return fmt.Errorf("%w: unknown pull %s", ErrConfigurationFailed, cfg.Pull)
	}
	if c.model.Generation() == model.GenerationUnknown {
		c.log.Error("unknown SoC peripheral specification", "soc", c.model.SoC.String())
		return fmt.Errorf("%w: %s", ErrUnsupportedSoC, c.model.SoC)
	}

	c.writeFsel(pin, code)
	if err := c.setPull(pin, cfg.Pull); err != nil {
		return err
	}

	c.log.Info("init pin", "pin", pin, "func", cfg.funcName(), "pull", cfg.Pull.String())
	return nil
}

// SetFunction only changes the function select field of pin.
func (c *Chip) SetFunction(pin int, mode Mode, altFunc int) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	code, err := fselCode(PinConfig{Mode: mode, AltFunc: altFunc})
	if err != nil {
		return err
	}
	c.writeFsel(pin, code)
	return nil
}

// SetPull only changes the pull resistor of pin.
func (c *Chip) SetPull(pin int, pull Pull) error {
	if err := c.checkPin(pin); err != nil {
		return err
	}
	if pull > PullDown {
		return fmt.Errorf("%w: unknown pull %s", ErrConfigurationFailed, pull)
	}
	return c.setPull(pin, pull)
}

// Function reads back the function of pin. The alternate function number is
// only meaningful when the mode is Alt.
func (c *Chip) Function(pin int) (Mode, int, error) {
	if err := c.checkPin(pin); err != nil {
		return Input, 0, err
	}
	mode, af := decodeFsel(c.readFsel(pin))
	return mode, af, nil
}

// PullOf reads back the pull resistor of pin. Only BCM2711 supports reading
// the pull state, the legacy latch is write-only.
func (c *Chip) PullOf(pin int) (Pull, error) {
	if err := c.checkPin(pin); err != nil {
		return PullNone, err
	}
	if !c.model.IsBCM2711() {
		return PullNone, fmt.Errorf("%w: pull state can't be read on %s", ErrConfigurationFailed, c.model.SoC)
	}
	shift := uint(pin%16) * 2
	v := readRegister(c.mem, regPUPPDN0+pin/16) >> shift & pullMask
	switch v {
	case bcm2711PullNone:
		return PullNone, nil
	case bcm2711PullUp:
		return PullUp, nil
	case bcm2711PullDown:
		return PullDown, nil
	}
	return PullNone, fmt.Errorf("%w: reserved pull code %d on pin %d", ErrConfigurationFailed, v, pin)
}

func fselCode(cfg PinConfig) (uint32, error) {
	switch cfg.Mode {
	case Input:
		return fselIn, nil
	case Output:
		return fselOut, nil
	case Alt:
		if cfg.AltFunc < 0 || cfg.AltFunc >= len(fselAlt) {
			return 0, fmt.Errorf("%w: alternate function %d out of range", ErrConfigurationFailed, cfg.AltFunc)
		}
		return fselAlt[cfg.AltFunc], nil
	}
	return 0, fmt.Errorf("%w: unknown mode %s", ErrConfigurationFailed, cfg.Mode)
}

func decodeFsel(code uint32) (Mode, int) {
	switch code {
	case fselIn:
		return Input, 0
	case fselOut:
		return Output, 0
	}
	for af, v := range fselAlt {
		if v == code {
			return Alt, af
		}
	}
	return Input, 0
}

func fselName(code uint32) string {
	mode, af := decodeFsel(code)
	return PinConfig{Mode: mode, AltFunc: af}.funcName()
}

// Each GPFSELn register holds a 3 bit field for 10 pins.
func (c *Chip) writeFsel(pin int, code uint32) {
	shift := uint(pin%10) * 3
	writeRegisterBits(c.mem, regGPFSEL0+pin/10, code<<shift, fselMask<<shift)
}

func (c *Chip) readFsel(pin int) uint32 {
	shift := uint(pin%10) * 3
	return readRegister(c.mem, regGPFSEL0+pin/10) >> shift & fselMask
}

func (c *Chip) setPull(pin int, pull Pull) error {
	switch c.model.Generation() {
	case model.GenerationLegacy:
		c.setPullLegacy(pin, pull)
		return nil
	case model.GenerationBCM2711:
		c.setPull2711(pin, pull)
		return nil
	}
	c.log.Error("unknown SoC peripheral specification", "soc", c.model.SoC.String())
	return fmt.Errorf("%w: %s", ErrUnsupportedSoC, c.model.SoC)
}

// setPullLegacy runs the GPPUD/GPPUDCLKn latch sequence. Only the pad that
// receives the clock pulse takes the new setting, all others keep theirs.
func (c *Chip) setPullLegacy(pin int, pull Pull) {
	code := uint32(legacyPullNone)
	switch pull {
	case PullUp:
		code = legacyPullUp
	case PullDown:
		code = legacyPullDown
	}
	clk := regGPPUDCLK0 + pin/32

	writeRegister(c.mem, regGPPUD, code)
	waitCycles(pullSettleCycles)
	writeRegister(c.mem, clk, 1<<uint(pin%32))
	waitCycles(pullSettleCycles)
	writeRegister(c.mem, regGPPUD, 0)
	writeRegister(c.mem, clk, 0)
}

// Each GPIO_PUP_PDN_CNTRL_REGn register holds a 2 bit field for 16 pins.
func (c *Chip) setPull2711(pin int, pull Pull) {
	code := uint32(bcm2711PullNone)
	switch pull {
	case PullUp:
		code = bcm2711PullUp
	case PullDown:
		code = bcm2711PullDown
	}
	shift := uint(pin%16) * 2
	writeRegisterBits(c.mem, regPUPPDN0+pin/16, code<<shift, pullMask<<shift)
}

// DefaultConfigForPin returns the power-on configuration of pin on the
// given SoC generation: an input with the documented default pull.
func DefaultConfigForPin(gen model.Generation, pin int) (PinConfig, error) {
	last := Policy{gen: gen}.LastPin()
	if last < 0 {
		return PinConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedSoC, gen)
	}
	if pin < 0 || pin > last {
		return PinConfig{}, fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	cfg := DefaultPinConfig()
	switch {
	case pin <= 8:
		cfg.Pull = PullUp
	case pin <= 27:
		cfg.Pull = PullDown
	case pin >= 30 && pin <= 33:
		cfg.Pull = PullDown
	case pin >= 34 && pin <= 36:
		cfg.Pull = PullUp
	case pin >= 37 && pin <= 43:
		cfg.Pull = PullDown
	case pin >= 46:
		cfg.Pull = PullUp
	}
	return cfg, nil
}

// DefaultConfig returns the power-on configuration of pin on this board.
func (c *Chip) DefaultConfig(pin int) (PinConfig, error) {
	return DefaultConfigForPin(c.model.Generation(), pin)
}
