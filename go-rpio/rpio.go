/*
Package rpio provides GPIO access on the Raspberry Pi by mapping the SoC's
GPIO register block into the process, without any need for external c
libraries.

Supports:
	- Pin function (input/output/alternate function 0-5)
	- Pull up/down/off, on both the BCM283x clocked latch and the BCM2711 pull fields
	- Pin write (high/low), read and toggle
	- 64 bit wide level reads and masked set/clear
	- Reset of pins to their power-on defaults

Example of use:

	m, err := model.Detect("/")
	if err != nil {
		return err
	}
	chip, err := rpio.Open(m)
	if err != nil {
		return err
	}
	defer chip.Close()

	if err := chip.ConfigurePin(17, rpio.PinConfig{Mode: rpio.Output}); err != nil {
		return err
	}
	for {
		chip.TogglePin(17)
		time.Sleep(time.Second)
	}

Pins are addressed with the BCM GPIO numbers, not the physical header
positions. By default only the pins routed to the user header are accessible
(locked mode), see Policy.

The register block is shared process-wide and there is no locking around
multi-register sequences: callers that use a Chip from several goroutines
must serialise pin configuration and toggles themselves.

See the peripheral documentation for the register layout:

https://datasheets.raspberrypi.com/bcm2835/bcm2835-peripherals.pdf
and https://datasheets.raspberrypi.com/bcm2711/bcm2711-peripherals.pdf
*/
package rpio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/fabian-schmidt/go-rpihal/model"
)

var (
	// ErrInvalidPin is returned when a pin fails the pin policy check.
	ErrInvalidPin = errors.New("rpio: invalid pin")
	// ErrUnsupportedSoC is returned when the SoC generation or header layout
	// is not known.
	ErrUnsupportedSoC = errors.New("rpio: unsupported SoC")
	// ErrMappingFailed is returned by Open when the register block can't be
	// mapped, and by every operation on a Chip without a valid mapping.
	ErrMappingFailed = errors.New("rpio: register block not mapped")
	// ErrConfigurationFailed is returned when a pin configuration can't be
	// applied.
	ErrConfigurationFailed = errors.New("rpio: configuration failed")
	// ErrUnlockNotPermitted is returned by Unlock on boards with a user header.
	ErrUnlockNotPermitted = errors.New("rpio: unlocking is only permitted on compute modules")
)

// Mode is the function of a pin.
type Mode uint8

const (
	Input Mode = iota
	Output
	// Alt selects the alternate function given by PinConfig.AltFunc.
	Alt
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "IN"
	case Output:
		return "OUT"
	case Alt:
		return "ALT"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Pull is the internal pull resistor setting.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "UP"
	case PullDown:
		return "DOWN"
	default:
		return "Pull(" + strconv.Itoa(int(p)) + ")"
	}
}

// Drive is the pad drive strength. Only DriveDefault is supported, the
// other values are reserved.
type Drive uint8

const (
	DriveDefault Drive = iota
	Drive2mA
	Drive4mA
	Drive6mA
	Drive8mA
	Drive10mA
	Drive12mA
	Drive14mA
	Drive16mA
)

// PinConfig is the configuration applied by ConfigurePin.
type PinConfig struct {
	Mode Mode
	Pull Pull
	// AltFunc is the alternate function 0-5, only used with Mode Alt.
	AltFunc int
	Drive   Drive
}

// DefaultPinConfig returns an input without pull resistor.
func DefaultPinConfig() PinConfig {
	return PinConfig{Mode: Input, Pull: PullNone}
}

func (cfg PinConfig) funcName() string {
	if cfg.Mode == Alt {
		return "AF" + strconv.Itoa(cfg.AltFunc)
	}
	return cfg.Mode.String()
}

// Access selects the device file used to map the register block.
type Access uint8

const (
	// AccessAuto tries /dev/gpiomem and falls back to /dev/mem.
	AccessAuto Access = iota
	// AccessGPIOMem only uses /dev/gpiomem, no root privileges needed.
	AccessGPIOMem
	// AccessMem only uses /dev/mem, needs root privileges.
	AccessMem
)

// ParseAccess converts "auto", "gpiomem" or "mem".
func ParseAccess(s string) (Access, error) {
	switch s {
	case "", "auto":
		return AccessAuto, nil
	case "gpiomem":
		return AccessGPIOMem, nil
	case "mem":
		return AccessMem, nil
	}
	return AccessAuto, fmt.Errorf("rpio: unknown access method %q", s)
}

// Option configures a Chip.
type Option func(*options)

type options struct {
	log    *slog.Logger
	access Access
	root   string
}

// WithLogger sets the logger, records are tagged with module=gpio.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithAccess selects the device file used by Open.
func WithAccess(a Access) Option {
	return func(o *options) { o.access = a }
}

// WithDeviceTreeRoot changes where Open looks for /proc/device-tree.
func WithDeviceTreeRoot(root string) Option {
	return func(o *options) { o.root = root }
}

func newOptions(opts []Option) options {
	o := options{root: "/"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o.log = o.log.With("module", "gpio")
	return o
}

// Chip is a handle to the mapped GPIO register block of one board.
//
// A Chip is obtained with Open (real hardware) or New (any Block). All pin
// numbers are validated against the pin policy before a register address is
// computed.
type Chip struct {
	mem     Block
	model   model.Model
	policy  Policy
	locked  bool
	gpiomem bool
	log     *slog.Logger
	release func() error
}

// New returns a Chip operating on mem.
func New(mem Block, m model.Model, opts ...Option) (*Chip, error) {
	o := newOptions(opts)
	if mem == nil || mem.Len() < blockWords {
		return nil, ErrMappingFailed
	}
	return newChip(mem, m, o)
}

func newChip(mem Block, m model.Model, o options) (*Chip, error) {
	if m.Generation() == model.GenerationUnknown {
		o.log.Error("GPIO is not yet supported", "model", m.String(), "soc", m.SoC.String())
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSoC, m)
	}
	if m.Mismatch != "" {
		o.log.Warn("model classification mismatch", "detail", m.Mismatch)
	}
	return &Chip{
		mem:    mem,
		model:  m,
		policy: NewPolicy(m),
		locked: true,
		log:    o.log,
	}, nil
}

// Close releases the register mapping. The Chip can't be used afterward.
func (c *Chip) Close() error {
	if c == nil || c.mem == nil {
		return nil
	}
	c.mem = nil
	if c.release != nil {
		return c.release()
	}
	return nil
}

// Model returns the board classification the Chip was created with.
func (c *Chip) Model() model.Model {
	return c.model
}

// Policy returns the pin policy of the board.
func (c *Chip) Policy() Policy {
	return c.policy
}

// UsingRestrictedAccess reports whether the block was mapped through
// /dev/gpiomem.
func (c *Chip) UsingRestrictedAccess() bool {
	return c != nil && c.gpiomem
}

// Locked reports whether pin access is restricted to the user pins.
func (c *Chip) Locked() bool {
	return c.locked
}

// Unlock gives access to every SoC pin. It is only permitted on compute
// modules, where all pins are routed to the module connector.
func (c *Chip) Unlock() error {
	if c == nil || c.mem == nil {
		return ErrMappingFailed
	}
	if !c.model.IsComputeModule() {
		return fmt.Errorf("%w: %s", ErrUnlockNotPermitted, c.model)
	}
	c.locked = false
	c.log.Warn("pin policy unlocked, all SoC pins are accessible")
	return nil
}

// Lock restricts pin access to the user pins again.
func (c *Chip) Lock() {
	c.locked = true
}

// checkPin validates pin against the active policy. It must be called before
// any register address is derived from pin.
func (c *Chip) checkPin(pin int) error {
	if c == nil || c.mem == nil {
		return ErrMappingFailed
	}
	if c.policy.active(c.locked) == 0 {
		c.log.Error("no pins available", "model", c.model.String(), "header", c.model.Header.String())
		return fmt.Errorf("%w: no pin mask for %s", ErrUnsupportedSoC, c.model)
	}
	if !c.policy.Check(pin, c.locked) {
		c.log.Error("invalid pin", "pin", pin, "locked", c.locked)
		return fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	return nil
}
