// Package periphpin exposes the pins of an rpio.Chip as periph.io GPIO pins,
// so drivers written against periph.io/x/conn/v3/gpio run on top of it.
//
// Edge detection is done by polling the level register. PWM is not supported.
package periphpin

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/pin"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
)

// PollFrequency is the rate WaitForEdge samples the pin at.
const PollFrequency = 1 * physic.KiloHertz

var (
	errPWM  = errors.New("periphpin: PWM is not supported")
	errFunc = errors.New("periphpin: unsupported function")
)

var supportedFuncs = []pin.Func{gpio.IN, gpio.OUT, "ALT0", "ALT1", "ALT2", "ALT3", "ALT4", "ALT5"}

// Pin is a GPIO of an rpio.Chip. It implements gpio.PinIO and pin.PinFunc.
type Pin struct {
	chip   *rpio.Chip
	number int
	name   string
	// mu is shared by all pins of the chip, the rpio core does no locking
	// around its read-modify-write sequences.
	mu *sync.Mutex

	edgeMu sync.Mutex
	edge   gpio.Edge
	// stop aborts a WaitForEdge in progress when In is called.
	stop chan struct{}
}

var (
	_ gpio.PinIO  = (*Pin)(nil)
	_ pin.PinFunc = (*Pin)(nil)
)

var (
	locksMu sync.Mutex
	locks   = map[*rpio.Chip]*sync.Mutex{}
)

// chipLock returns the lock shared by every Pin of chip.
func chipLock(chip *rpio.Chip) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()
	mu, ok := locks[chip]
	if !ok {
		mu = &sync.Mutex{}
		locks[chip] = mu
	}
	return mu
}

// Pins returns a Pin for every pin the chip currently allows. Pins of the same
// chip share one lock, across calls.
func Pins(chip *rpio.Chip) []*Pin {
	mu := chipLock(chip)
	policy := chip.Policy()
	var out []*Pin
	for _, n := range policy.SocPins().Pins() {
		if !policy.Check(n, chip.Locked()) {
			continue
		}
		out = append(out, &Pin{
			chip:   chip,
			number: n,
			name:   "GPIO" + strconv.Itoa(n),
			mu:     mu,
			stop:   make(chan struct{}, 1),
		})
	}
	return out
}

// Register registers the pins of chip in gpioreg under the names GPIO<n>. On
// error the pins registered so far are removed again.
func Register(chip *rpio.Chip) ([]*Pin, error) {
	pins := Pins(chip)
	for i, p := range pins {
		if err := gpioreg.Register(p); err != nil {
			_ = Unregister(pins[:i])
			return nil, fmt.Errorf("periphpin: %w", err)
		}
	}
	return pins, nil
}

// Unregister removes pins from gpioreg.
func Unregister(pins []*Pin) error {
	var errs []error
	for _, p := range pins {
		if err := gpioreg.Unregister(p.name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return p.name
}

// Halt implements conn.Resource. It aborts a pending WaitForEdge.
func (p *Pin) Halt() error {
	p.abortWait()
	return nil
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin.
func (p *Pin) Number() int {
	return p.number
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	return string(p.Func())
}

// Func implements pin.PinFunc.
func (p *Pin) Func() pin.Func {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode, af, err := p.chip.Function(p.number)
	if err != nil {
		return pin.FuncNone
	}
	switch mode {
	case rpio.Input:
		return gpio.IN
	case rpio.Output:
		return gpio.OUT
	}
	return pin.Func("ALT" + strconv.Itoa(af))
}

// SupportedFuncs implements pin.PinFunc.
func (p *Pin) SupportedFuncs() []pin.Func {
	return supportedFuncs
}

// SetFunc implements pin.PinFunc. It accepts IN, OUT and ALT0 to ALT5.
func (p *Pin) SetFunc(f pin.Func) error {
	mode, af := rpio.Input, 0
	switch {
	case f == gpio.IN:
	case f == gpio.OUT:
		mode = rpio.Output
	case strings.HasPrefix(string(f), "ALT"):
		n, err := strconv.Atoi(strings.TrimPrefix(string(f), "ALT"))
		if err != nil {
			return fmt.Errorf("%w: %s", errFunc, f)
		}
		mode, af = rpio.Alt, n
	default:
		return fmt.Errorf("%w: %s", errFunc, f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chip.SetFunction(p.number, mode, af)
}

// In implements gpio.PinIn.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge > gpio.BothEdges {
		return fmt.Errorf("periphpin: unknown edge %s", edge)
	}
	p.abortWait()
	p.edgeMu.Lock()
	p.edge = edge
	p.edgeMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	switch pull {
	case gpio.PullNoChange:
		return p.chip.SetFunction(p.number, rpio.Input, 0)
	case gpio.Float:
		return p.chip.ConfigurePin(p.number, rpio.PinConfig{Mode: rpio.Input, Pull: rpio.PullNone})
	case gpio.PullDown:
		return p.chip.ConfigurePin(p.number, rpio.PinConfig{Mode: rpio.Input, Pull: rpio.PullDown})
	case gpio.PullUp:
		return p.chip.ConfigurePin(p.number, rpio.PinConfig{Mode: rpio.Input, Pull: rpio.PullUp})
	}
	return fmt.Errorf("periphpin: unknown pull %s", pull)
}

// Read implements gpio.PinIn. It returns Low if the pin can't be read.
func (p *Pin) Read() gpio.Level {
	v, err := p.chip.ReadPin(p.number)
	if err != nil {
		return gpio.Low
	}
	return gpio.Level(v)
}

// WaitForEdge implements gpio.PinIn by sampling the pin at PollFrequency.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	p.edgeMu.Lock()
	edge := p.edge
	p.edgeMu.Unlock()
	if edge == gpio.NoEdge {
		return false
	}

	// drop a stale abort
	select {
	case <-p.stop:
	default:
	}
	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	ticker := time.NewTicker(PollFrequency.Period())
	defer ticker.Stop()

	curr := p.Read()
	for {
		select {
		case <-expired:
			return false
		case <-p.stop:
			return false
		case <-ticker.C:
			n := p.Read()
			if n == curr {
				continue
			}
			curr = n
			switch {
			case edge == gpio.BothEdges,
				edge == gpio.RisingEdge && n == gpio.High,
				edge == gpio.FallingEdge && n == gpio.Low:
				return true
			}
		}
	}
}

func (p *Pin) abortWait() {
	select {
	case p.stop <- struct{}{}:
	default:
	}
}

// Pull implements gpio.PinIn. The pull state can only be read back on
// BCM2711, PullNoChange is returned otherwise.
func (p *Pin) Pull() gpio.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	pull, err := p.chip.PullOf(p.number)
	if err != nil {
		return gpio.PullNoChange
	}
	return toGPIOPull(pull)
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	cfg, err := p.chip.DefaultConfig(p.number)
	if err != nil {
		return gpio.PullNoChange
	}
	return toGPIOPull(cfg.Pull)
}

// Out implements gpio.PinOut. The level is latched before the pin is switched
// to output so it starts at the requested level.
func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.chip.WritePin(p.number, bool(l)); err != nil {
		return err
	}
	return p.chip.SetFunction(p.number, rpio.Output, 0)
}

// PWM implements gpio.PinOut.
func (p *Pin) PWM(gpio.Duty, physic.Frequency) error {
	return errPWM
}

func toGPIOPull(pull rpio.Pull) gpio.Pull {
	switch pull {
	case rpio.PullUp:
		return gpio.PullUp
	case rpio.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}
