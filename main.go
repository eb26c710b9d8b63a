package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/fabian-schmidt/go-rpihal/config"
	"github.com/fabian-schmidt/go-rpihal/dht22"
	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
	"github.com/fabian-schmidt/go-rpihal/logger"
	"github.com/fabian-schmidt/go-rpihal/model"
	"github.com/fabian-schmidt/go-rpihal/periphpin"
)

const waitTimeBetweenRetry = 2 * time.Second

var (
	configPath string
	action     string
	pin        int
	value      int
	retries    int
	timeout    time.Duration

	errMaxRetriesExceeded = errors.New("max retries exceeded")
	errParameterMissing   = errors.New("invalid or missing parameter")
)

func init() {
	flag.StringVar(&configPath, "config", "rpihal.yaml", "configuration file")
	flag.StringVar(&action, "action", "info", "info|read|write|toggle|wait|reset|readall|dump|apply|dht22")
	flag.IntVar(&pin, "pin", -1, "BCM GPIO number")
	flag.IntVar(&value, "value", 1, "level for write, 0 or 1")
	flag.IntVar(&retries, "retries", 5, "dht22 read attempts")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "edge timeout for wait")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rpihal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	m, err := model.Detect("/")
	if err != nil {
		return err
	}
	access, err := rpio.ParseAccess(cfg.GPIO.Access)
	if err != nil {
		return err
	}
	chip, err := rpio.Open(m, rpio.WithLogger(log), rpio.WithAccess(access))
	if err != nil {
		return err
	}
	defer chip.Close()

	if cfg.GPIO.Unlocked {
		if err := chip.Unlock(); err != nil {
			return err
		}
	}
	if cfg.GPIO.ResetOnStart {
		if err := chip.ResetAll(); err != nil {
			return err
		}
	}

	out, err := dispatch(chip, cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func dispatch(chip *rpio.Chip, cfg *config.Config) (any, error) {
	switch action {
	case "info":
		return info(chip), nil
	case "read", "write", "wait":
		return periphAction(chip)
	case "toggle":
		if pin < 0 {
			return nil, errParameterMissing
		}
		if err := chip.TogglePin(pin); err != nil {
			return nil, err
		}
		v, err := chip.ReadPin(pin)
		return pinLevel{Pin: pin, High: v}, err
	case "reset":
		if pin < 0 {
			return map[string]string{"reset": "all"}, chip.ResetAll()
		}
		return map[string]int{"reset": pin}, chip.ResetPin(pin)
	case "readall":
		v, err := chip.ReadAll()
		return map[string]string{"levels": fmt.Sprintf("0x%016x", v)}, err
	case "dump":
		return dump(chip)
	case "apply":
		return apply(chip, cfg.GPIO.Pins)
	case "dht22":
		if pin < 0 {
			return nil, errParameterMissing
		}
		return readWithRetry(chip, pin, retries)
	}
	return nil, fmt.Errorf("%w: action %q", errParameterMissing, action)
}

type boardInfo struct {
	Model      string `json:"model"`
	Code       string `json:"code"`
	SoC        string `json:"soc"`
	Generation string `json:"generation"`
	Header     string `json:"header"`
	Base       string `json:"peripheral_base"`
	Restricted bool   `json:"gpiomem"`
	Locked     bool   `json:"locked"`
	UserPins   []int  `json:"user_pins"`
	Mismatch   string `json:"mismatch,omitempty"`
}

func info(chip *rpio.Chip) boardInfo {
	m := chip.Model()
	return boardInfo{
		Model:      m.Name,
		Code:       m.Code(),
		SoC:        m.SoC.String(),
		Generation: m.Generation().String(),
		Header:     m.Header.String(),
		Base:       fmt.Sprintf("%#x", m.PeripheralBase()),
		Restricted: chip.UsingRestrictedAccess(),
		Locked:     chip.Locked(),
		UserPins:   chip.Policy().UserPins().Pins(),
		Mismatch:   m.Mismatch,
	}
}

type pinLevel struct {
	Pin  int   `json:"pin"`
	High bool  `json:"high"`
	Edge *bool `json:"edge,omitempty"`
}

// periphAction runs read, write and wait through the periph.io registry.
func periphAction(chip *rpio.Chip) (any, error) {
	if pin < 0 {
		return nil, errParameterMissing
	}
	pins, err := periphpin.Register(chip)
	if err != nil {
		return nil, err
	}
	defer periphpin.Unregister(pins)

	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return nil, fmt.Errorf("%w: %d", rpio.ErrInvalidPin, pin)
	}

	switch action {
	case "write":
		if err := p.Out(gpio.Level(value != 0)); err != nil {
			return nil, err
		}
	case "wait":
		if err := p.In(gpio.PullNoChange, gpio.BothEdges); err != nil {
			return nil, err
		}
		edge := p.WaitForEdge(timeout)
		return pinLevel{Pin: pin, High: bool(p.Read()), Edge: &edge}, nil
	default:
		if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, err
		}
	}
	return pinLevel{Pin: pin, High: bool(p.Read())}, nil
}

type dumpOutput struct {
	Function []rpio.FselEntry `json:"function"`
	Pull     []rpio.PullEntry `json:"pull,omitempty"`
}

func dump(chip *rpio.Chip) (dumpOutput, error) {
	all := chip.Policy().SocPins()
	var out dumpOutput
	var err error
	if out.Function, err = chip.DumpFunctionSelect(all); err != nil {
		return out, err
	}
	if chip.Model().IsBCM2711() {
		if out.Pull, err = chip.DumpPull(all); err != nil {
			return out, err
		}
	}
	return out, nil
}

type applied struct {
	Pin   int    `json:"pin"`
	Error string `json:"error,omitempty"`
}

// apply configures every pin of the config file. Outputs get their level
// latched before the pin is switched to output.
func apply(chip *rpio.Chip, pins []config.PinConfig) ([]applied, error) {
	var (
		out  []applied
		errs []error
	)
	for _, p := range pins {
		err := applyPin(chip, p)
		a := applied{Pin: p.Pin}
		if err != nil {
			a.Error = err.Error()
			errs = append(errs, err)
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

func applyPin(chip *rpio.Chip, p config.PinConfig) error {
	cfg := p.ToRPIO()
	if cfg.Mode == rpio.Output {
		if err := chip.WritePin(p.Pin, p.High()); err != nil {
			return err
		}
	}
	return chip.ConfigurePin(p.Pin, cfg)
}

// AM2302/DHT22 - digital relative humidity and temperature sensor

type dhtOutput struct {
	Temperature float32 `json:"temperature"`
	Humidity    float32 `json:"humidity"`
	// Vapor Pressure Deficit
	VPD   float64 `json:"vpd"`
	Retry int     `json:"retry"`
}

func readWithRetry(chip *rpio.Chip, pinNumber int, maxRetry int) (*dhtOutput, error) {
	for iteration := 0; iteration < maxRetry; iteration++ {
		data, err := dht22.ReadData(chip, pinNumber, false)
		if err != nil {
			slog.Debug("dht22 read failed", "attempt", iteration+1, "error", err)
			time.Sleep(waitTimeBetweenRetry)
			continue
		}
		out := &dhtOutput{Temperature: data.Temperature, Humidity: data.Humidity, Retry: iteration}
		out.VPD = calcVPD(data.Temperature, data.Humidity)
		return out, nil
	}
	return nil, errMaxRetriesExceeded
}

// calcVPD returns the vapor pressure deficit in kPa.
//
// J. Win. (https://physics.stackexchange.com/users/1680/j-win),
// How can I calculate Vapor Pressure Deficit from Temperature and Relative Humidity?,
// URL (version: 2011-02-03): https://physics.stackexchange.com/q/4553
func calcVPD(temperature, humidity float32) float64 {
	t := float64(temperature)
	es := 0.6108 * math.Exp(17.27*t/(t+237.3))
	ea := float64(humidity) / 100 * es
	return es - ea
}
