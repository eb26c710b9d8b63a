package config

import (
	"fmt"
	"strings"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found. Pin numbers are checked against the board when
// the pins are applied, not here.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateGPIO(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q must be debug, info, warn or error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateGPIO(cfg *Config, ve *ValidationError) {
	if _, err := rpio.ParseAccess(cfg.GPIO.Access); err != nil {
		ve.Add("gpio.access %q must be auto, gpiomem or mem", cfg.GPIO.Access)
	}

	seen := map[int]bool{}
	for i, p := range cfg.GPIO.Pins {
		field := fmt.Sprintf("gpio.pins[%d]", i)
		if p.Pin < 0 || p.Pin > 63 {
			ve.Add("%s.pin %d out of range 0-63", field, p.Pin)
		}
		if seen[p.Pin] {
			ve.Add("%s.pin %d configured twice", field, p.Pin)
		}
		seen[p.Pin] = true

		switch p.Mode {
		case "input", "output":
		case "alt":
			if p.Alt < 0 || p.Alt > 5 {
				ve.Add("%s.alt %d must be 0-5", field, p.Alt)
			}
		default:
			ve.Add("%s.mode %q must be input, output or alt", field, p.Mode)
		}
		switch p.Pull {
		case "", "none", "up", "down":
		default:
			ve.Add("%s.pull %q must be none, up or down", field, p.Pull)
		}
		switch p.Level {
		case "":
		case "high", "low":
			if p.Mode != "output" {
				ve.Add("%s.level is only valid for outputs", field)
			}
		default:
			ve.Add("%s.level %q must be high or low", field, p.Level)
		}
	}
}
