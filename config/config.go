// Package config loads the rpihal YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
)

// Config is the root configuration.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	GPIO   GPIOConfig   `yaml:"gpio"`
}

// LoggerConfig configures the slog logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stderr, stdout or a file path
}

// GPIOConfig configures the register mapping and the pins set up at start.
type GPIOConfig struct {
	Access string `yaml:"access"` // auto, gpiomem, mem
	// Unlocked gives access to all SoC pins, only honoured on compute modules.
	Unlocked     bool        `yaml:"unlocked"`
	ResetOnStart bool        `yaml:"reset_on_start"`
	Pins         []PinConfig `yaml:"pins"`
}

// PinConfig is the configuration of one pin.
type PinConfig struct {
	Pin  int    `yaml:"pin"`
	Mode string `yaml:"mode"` // input, output, alt
	Pull string `yaml:"pull"` // none, up, down
	Alt  int    `yaml:"alt"`
	// Level is the initial level of an output, high or low.
	Level string `yaml:"level"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		GPIO: GPIOConfig{
			Access: "auto",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps RPIHAL_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RPIHAL_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RPIHAL_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("RPIHAL_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("RPIHAL_GPIO_ACCESS"); v != "" {
		cfg.GPIO.Access = v
	}
	if v := os.Getenv("RPIHAL_GPIO_UNLOCKED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.GPIO.Unlocked = b
		}
	}
}

// ToRPIO converts the pin configuration. It expects a validated config.
func (p PinConfig) ToRPIO() rpio.PinConfig {
	cfg := rpio.DefaultPinConfig()
	switch p.Mode {
	case "output":
		cfg.Mode = rpio.Output
	case "alt":
		cfg.Mode = rpio.Alt
		cfg.AltFunc = p.Alt
	}
	switch p.Pull {
	case "up":
		cfg.Pull = rpio.PullUp
	case "down":
		cfg.Pull = rpio.PullDown
	}
	return cfg
}

// High reports whether an output should start high.
func (p PinConfig) High() bool {
	return p.Level == "high"
}
