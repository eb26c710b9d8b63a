package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
	assert.Equal(t, "stderr", cfg.Logger.Output)
	assert.Equal(t, "auto", cfg.GPIO.Access)
	assert.False(t, cfg.GPIO.Unlocked)
	assert.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpihal.yaml")
	content := `
logger:
  level: debug
  format: json
gpio:
  access: gpiomem
  reset_on_start: true
  pins:
    - {pin: 17, mode: output, level: high}
    - {pin: 4, mode: input, pull: up}
    - {pin: 14, mode: alt, alt: 0}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "stderr", cfg.Logger.Output)
	assert.Equal(t, "gpiomem", cfg.GPIO.Access)
	assert.True(t, cfg.GPIO.ResetOnStart)
	require.Len(t, cfg.GPIO.Pins, 3)
	assert.Equal(t, PinConfig{Pin: 17, Mode: "output", Level: "high"}, cfg.GPIO.Pins[0])
	assert.True(t, cfg.GPIO.Pins[0].High())
	assert.False(t, cfg.GPIO.Pins[1].High())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpihal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gpio: [unclosed"), 0600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpihal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gpio:\n  access: sysfs\n"), 0600))

	_, err := Load(path)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 1)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RPIHAL_LOG_LEVEL", "warn")
	t.Setenv("RPIHAL_LOG_FORMAT", "json")
	t.Setenv("RPIHAL_LOG_OUTPUT", "stdout")
	t.Setenv("RPIHAL_GPIO_ACCESS", "mem")
	t.Setenv("RPIHAL_GPIO_UNLOCKED", "true")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "stdout", cfg.Logger.Output)
	assert.Equal(t, "mem", cfg.GPIO.Access)
	assert.True(t, cfg.GPIO.Unlocked)
}

func TestEnvOverrideIgnoresBadBool(t *testing.T) {
	t.Setenv("RPIHAL_GPIO_UNLOCKED", "maybe")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	assert.False(t, cfg.GPIO.Unlocked)
}

func TestToRPIO(t *testing.T) {
	tests := []struct {
		in   PinConfig
		want rpio.PinConfig
	}{
		{PinConfig{Mode: "input"}, rpio.PinConfig{Mode: rpio.Input, Pull: rpio.PullNone}},
		{PinConfig{Mode: "input", Pull: "up"}, rpio.PinConfig{Mode: rpio.Input, Pull: rpio.PullUp}},
		{PinConfig{Mode: "output", Pull: "down"}, rpio.PinConfig{Mode: rpio.Output, Pull: rpio.PullDown}},
		{PinConfig{Mode: "alt", Alt: 4, Pull: "none"}, rpio.PinConfig{Mode: rpio.Alt, AltFunc: 4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.ToRPIO(), "%+v", tt.in)
	}
}
