//go:build !linux

package rpio

import (
	"errors"
	"fmt"

	"github.com/fabian-schmidt/go-rpihal/model"
)

// Open is only implemented on linux.
func Open(m model.Model, opts ...Option) (*Chip, error) {
	return nil, fmt.Errorf("%w: not supported on this platform", ErrMappingFailed)
}

// SocBase is only implemented on linux.
func SocBase(root string) (int64, error) {
	return 0, errors.New("rpio: device tree not supported on this platform")
}
