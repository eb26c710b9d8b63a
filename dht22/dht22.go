// Package dht22 reads the AM2302/DHT22 humidity and temperature sensor over
// its single wire protocol, bit-banged on an rpio pin.
//
// https://cdn-shop.adafruit.com/datasheets/Digital+humidity+and+temperature+sensor+AM2302.pdf
package dht22

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
)

var (
	errSensorNotFound = errors.New("dht22: sensor not found or not ready")
	errChecksum       = errors.New("dht22: checksum error")
	errHumidity       = errors.New("dht22: humidity range error")
	errTemperature    = errors.New("dht22: temperature range error")
)

const (
	// A 0 bit is a 26-28us high pulse, a 1 bit is 70us.
	logicalHighThreshold = (27 + (70-27)/2) * time.Microsecond
	// The response pulse followed by 40 data bits.
	dataLength = 41
	// maxPulse bounds the wait for a single pulse.
	maxPulse = time.Millisecond
)

// Data is one sensor reading.
type Data struct {
	Temperature float32 `json:"temperature"`
	Humidity    float32 `json:"humidity"`
}

// ReadData triggers a measurement on pin and decodes the answer.
//
// In debug mode the pulse lengths are logged and checksum and range errors
// are logged instead of returned.
func ReadData(chip *rpio.Chip, pin int, debug bool) (*Data, error) {
	log := slog.Default().With("module", "dht22", "pin", pin)

	// the idle line is pulled high
	if err := chip.SetFunction(pin, rpio.Input, 0); err != nil {
		return nil, err
	}
	high, err := chip.ReadPin(pin)
	if err != nil {
		return nil, err
	}
	if !high {
		return nil, errSensorNotFound
	}

	// allocate before the time critical part
	lengths := make([]time.Duration, dataLength)

	// start signal: 1ms low
	if err := chip.WritePin(pin, false); err != nil {
		return nil, err
	}
	if err := chip.SetFunction(pin, rpio.Output, 0); err != nil {
		return nil, err
	}
	time.Sleep(time.Millisecond)
	if err := chip.SetFunction(pin, rpio.Input, 0); err != nil {
		return nil, err
	}
	time.Sleep(time.Microsecond)

	for i := range lengths {
		d, err := chip.TimePulse(pin, true, maxPulse)
		if err != nil {
			if debug {
				logPulses(log, lengths[1:])
			}
			return nil, fmt.Errorf("dht22: bit %d: %w", i, err)
		}
		lengths[i] = d
	}
	// the first pulse is the sensor response
	lengths = lengths[1:]
	if debug {
		logPulses(log, lengths)
	}

	b := decode(lengths)
	if debug {
		log.Info("decoded", "bytes", b)
	}
	data, errs := parse(b)
	for _, err := range errs {
		if !debug {
			return nil, err
		}
		log.Warn("ignoring invalid reading", "error", err)
	}
	return data, nil
}

func logPulses(log *slog.Logger, lengths []time.Duration) {
	for i := 0; i+8 <= len(lengths); i += 8 {
		log.Info("pulses", "byte", i/8+1, "lengths", lengths[i:i+8])
	}
}

// decode converts 40 pulse lengths to 5 bytes, most significant bit first.
func decode(lengths []time.Duration) [5]byte {
	var b [5]byte
	for i := range b {
		for j := 0; j < 8; j++ {
			b[i] <<= 1
			if lengths[i*8+j] > logicalHighThreshold {
				b[i] |= 0x01
			}
		}
	}
	return b
}

// parse checks and converts the raw bytes. Data is always filled, the errors
// report checksum and range problems.
func parse(b [5]byte) (*Data, []error) {
	var errs []error
	if b[4] != b[0]+b[1]+b[2]+b[3] {
		errs = append(errs, errChecksum)
	}

	var data Data
	humidity := uint16(b[0])<<8 | uint16(b[1])
	if humidity > 1000 {
		errs = append(errs, errHumidity)
	}
	data.Humidity = float32(humidity) / 10

	// sign and magnitude
	temperature := uint16(b[2])<<8 | uint16(b[3])
	if temperature&0x8000 != 0 {
		data.Temperature = float32(temperature&0x7FFF) / -10
	} else {
		data.Temperature = float32(temperature) / 10
	}
	if data.Temperature < -40 || data.Temperature > 80 {
		errs = append(errs, errTemperature)
	}
	return &data, errs
}
