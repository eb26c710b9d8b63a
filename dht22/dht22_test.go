package dht22

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rpio "github.com/fabian-schmidt/go-rpihal/go-rpio"
	"github.com/fabian-schmidt/go-rpihal/go-rpio/rpiotest"
	"github.com/fabian-schmidt/go-rpihal/model"
)

// pulses encodes bytes the way the sensor sends them.
func pulses(b ...byte) []time.Duration {
	var out []time.Duration
	for _, v := range b {
		for i := 7; i >= 0; i-- {
			if v&(1<<uint(i)) != 0 {
				out = append(out, 70*time.Microsecond)
			} else {
				out = append(out, 27*time.Microsecond)
			}
		}
	}
	return out
}

func TestDecode(t *testing.T) {
	got := decode(pulses(0x02, 0x8C, 0x80, 0x65, 0x73))
	assert.Equal(t, [5]byte{0x02, 0x8C, 0x80, 0x65, 0x73}, got)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		b           [5]byte
		humidity    float32
		temperature float32
		errs        []error
	}{
		{"positive", [5]byte{0x02, 0x8C, 0x01, 0x5F, 0xEE}, 65.2, 35.1, nil},
		{"negative", [5]byte{0x02, 0x8C, 0x80, 0x65, 0x73}, 65.2, -10.1, nil},
		{"checksum", [5]byte{0x02, 0x8C, 0x01, 0x5F, 0x00}, 65.2, 35.1, []error{errChecksum}},
		{"humidity", [5]byte{0x03, 0xE9, 0x00, 0xC8, 0xB4}, 100.1, 20, []error{errHumidity}},
		{"temperature", [5]byte{0x01, 0xF4, 0x03, 0x84, 0x7C}, 50, 90, []error{errTemperature}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, errs := parse(tt.b)
			require.NotNil(t, data)
			assert.InDelta(t, tt.humidity, data.Humidity, 0.001)
			assert.InDelta(t, tt.temperature, data.Temperature, 0.001)
			assert.Equal(t, tt.errs, errs)
		})
	}
}

func TestReadDataSensorNotFound(t *testing.T) {
	blk := &rpiotest.Block{}
	chip, err := rpio.New(blk, model.Lookup(model.Pi4B))
	require.NoError(t, err)

	_, err = ReadData(chip, 4, false)
	assert.ErrorIs(t, err, errSensorNotFound)
	assert.Equal(t, uint32(0), blk.Fsel(4))
}

func TestReadDataNoResponse(t *testing.T) {
	blk := &rpiotest.Block{}
	blk.SetInput(1 << 4)
	chip, err := rpio.New(blk, model.Lookup(model.Pi4B))
	require.NoError(t, err)

	// the line stays high, no pulse ever ends
	_, err = ReadData(chip, 4, true)
	assert.ErrorIs(t, err, rpio.ErrTimeout)
	assert.Equal(t, []uint32{1 << 4, 1 << 4}, blk.WritesTo(rpiotest.GPCLR0))
	assert.Equal(t, uint32(0), blk.Fsel(4))
}

func TestReadDataInvalidPin(t *testing.T) {
	chip, err := rpio.New(&rpiotest.Block{}, model.Lookup(model.Pi4B))
	require.NoError(t, err)

	_, err = ReadData(chip, 1, false)
	assert.ErrorIs(t, err, rpio.ErrInvalidPin)
}
