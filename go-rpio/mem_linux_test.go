//go:build linux

package rpio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabian-schmidt/go-rpihal/model"
)

// fakeDevice points gpiomemPath and memPath at a zeroed file of one block.
func fakeDevice(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpiomem")
	require.NoError(t, os.WriteFile(path, make([]byte, blockSize), 0600))

	oldGPIOMem, oldMem := gpiomemPath, memPath
	gpiomemPath = path
	memPath = filepath.Join(t.TempDir(), "missing")
	t.Cleanup(func() {
		gpiomemPath, memPath = oldGPIOMem, oldMem
	})
	return path
}

func readWord(t *testing.T, path string, word int) uint32 {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return binary.NativeEndian.Uint32(b[word*4:])
}

func TestOpenGPIOMem(t *testing.T) {
	path := fakeDevice(t)

	c, err := Open(model.Lookup(model.Pi4B), WithAccess(AccessGPIOMem))
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.UsingRestrictedAccess())
	require.NoError(t, c.ConfigurePin(17, PinConfig{Mode: Output, Pull: PullDown}))
	require.NoError(t, c.WritePin(17, true))

	assert.Equal(t, uint32(fselOut<<21), readWord(t, path, regGPFSEL0+1))
	assert.Equal(t, uint32(bcm2711PullDown<<2), readWord(t, path, regPUPPDN0+1))
	assert.Equal(t, uint32(1<<17), readWord(t, path, regGPSET0))
}

func TestOpenSharesMapping(t *testing.T) {
	fakeDevice(t)

	a, err := Open(model.Lookup(model.Pi3B))
	require.NoError(t, err)
	b, err := Open(model.Lookup(model.Pi3B))
	require.NoError(t, err)

	require.NotNil(t, shared)
	assert.Equal(t, 2, shared.refs)
	assert.Same(t, a.mem, b.mem)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, shared.refs)
	require.NoError(t, b.Close())
	assert.Nil(t, shared)
}

func TestOpenFailures(t *testing.T) {
	fakeDevice(t)
	gpiomemPath = filepath.Join(t.TempDir(), "missing")

	_, err := Open(model.Lookup(model.Pi4B), WithAccess(AccessGPIOMem))
	assert.ErrorIs(t, err, ErrMappingFailed)

	// falls back to the missing /dev/mem
	_, err = Open(model.Lookup(model.Pi4B))
	assert.ErrorIs(t, err, ErrMappingFailed)

	_, err = Open(model.Lookup(model.Pi5))
	assert.ErrorIs(t, err, ErrUnsupportedSoC)

	assert.Nil(t, shared)
}

func TestSocBase(t *testing.T) {
	tests := []struct {
		name   string
		ranges []byte
		want   int64
	}{
		{"bcm2837", []byte{0x7e, 0, 0, 0, 0x3f, 0, 0, 0, 0x01, 0, 0, 0}, 0x3F000000},
		{"bcm2711", []byte{0x7e, 0, 0, 0, 0, 0, 0, 0, 0xfe, 0, 0, 0, 0x01, 0x80, 0, 0}, 0xFE000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			dir := filepath.Join(root, "proc/device-tree/soc")
			require.NoError(t, os.MkdirAll(dir, 0755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "ranges"), tt.ranges, 0644))

			base, err := SocBase(root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, base)
		})
	}

	_, err := SocBase(t.TempDir())
	assert.Error(t, err)
}
