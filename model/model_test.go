package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		dt     string
		id     ID
		soc    SoC
		header Header
	}{
		{"Raspberry Pi Model B Rev 1\x00", Pi1BRev1, BCM2835, Header26Rev1},
		{"Raspberry Pi Model B Rev 2\x00", Pi1BRev2, BCM2835, Header26Rev2},
		{"Raspberry Pi Model B Plus Rev 1.2\x00", Pi1BPlus, BCM2835, Header40},
		{"Raspberry Pi Model A Plus Rev 1.1", Pi1APlus, BCM2835, Header40},
		{"Raspberry Pi Model A Rev 2", Pi1ARev2, BCM2835, Header26Rev2},
		{"Raspberry Pi Zero Rev 1.3\n", PiZero, BCM2835, Header40},
		{"Raspberry Pi Zero W Rev 1.1", PiZeroW, BCM2835, Header40},
		{"Raspberry Pi Zero 2 W Rev 1.0", PiZero2W, BCM2837, Header40},
		{"Raspberry Pi Compute Module Rev 1.0", CM1, BCM2835, HeaderNone},
		{"Raspberry Pi 2 Model B Rev 1.1", Pi2B, BCM2836, Header40},
		{"Raspberry Pi 2 Model B Rev 1.2", Pi2BV12, BCM2837, Header40},
		{"Raspberry Pi 3 Model B Rev 1.2", Pi3B, BCM2837, Header40},
		{"Raspberry Pi 3 Model B Plus Rev 1.3", Pi3BPlus, BCM2837B0, Header40},
		{"Raspberry Pi 3 Model A Plus Rev 1.0", Pi3APlus, BCM2837B0, Header40},
		{"Raspberry Pi Compute Module 3 Rev 1.0", CM3, BCM2837, HeaderNone},
		{"Raspberry Pi Compute Module 3 Plus Rev 1.0", CM3Plus, BCM2837B0, HeaderNone},
		{"Raspberry Pi 4 Model B Rev 1.4\x00", Pi4B, BCM2711, Header40},
		{"Raspberry Pi 400 Rev 1.0", Pi400, BCM2711, Header40},
		{"Raspberry Pi Compute Module 4 Rev 1.0", CM4, BCM2711, HeaderNone},
		{"Raspberry Pi Compute Module 4S Rev 1.0", CM4S, BCM2711, HeaderNone},
		{"Raspberry Pi 5 Model B Rev 1.0", Pi5, BCM2712, Header40},
		{"Raspberry Pi 500 Rev 1.0", Pi500, BCM2712, Header40},
		{"Raspberry Pi Compute Module 5 Rev 1.0", CM5, BCM2712, HeaderNone},
	}
	for _, tt := range tests {
		m := Parse(tt.dt)
		assert.Equal(t, tt.id, m.ID, tt.dt)
		assert.Equal(t, tt.soc, m.SoC, tt.dt)
		assert.Equal(t, tt.header, m.Header, tt.dt)
	}

	m := Parse("Banana Pi M2\x00")
	assert.Equal(t, Unknown, m.ID)
	assert.Equal(t, "Banana Pi M2", m.Name)
}

func TestGeneration(t *testing.T) {
	assert.Equal(t, GenerationLegacy, Lookup(Pi1BRev1).Generation())
	assert.Equal(t, GenerationLegacy, Lookup(Pi2B).Generation())
	assert.Equal(t, GenerationLegacy, Lookup(Pi3BPlus).Generation())
	assert.Equal(t, GenerationBCM2711, Lookup(Pi400).Generation())
	assert.Equal(t, GenerationUnknown, Lookup(Pi5).Generation())
	assert.Equal(t, GenerationUnknown, Model{}.Generation())

	assert.True(t, Lookup(PiZero2W).IsLegacy())
	assert.False(t, Lookup(PiZero2W).IsBCM2711())
	assert.True(t, Lookup(CM4S).IsBCM2711())
}

func TestHeaderPredicates(t *testing.T) {
	assert.True(t, Lookup(Pi1BRev1).Is26Pin())
	assert.True(t, Lookup(Pi1ARev2).Is26Pin())
	assert.False(t, Lookup(Pi1BPlus).Is26Pin())
	assert.True(t, Lookup(Pi1BPlus).Is40Pin())
	assert.False(t, Lookup(CM3).Is40Pin())

	for _, id := range []ID{CM1, CM3, CM3Plus, CM4, CM4S, CM5} {
		assert.True(t, Lookup(id).IsComputeModule(), "%v", id)
	}
	assert.False(t, Lookup(Pi4B).IsComputeModule())
	assert.False(t, Model{}.IsComputeModule())
}

func TestPeripheralBase(t *testing.T) {
	assert.Equal(t, int64(0x20000000), Lookup(PiZeroW).PeripheralBase())
	assert.Equal(t, int64(0x3F000000), Lookup(Pi2B).PeripheralBase())
	assert.Equal(t, int64(0x3F000000), Lookup(Pi3APlus).PeripheralBase())
	assert.Equal(t, int64(0xFE000000), Lookup(Pi4B).PeripheralBase())
	assert.Zero(t, Lookup(Pi5).PeripheralBase())
}

func TestCodeAndString(t *testing.T) {
	assert.Equal(t, "3B+", Lookup(Pi3BPlus).Code())
	assert.Equal(t, "CM4", Lookup(CM4).Code())
	assert.Equal(t, "", Model{}.Code())

	assert.Equal(t, "Raspberry Pi 4 Model B (BCM2711, 40pin)", Lookup(Pi4B).String())
	assert.Equal(t, "unknown model", Model{}.String())
}

func TestLookupParseRoundTrip(t *testing.T) {
	assert.Equal(t, "Raspberry Pi 4 Model B", Lookup(Pi4B).Name)
	assert.Equal(t, "4B", Lookup(Pi4B).Code())

	for _, b := range boards {
		m := Lookup(b.id)
		assert.Equal(t, b.id, Parse(m.Name+"\x00").ID, m.Name)
		assert.NotContains(t, m.Code(), "Raspberry", m.Name)
	}
}

func writeDeviceTree(t *testing.T, model, compatible string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "proc/device-tree")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model"), []byte(model), 0644))
	if compatible != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "compatible"), []byte(compatible), 0644))
	}
	return root
}

func TestDetect(t *testing.T) {
	root := writeDeviceTree(t, "Raspberry Pi 4 Model B Rev 1.4\x00", "raspberrypi,4-model-b\x00brcm,bcm2711\x00")

	m, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, Pi4B, m.ID)
	assert.Empty(t, m.Mismatch)
}

func TestDetectB0SteppingIsNotAMismatch(t *testing.T) {
	root := writeDeviceTree(t, "Raspberry Pi 3 Model B Plus Rev 1.3\x00", "raspberrypi,3-model-b-plus\x00brcm,bcm2837\x00")

	m, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, BCM2837B0, m.SoC)
	assert.Empty(t, m.Mismatch)
}

func TestDetectMismatch(t *testing.T) {
	root := writeDeviceTree(t, "Raspberry Pi 3 Model B Rev 1.2\x00", "raspberrypi,4-model-b\x00brcm,bcm2711\x00")

	m, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, BCM2837, m.SoC)
	assert.Contains(t, m.Mismatch, "BCM2711")
}

func TestDetectWithoutCompatible(t *testing.T) {
	root := writeDeviceTree(t, "Raspberry Pi Zero W Rev 1.1\x00", "")

	m, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, PiZeroW, m.ID)
}

func TestDetectErrors(t *testing.T) {
	_, err := Detect(t.TempDir())
	assert.ErrorIs(t, err, errNoDeviceTree)

	root := writeDeviceTree(t, "Orange Pi 5\x00", "")
	m, err := Detect(root)
	assert.ErrorIs(t, err, errUnknownBoard)
	assert.Equal(t, "Orange Pi 5", m.Name)
}
