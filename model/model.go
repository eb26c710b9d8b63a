/*
Package model identifies the Raspberry Pi board the program runs on.

A Model is decoded once from the device tree and carries the two
classification axes the GPIO driver needs: the SoC (and from it the
peripheral generation) and the physical pin header layout.

	m, err := model.Detect("/")
	if err != nil {
		return err
	}
	if m.IsBCM2711() {
		...
	}
*/
package model

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SoC is the Broadcom chip a board is built around.
type SoC uint8

const (
	SoCUnknown SoC = iota
	BCM2835
	BCM2836
	BCM2837
	BCM2837B0
	BCM2711
	BCM2712
)

var socNames = [...]string{"unknown", "BCM2835", "BCM2836", "BCM2837", "BCM2837B0", "BCM2711", "BCM2712"}

func (s SoC) String() string {
	if int(s) >= len(socNames) {
		return fmt.Sprintf("SoC(%d)", uint8(s))
	}
	return socNames[s]
}

// Generation is the GPIO peripheral register layout of a SoC.
type Generation uint8

const (
	GenerationUnknown Generation = iota
	// GenerationLegacy covers BCM2835, BCM2836 and BCM2837(B0): clocked pull
	// latch (GPPUD/GPPUDCLKn), 54 GPIOs.
	GenerationLegacy
	// GenerationBCM2711 has directly addressable pull fields, 58 GPIOs.
	GenerationBCM2711
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "bcm283x"
	case GenerationBCM2711:
		return "bcm2711"
	default:
		return "unknown"
	}
}

// Header is the layout of the user accessible GPIO header.
type Header uint8

const (
	HeaderUnknown Header = iota
	// Header26Rev1 is the P1 header of the first Model B PCB revision.
	Header26Rev1
	// Header26Rev2 is the P1 header of later 26 pin boards plus the P5 add-on header.
	Header26Rev2
	Header40
	// HeaderNone is used for compute modules, all pins go through the SODIMM connector.
	HeaderNone
)

func (h Header) String() string {
	switch h {
	case Header26Rev1:
		return "26pin-rev1"
	case Header26Rev2:
		return "26pin-rev2"
	case Header40:
		return "40pin"
	case HeaderNone:
		return "none"
	default:
		return "unknown"
	}
}

// ID identifies a board.
type ID uint8

const (
	Unknown ID = iota
	Pi1BRev1
	Pi1ARev2
	Pi1BRev2
	Pi1APlus
	Pi1BPlus
	PiZero
	PiZeroW
	CM1
	Pi2B
	Pi2BV12
	Pi3B
	CM3
	PiZero2W
	Pi3APlus
	Pi3BPlus
	CM3Plus
	Pi4B
	Pi400
	CM4
	CM4S
	Pi5
	Pi500
	CM5
)

// Model is a decoded board classification.
type Model struct {
	ID     ID
	Name   string
	SoC    SoC
	Header Header
	// Mismatch is set when the corroborating device tree data disagrees with
	// the SoC derived from the board name. The board name wins.
	Mismatch string
}

type board struct {
	id     ID
	name   string
	code   string
	soc    SoC
	header Header
	cm     bool
}

// Parse matches names as prefixes, a longer name must come before the shorter
// one it extends.
var boards = []board{
	{Pi1BRev1, "Raspberry Pi Model B Rev 1", "1B", BCM2835, Header26Rev1, false},
	{Pi1BPlus, "Raspberry Pi Model B Plus", "1B+", BCM2835, Header40, false},
	{Pi1BRev2, "Raspberry Pi Model B", "1B", BCM2835, Header26Rev2, false},
	{Pi1APlus, "Raspberry Pi Model A Plus", "1A+", BCM2835, Header40, false},
	{Pi1ARev2, "Raspberry Pi Model A", "1A", BCM2835, Header26Rev2, false},
	{PiZero2W, "Raspberry Pi Zero 2 W", "Zero 2 W", BCM2837, Header40, false},
	{PiZeroW, "Raspberry Pi Zero W", "Zero W", BCM2835, Header40, false},
	{PiZero, "Raspberry Pi Zero", "Zero", BCM2835, Header40, false},
	{CM1, "Raspberry Pi Compute Module Rev", "CM1", BCM2835, HeaderNone, true},
	{Pi2BV12, "Raspberry Pi 2 Model B Rev 1.2", "2B v1.2", BCM2837, Header40, false},
	{Pi2B, "Raspberry Pi 2 Model B", "2B", BCM2836, Header40, false},
	{Pi3APlus, "Raspberry Pi 3 Model A Plus", "3A+", BCM2837B0, Header40, false},
	{Pi3BPlus, "Raspberry Pi 3 Model B Plus", "3B+", BCM2837B0, Header40, false},
	{Pi3B, "Raspberry Pi 3 Model B", "3B", BCM2837, Header40, false},
	{CM3Plus, "Raspberry Pi Compute Module 3 Plus", "CM3+", BCM2837B0, HeaderNone, true},
	{CM3, "Raspberry Pi Compute Module 3", "CM3", BCM2837, HeaderNone, true},
	{Pi4B, "Raspberry Pi 4 Model B", "4B", BCM2711, Header40, false},
	{Pi400, "Raspberry Pi 400", "400", BCM2711, Header40, false},
	{CM4S, "Raspberry Pi Compute Module 4S", "CM4S", BCM2711, HeaderNone, true},
	{CM4, "Raspberry Pi Compute Module 4", "CM4", BCM2711, HeaderNone, true},
	{Pi500, "Raspberry Pi 500", "500", BCM2712, Header40, false},
	{Pi5, "Raspberry Pi 5", "5", BCM2712, Header40, false},
	{CM5, "Raspberry Pi Compute Module 5", "CM5", BCM2712, HeaderNone, true},
}

// Lookup returns the Model for a known board id.
func Lookup(id ID) Model {
	for _, b := range boards {
		if b.id == id {
			return Model{ID: b.id, Name: b.name, SoC: b.soc, Header: b.header}
		}
	}
	return Model{}
}

// Parse classifies a device tree model string such as
// "Raspberry Pi 4 Model B Rev 1.4".
func Parse(dtModel string) Model {
	s := strings.TrimRight(dtModel, "\x00\n ")
	for _, b := range boards {
		if strings.HasPrefix(s, b.name) {
			return Model{ID: b.id, Name: b.name, SoC: b.soc, Header: b.header}
		}
	}
	return Model{Name: s}
}

var (
	errNoDeviceTree = errors.New("model: device tree not available")
	errUnknownBoard = errors.New("model: unknown board")
)

// Detect reads the board model from the device tree below root ("/" on a
// live system) and corroborates the SoC with the compatible list.
func Detect(root string) (Model, error) {
	raw, err := os.ReadFile(filepath.Join(root, "proc/device-tree/model"))
	if err != nil {
		return Model{}, fmt.Errorf("%w: %v", errNoDeviceTree, err)
	}
	m := Parse(string(raw))
	if m.ID == Unknown {
		return m, fmt.Errorf("%w: %q", errUnknownBoard, m.Name)
	}
	if compat, err := os.ReadFile(filepath.Join(root, "proc/device-tree/compatible")); err == nil {
		if soc := socFromCompatible(compat); soc != SoCUnknown && soc != m.SoC && !sameFamily(soc, m.SoC) {
			m.Mismatch = fmt.Sprintf("board %s implies %s but device tree is compatible with %s", m.Name, m.SoC, soc)
		}
	}
	return m, nil
}

// socFromCompatible returns the SoC named by the "brcm,bcmXXXX" entry of a
// NUL separated compatible list.
func socFromCompatible(compat []byte) SoC {
	for _, e := range bytes.Split(compat, []byte{0}) {
		switch string(e) {
		case "brcm,bcm2835":
			return BCM2835
		case "brcm,bcm2836":
			return BCM2836
		case "brcm,bcm2837":
			return BCM2837
		case "brcm,bcm2711":
			return BCM2711
		case "brcm,bcm2712":
			return BCM2712
		}
	}
	return SoCUnknown
}

// The kernel reports the B0 stepping and the 2B v1.2 as plain bcm2837.
func sameFamily(a, b SoC) bool {
	f := func(s SoC) SoC {
		if s == BCM2837B0 {
			return BCM2837
		}
		return s
	}
	return f(a) == f(b)
}

// Generation returns the GPIO peripheral generation of the board's SoC.
func (m Model) Generation() Generation {
	switch m.SoC {
	case BCM2835, BCM2836, BCM2837, BCM2837B0:
		return GenerationLegacy
	case BCM2711:
		return GenerationBCM2711
	default:
		return GenerationUnknown
	}
}

// Code returns the short board name, e.g. "3B+" or "CM4".
func (m Model) Code() string {
	for _, b := range boards {
		if b.id == m.ID {
			return b.code
		}
	}
	return ""
}

// IsLegacy reports whether the peripheral set is BCM283x compatible.
func (m Model) IsLegacy() bool { return m.Generation() == GenerationLegacy }

// IsBCM2711 reports whether the peripheral set is the BCM2711 one.
func (m Model) IsBCM2711() bool { return m.Generation() == GenerationBCM2711 }

func (m Model) Is26Pin() bool { return m.Header == Header26Rev1 || m.Header == Header26Rev2 }

func (m Model) Is40Pin() bool { return m.Header == Header40 }

// IsComputeModule reports whether every SoC pin is routed to the module
// connector.
func (m Model) IsComputeModule() bool {
	for _, b := range boards {
		if b.id == m.ID {
			return b.cm
		}
	}
	return false
}

// PeripheralBase returns the ARM physical address of the peripheral block,
// 0 if unknown.
func (m Model) PeripheralBase() int64 {
	switch m.SoC {
	case BCM2835:
		return 0x20000000
	case BCM2836, BCM2837, BCM2837B0:
		return 0x3F000000
	case BCM2711:
		return 0xFE000000
	default:
		return 0
	}
}

func (m Model) String() string {
	if m.ID == Unknown {
		return "unknown model"
	}
	return fmt.Sprintf("%s (%s, %s)", m.Name, m.SoC, m.Header)
}
