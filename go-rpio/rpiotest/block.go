// Package rpiotest provides a simulated GPIO register block for testing code
// built on package rpio without hardware.
package rpiotest

import "sync"

// Word offsets of the simulated registers.
const (
	GPFSEL0   = 0x00 / 4
	GPSET0    = 0x1C / 4
	GPSET1    = 0x20 / 4
	GPCLR0    = 0x28 / 4
	GPCLR1    = 0x2C / 4
	GPLEV0    = 0x34 / 4
	GPLEV1    = 0x38 / 4
	GPPUD     = 0x94 / 4
	GPPUDCLK0 = 0x98 / 4
	GPPUDCLK1 = 0x9C / 4
	PUPPDN0   = 0xE4 / 4

	// Words is the size of the simulated block, 4096 bytes.
	Words = 1024
)

// Write is one recorded register store.
type Write struct {
	Word  int
	Value uint32
}

// Block simulates the GPIO register block of a BCM283x or BCM2711.
//
// Function select and pull registers are plain storage. The set and clear
// registers drive an output latch and read back as 0. The level registers
// return the latch for pins configured as output and In for all others. A
// rising bit in GPPUDCLKn copies GPPUD into LatchedPull for that pin, like the
// legacy pull latch.
//
// The zero value is ready to use.
type Block struct {
	mu sync.Mutex

	Reg [Words]uint32
	// In holds the level of the input pads, GPIO n in bit n.
	In uint64
	// LatchedPull is the legacy pull code latched into each pad.
	LatchedPull [64]uint32
	// Writes logs every Store in order.
	Writes []Write
	// Loads counts every Load.
	Loads int
	// OnLoad is called before every Load with the lock held. It may change the
	// exported fields but must not call methods of the Block.
	OnLoad func(word int)

	out uint64
}

// Load implements rpio.Block.
func (b *Block) Load(word int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Loads++
	if b.OnLoad != nil {
		b.OnLoad(word)
	}
	switch word {
	case GPSET0, GPSET1, GPCLR0, GPCLR1:
		return 0
	case GPLEV0:
		return uint32(b.levels())
	case GPLEV1:
		return uint32(b.levels() >> 32)
	}
	return b.Reg[word]
}

// Store implements rpio.Block.
func (b *Block) Store(word int, value uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Writes = append(b.Writes, Write{Word: word, Value: value})
	switch word {
	case GPSET0:
		b.out |= uint64(value)
	case GPSET1:
		b.out |= uint64(value) << 32
	case GPCLR0:
		b.out &^= uint64(value)
	case GPCLR1:
		b.out &^= uint64(value) << 32
	case GPLEV0, GPLEV1:
		// read-only
	case GPPUDCLK0, GPPUDCLK1:
		rising := value &^ b.Reg[word]
		first := (word - GPPUDCLK0) * 32
		for i := 0; i < 32; i++ {
			if rising&(1<<uint(i)) != 0 {
				b.LatchedPull[first+i] = b.Reg[GPPUD] & 3
			}
		}
		b.Reg[word] = value
	default:
		b.Reg[word] = value
	}
}

// Len implements rpio.Block.
func (b *Block) Len() int {
	return Words
}

func (b *Block) levels() uint64 {
	var v uint64
	for pin := 0; pin < 64; pin++ {
		bit := uint64(1) << uint(pin)
		src := b.In
		if b.fsel(pin) == 1 {
			src = b.out
		}
		v |= src & bit
	}
	return v
}

func (b *Block) fsel(pin int) uint32 {
	return b.Reg[GPFSEL0+pin/10] >> (uint(pin%10) * 3) & 7
}

// Fsel returns the function select code of pin.
func (b *Block) Fsel(pin int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fsel(pin)
}

// Pull2711 returns the BCM2711 pull code of pin.
func (b *Block) Pull2711(pin int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Reg[PUPPDN0+pin/16] >> (uint(pin%16) * 2) & 3
}

// LegacyPull returns the pull code latched into pin.
func (b *Block) LegacyPull(pin int) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.LatchedPull[pin]
}

// Output returns the output latch.
func (b *Block) Output() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out
}

// SetInput sets the level of the input pads.
func (b *Block) SetInput(levels uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.In = levels
}

// ResetLog clears the recorded writes and the load counter.
func (b *Block) ResetLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Writes = nil
	b.Loads = 0
}

// WritesTo returns the recorded stores to word in order.
func (b *Block) WritesTo(word int) []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint32
	for _, w := range b.Writes {
		if w.Word == word {
			out = append(out, w.Value)
		}
	}
	return out
}
