package rpio

import "sync/atomic"

// Word offsets into the GPIO register block, identical on BCM283x and
// BCM2711 unless noted.
const (
	regGPFSEL0 = 0x00 / 4
	regGPSET0  = 0x1C / 4
	regGPCLR0  = 0x28 / 4
	regGPLEV0  = 0x34 / 4
	regGPLEV1  = 0x38 / 4

	// BCM283x only.
	regGPPUD     = 0x94 / 4
	regGPPUDCLK0 = 0x98 / 4

	// BCM2711 only, GPIO_PUP_PDN_CNTRL_REG0..3.
	regPUPPDN0 = 0xE4 / 4

	// blockSize is the size of the mapped block in bytes.
	blockSize = 4096
	// blockWords is the minimum number of words a Block must expose.
	blockWords = regPUPPDN0 + 4
)

const (
	fselMask = 0x07
	fselIn   = 0x00
	fselOut  = 0x01

	pullMask = 0x03

	legacyPullNone = 0x00
	legacyPullDown = 0x01
	legacyPullUp   = 0x02

	bcm2711PullNone = 0x00
	bcm2711PullUp   = 0x01
	bcm2711PullDown = 0x02

	// pullSettleCycles is the set-up and hold time of the legacy pull latch.
	pullSettleCycles = 150
)

// fselAlt maps alternate function 0-5 to its function select code. The
// hardware numbering is not sequential.
var fselAlt = [...]uint32{0x04, 0x05, 0x06, 0x07, 0x03, 0x02}

// Block is a window of 32 bit hardware registers addressed by word offset.
//
// Implementations must perform every Load and Store, accesses must not be
// merged or elided.
type Block interface {
	Load(word int) uint32
	Store(word int, value uint32)
	// Len returns the number of words in the block.
	Len() int
}

// readRegister reads a register twice and returns the second value; the
// first read after an access to another peripheral may return stale data.
func readRegister(mem Block, word int) uint32 {
	_ = mem.Load(word)
	return mem.Load(word)
}

// writeRegister writes value twice; the first write after an access to
// another peripheral may be lost.
func writeRegister(mem Block, word int, value uint32) {
	mem.Store(word, value)
	mem.Store(word, value)
}

// writeRegisterBits replaces the bits of mask with value.
//
// It is not atomic with respect to other processes mapping the block.
func writeRegisterBits(mem Block, word int, value, mask uint32) {
	v := readRegister(mem, word)
	v &^= mask
	v |= value & mask
	writeRegister(mem, word, v)
}

var spin uint32

// waitCycles busy-waits for at least n cycles. Sleeping would hand control
// to the scheduler for far longer than the hardware timing allows.
func waitCycles(n int) {
	for i := 0; i < n; i++ {
		atomic.AddUint32(&spin, 1)
	}
}

// memBlock is a Block over a mapped region.
type memBlock struct {
	words []uint32
}

func (b *memBlock) Load(word int) uint32 {
	return atomic.LoadUint32(&b.words[word])
}

func (b *memBlock) Store(word int, value uint32) {
	atomic.StoreUint32(&b.words[word], value)
}

func (b *memBlock) Len() int {
	return len(b.words)
}
