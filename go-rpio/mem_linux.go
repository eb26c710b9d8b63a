//go:build linux

package rpio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/fabian-schmidt/go-rpihal/model"
	"golang.org/x/sys/unix"
)

// gpioOffset is the offset of the GPIO block from the peripheral base.
const gpioOffset = 0x200000

var (
	gpiomemPath = "/dev/gpiomem"
	memPath     = "/dev/mem"
)

// mapping is the process-wide register block mapping shared by all Chips.
type mapping struct {
	mem8    []byte
	block   *memBlock
	gpiomem bool
	refs    int
}

var (
	mapMu  sync.Mutex
	shared *mapping
)

// Open maps the GPIO register block of board m and returns a Chip operating
// on it.
//
// /dev/gpiomem is tried first as it needs no root privileges, /dev/mem at the
// peripheral base of the SoC is the fallback (see WithAccess). The mapping is
// shared by every Chip of the process and released when the last one is
// closed; opening again while mapped reuses the existing mapping.
func Open(m model.Model, opts ...Option) (*Chip, error) {
	o := newOptions(opts)
	if m.Generation() == model.GenerationUnknown {
		o.log.Error("GPIO is not yet supported", "model", m.String(), "soc", m.SoC.String())
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSoC, m)
	}

	mp, err := acquire(m, o)
	if err != nil {
		o.log.Error("failed to map GPIO registers", "error", err)
		return nil, err
	}
	c, err := newChip(mp.block, m, o)
	if err != nil {
		_ = release()
		return nil, err
	}
	c.gpiomem = mp.gpiomem
	c.release = release
	return c, nil
}

func acquire(m model.Model, o options) (*mapping, error) {
	mapMu.Lock()
	defer mapMu.Unlock()

	if shared != nil {
		shared.refs++
		return shared, nil
	}

	var (
		mem8    []byte
		gpiomem bool
		err     error
	)
	if o.access != AccessMem {
		mem8, err = mapFile(gpiomemPath, 0)
		if err == nil {
			gpiomem = true
			o.log.Debug("mapped GPIO registers", "device", gpiomemPath, "offset", 0)
		} else if o.access == AccessGPIOMem {
			return nil, fmt.Errorf("%w: %v", ErrMappingFailed, err)
		}
	}
	if mem8 == nil {
		base := m.PeripheralBase()
		if dt, err := SocBase(o.root); err == nil && dt != base {
			o.log.Warn("peripheral base mismatch", "model", fmt.Sprintf("%#x", base), "devicetree", fmt.Sprintf("%#x", dt))
		}
		if mem8, err = mapFile(memPath, base+gpioOffset); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMappingFailed, err)
		}
		o.log.Debug("mapped GPIO registers", "device", memPath, "offset", fmt.Sprintf("%#x", base+gpioOffset))
	}

	words := unsafe.Slice((*uint32)(unsafe.Pointer(&mem8[0])), len(mem8)/4)
	shared = &mapping{mem8: mem8, block: &memBlock{words: words}, gpiomem: gpiomem, refs: 1}
	return shared, nil
}

// The descriptor is not needed after mapping.
func mapFile(path string, offset int64) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	mem8, err := unix.Mmap(fd, offset, blockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return mem8, nil
}

func release() error {
	mapMu.Lock()
	defer mapMu.Unlock()

	if shared == nil {
		return nil
	}
	shared.refs--
	if shared.refs > 0 {
		return nil
	}
	mem8 := shared.mem8
	shared = nil
	return unix.Munmap(mem8)
}

// SocBase reads the peripheral base address from the device tree below root.
func SocBase(root string) (int64, error) {
	ranges, err := os.ReadFile(filepath.Join(root, "proc/device-tree/soc/ranges"))
	if err != nil {
		return 0, err
	}
	if len(ranges) < 8 {
		return 0, fmt.Errorf("rpio: soc ranges too short (%d bytes)", len(ranges))
	}
	// BCM2711 uses a 64 bit parent address, the high cell is 0.
	base := binary.BigEndian.Uint32(ranges[4:8])
	if base == 0 && len(ranges) >= 12 {
		base = binary.BigEndian.Uint32(ranges[8:12])
	}
	return int64(base), nil
}
