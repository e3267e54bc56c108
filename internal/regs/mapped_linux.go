//go:build linux

package regs

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapped is a register window backed by a shared memory mapping of a device
// node (usually /dev/mem) or a register image file.
//
// Register address Base maps to byte Offset of the file. For /dev/mem the
// offset equals the physical base address; for an image file it is normally 0.
type Mapped struct {
	base uint32
	size uint32
	mem  []byte // whole mapping, page aligned
	skew uint32 // distance from mapping start to Base
	f    *os.File
}

// Map opens cfg.Path read-write, creating it if needed, and maps the window.
// A regular file shorter than the window is extended, so a fresh image file
// can be used as scratch register space.
func Map(cfg MapConfig) (*Mapped, error) {
	if cfg.Size == 0 || cfg.Size%4 != 0 {
		return nil, fmt.Errorf("map %s: size %d must be a non-zero multiple of 4", cfg.Path, cfg.Size)
	}
	if cfg.Offset < 0 {
		return nil, fmt.Errorf("map %s: negative offset %d", cfg.Path, cfg.Offset)
	}

	f, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE|os.O_SYNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", cfg.Path, err)
	}
	if info.Mode().IsRegular() {
		need := cfg.Offset + int64(cfg.Size)
		if info.Size() < need {
			if err := f.Truncate(need); err != nil {
				f.Close()
				return nil, fmt.Errorf("extend %s to %d bytes: %w", cfg.Path, need, err)
			}
		}
	}

	page := int64(unix.Getpagesize())
	aligned := cfg.Offset &^ (page - 1)
	skew := uint32(cfg.Offset - aligned)
	length := int(skew + cfg.Size)

	mem, err := unix.Mmap(int(f.Fd()), aligned, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s at 0x%x: %w", cfg.Path, aligned, err)
	}

	return &Mapped{
		base: cfg.Base,
		size: cfg.Size,
		mem:  mem,
		skew: skew,
		f:    f,
	}, nil
}

// Base returns the first register address of the window.
func (m *Mapped) Base() uint32 { return m.base }

// Size returns the window size in bytes.
func (m *Mapped) Size() uint32 { return m.size }

func (m *Mapped) word(addr uint32) *uint32 {
	if addr < m.base || addr-m.base > m.size-4 {
		panic(fmt.Sprintf("regs: 0x%08x outside mapped window 0x%08x+0x%x", addr, m.base, m.size))
	}
	if addr%4 != 0 {
		panic(fmt.Sprintf("regs: unaligned register address 0x%08x", addr))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.skew+addr-m.base]))
}

// Read implements File with a single 32-bit load.
func (m *Mapped) Read(addr uint32) uint32 {
	return atomic.LoadUint32(m.word(addr))
}

// Write implements File with a single 32-bit store.
func (m *Mapped) Write(addr, value uint32) {
	atomic.StoreUint32(m.word(addr), value)
}

// Close unmaps the window and closes the file.
func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}
	err := unix.Munmap(m.mem)
	m.mem = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}
