package heap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// DefaultArenaSize is 2048 pages of 4 KiB.
const DefaultArenaSize = 2048 * 4096

// DefaultArenaAlign aligns arenas to a page.
const DefaultArenaAlign = 4096

// Arena is a fixed-size, zero-initialised byte region aligned to a fixed
// boundary. It is provisioned outside the Go heap where the platform allows
// it, so the allocator under test never competes with the runtime for it.
//
// An Arena is exclusively owned by the backend built over it and must be
// released only after that backend is dropped.
type Arena struct {
	mem     []byte // aligned window of exactly size bytes
	mapping []byte // the whole provisioned region
	align   int
	unmap   func([]byte) error
}

// NewArena provisions size bytes whose first byte sits on an align boundary.
// Every page is faulted in before NewArena returns.
func NewArena(size, align int) (*Arena, error) {
	if size <= 0 {
		return nil, errors.Newf("arena: invalid size %d", size)
	}
	if !IsPowerOfTwo(align) {
		return nil, errors.Newf("arena: invalid alignment %d", align)
	}
	mapping, unmap, err := provision(size, align)
	if err != nil {
		return nil, errors.Wrapf(err, "arena: provision %d bytes", size)
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mapping)))
	off := int(AlignUp(base, uintptr(align)) - base)
	if off+size > len(mapping) {
		if unmap != nil {
			_ = unmap(mapping)
		}
		return nil, errors.AssertionFailedf("arena: mapping of %d bytes cannot hold %d aligned to %d", len(mapping), size, align)
	}
	mem := mapping[off : off+size : off+size]
	prefault(mem)
	return &Arena{
		mem:     mem,
		mapping: mapping,
		align:   align,
		unmap:   unmap,
	}, nil
}

// prefault writes one byte per page so the first touches of a backend are
// not page faults inside a timed replay. The bytes are already zero.
func prefault(mem []byte) {
	for i := 0; i < len(mem); i += pageSize {
		mem[i] = 0
	}
}

// Bytes returns the arena memory. Backends carve their blocks from it.
func (a *Arena) Bytes() []byte {
	a.panicIfReleased()
	return a.mem
}

// Base returns the address of the first byte.
func (a *Arena) Base() uintptr {
	a.panicIfReleased()
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
}

// Size returns the arena capacity in bytes.
func (a *Arena) Size() int {
	return len(a.mem)
}

// Align returns the boundary the arena base is aligned to.
func (a *Arena) Align() int {
	return a.align
}

// Contains reports whether the n bytes starting at h lie inside the arena.
func (a *Arena) Contains(h Handle, n int) bool {
	base := a.Base()
	addr := h.Addr()
	return addr >= base && n >= 0 && addr-base+uintptr(n) <= uintptr(len(a.mem))
}

// Offset returns the arena-relative offset of h.
func (a *Arena) Offset(h Handle) int {
	if !a.Contains(h, 0) {
		panic(Violation("arena: handle %s outside [%#x, +%d)", h, a.Base(), len(a.mem)))
	}
	return int(h.Addr() - a.Base())
}

// Slice returns the n bytes at h as a slice of the arena.
func (a *Arena) Slice(h Handle, n int) []byte {
	if !a.Contains(h, n) {
		panic(Violation("arena: block %s+%d outside [%#x, +%d)", h, n, a.Base(), len(a.mem)))
	}
	off := int(h.Addr() - a.Base())
	return a.mem[off : off+n : off+n]
}

// Released reports whether Release has been called.
func (a *Arena) Released() bool {
	return a.mapping == nil
}

// Release returns the memory to the process. Any later access panics.
// Releasing twice is a no-op.
func (a *Arena) Release() error {
	if a.mapping == nil {
		return nil
	}
	mapping := a.mapping
	a.mem = nil
	a.mapping = nil
	if a.unmap == nil {
		return nil
	}
	return errors.Wrap(a.unmap(mapping), "arena: release")
}

// panicIfReleased panics if the arena has been released.
func (a *Arena) panicIfReleased() {
	if a.mapping == nil {
		panic("arena: use after Release()")
	}
}
