// Package heap defines the contract every allocator backend satisfies and
// the fixed-size arena a backend carves its blocks from.
//
// A backend is built over exactly one Arena and hands out Handles, which are
// the addresses of reserved blocks. The caller owns the pairing of each
// Handle with its Deallocate call: the Go runtime does not track them.
package heap

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// PointerSize is the width of a machine pointer in bytes.
const PointerSize = int(unsafe.Sizeof(uintptr(0)))

var (
	// ErrExhausted is returned by Allocate when no free region satisfies the
	// request. It is an expected outcome, not a fault.
	ErrExhausted = errors.New("heap: exhausted")

	// ErrInvalidLayout reports a size or alignment outside the contract.
	ErrInvalidLayout = errors.New("heap: invalid layout")

	// ErrContractViolation marks panics raised when a caller breaks the
	// backend contract: stale handles, mismatched layouts, foreign addresses.
	ErrContractViolation = errors.New("heap: contract violation")
)

// Layout describes one allocation request.
type Layout struct {
	Size  int
	Align int
}

// NewLayout validates size and align. Size must be positive and align a
// power of two no smaller than PointerSize.
func NewLayout(size, align int) (Layout, error) {
	l := Layout{Size: size, Align: align}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// MustLayout is like NewLayout but panics on an invalid request.
func MustLayout(size, align int) Layout {
	l, err := NewLayout(size, align)
	if err != nil {
		panic(err)
	}
	return l
}

// Validate checks the layout against the contract.
func (l Layout) Validate() error {
	if l.Size <= 0 {
		return errors.Wrapf(ErrInvalidLayout, "size %d", l.Size)
	}
	if !IsPowerOfTwo(l.Align) || l.Align < PointerSize {
		return errors.Wrapf(ErrInvalidLayout, "align %d", l.Align)
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("size=%d align=%d", l.Size, l.Align)
}

// Handle is the address of a live block. The zero Handle is never returned
// by a successful Allocate.
type Handle uintptr

// Addr returns the block address.
func (h Handle) Addr() uintptr {
	return uintptr(h)
}

// Aligned reports whether the handle address is a multiple of align.
func (h Handle) Aligned(align int) bool {
	return uintptr(h)&(uintptr(align)-1) == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%#x", uintptr(h))
}

// Backend is the capability every allocator under test implements.
//
// Allocate returns a block of at least l.Size bytes at an address that is a
// multiple of l.Align and overlaps no other live block of the same backend,
// or an error matching ErrExhausted.
//
// Deallocate returns a block to the backend. It must be called exactly once
// per successful Allocate with the same layout. Anything else is a contract
// violation; backends that detect one panic with an error marked
// ErrContractViolation.
//
// Backends are not safe for concurrent use.
type Backend interface {
	Allocate(l Layout) (Handle, error)
	Deallocate(h Handle, l Layout)
}

// Inspector is implemented by backends that can report their occupancy.
type Inspector interface {
	Metrics() Metrics
}

// Violation builds the panic value for a broken contract.
func Violation(format string, args ...any) error {
	return errors.WithAssertionFailure(errors.Mark(errors.Newf(format, args...), ErrContractViolation))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

// AlignUp rounds n up to a multiple of align, which must be a power of two.
func AlignUp(n, align uintptr) uintptr {
	mask := align - 1
	return (n + mask) &^ mask
}

// AlignDown rounds n down to a multiple of align, which must be a power of two.
func AlignDown(n, align uintptr) uintptr {
	return n &^ (align - 1)
}
