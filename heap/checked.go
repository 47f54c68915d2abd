package heap

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cockroachdb/errors"
)

// Checked wraps a backend and verifies every call against the contract:
// returned blocks must be aligned, inside the arena and disjoint from every
// live block, and each Deallocate must name a live handle with its original
// layout. A failed check panics with an error marked ErrContractViolation.
//
// Checking costs a map lookup and a bitmap update per call, so it is meant
// for tests and verification runs rather than timed iterations.
type Checked struct {
	backend Backend
	arena   *Arena
	live    map[Handle]Layout
	bytes   *roaring.Bitmap // arena offsets covered by live blocks
}

var _ Backend = (*Checked)(nil)
var _ Inspector = (*Checked)(nil)

// MaxCheckedArenaSize is the largest arena Check can track. Live bytes are
// kept in a 32-bit bitmap of arena offsets.
const MaxCheckedArenaSize uint64 = 1 << 32

// Check wraps b, which must be built over a. It panics if a is larger than
// MaxCheckedArenaSize.
func Check(b Backend, a *Arena) *Checked {
	if uint64(a.Size()) > MaxCheckedArenaSize {
		panic(errors.AssertionFailedf("check: arena of %d bytes exceeds %d", a.Size(), MaxCheckedArenaSize))
	}
	return &Checked{
		backend: b,
		arena:   a,
		live:    make(map[Handle]Layout),
		bytes:   roaring.New(),
	}
}

// Allocate forwards to the wrapped backend and verifies the result.
func (c *Checked) Allocate(l Layout) (Handle, error) {
	if err := l.Validate(); err != nil {
		panic(errors.WithAssertionFailure(errors.Mark(err, ErrContractViolation)))
	}
	h, err := c.backend.Allocate(l)
	if err != nil {
		return 0, err
	}
	switch {
	case h == 0:
		panic(Violation("allocate %s: zero handle", l))
	case !h.Aligned(l.Align):
		panic(Violation("allocate %s: handle %s is misaligned", l, h))
	case !c.arena.Contains(h, l.Size):
		panic(Violation("allocate %s: handle %s outside arena", l, h))
	}
	start, end := c.span(h, l)
	if c.bytes.IntersectsWithInterval(start, end) {
		panic(Violation("allocate %s: handle %s overlaps a live block", l, h))
	}
	c.bytes.AddRange(start, end)
	c.live[h] = l
	return h, nil
}

// Deallocate verifies h is live with layout l, then forwards.
func (c *Checked) Deallocate(h Handle, l Layout) {
	want, ok := c.live[h]
	if !ok {
		panic(Violation("deallocate %s: handle %s is not live", l, h))
	}
	if want != l {
		panic(Violation("deallocate %s: handle %s was allocated with %s", l, h, want))
	}
	delete(c.live, h)
	start, end := c.span(h, l)
	c.bytes.RemoveRange(start, end)
	c.backend.Deallocate(h, l)
}

// Live returns the number of live handles.
func (c *Checked) Live() int {
	return len(c.live)
}

// LiveBytes returns the number of requested bytes held by live handles.
func (c *Checked) LiveBytes() int {
	return int(c.bytes.GetCardinality())
}

// Unwrap returns the wrapped backend.
func (c *Checked) Unwrap() Backend {
	return c.backend
}

// Metrics reports the wrapped backend's metrics when it has any, and the
// requested live bytes otherwise.
func (c *Checked) Metrics() Metrics {
	if in, ok := c.backend.(Inspector); ok {
		return in.Metrics()
	}
	free := c.arena.Size() - c.LiveBytes()
	return Metrics{
		InUse:       c.LiveBytes(),
		Capacity:    c.arena.Size(),
		Free:        free,
		FreeBlocks:  1,
		LargestFree: free,
	}
}

func (c *Checked) span(h Handle, l Layout) (uint64, uint64) {
	start := uint64(h.Addr() - c.arena.Base())
	return start, start + uint64(l.Size)
}
