// Package heaptest holds the conformance suite every heap.Backend runs.
package heaptest

import (
	"math/rand/v2"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/allocbench/heap"
)

// Factory builds a backend over an arena.
type Factory func(a *heap.Arena) (heap.Backend, error)

// Options tunes the suite to a backend.
type Options struct {
	// ArenaSize defaults to 1 MiB.
	ArenaSize int
	// ArenaAlign defaults to heap.DefaultArenaAlign.
	ArenaAlign int
	// MaxBlock is the largest single block a drained backend must grant.
	// Defaults to ArenaSize minus one page of slack.
	MaxBlock int
	// MaxAlign caps the alignments exercised. Defaults to 4096.
	MaxAlign int
}

func (o Options) withDefaults() Options {
	if o.ArenaSize == 0 {
		o.ArenaSize = 1 << 20
	}
	if o.ArenaAlign == 0 {
		o.ArenaAlign = heap.DefaultArenaAlign
	}
	if o.MaxBlock == 0 {
		o.MaxBlock = o.ArenaSize - 4096
	}
	if o.MaxAlign == 0 {
		o.MaxAlign = 4096
	}
	return o
}

// New provisions an arena, builds a checked backend over it, and releases
// the arena when the test ends.
func New(t testing.TB, f Factory, size, align int) (*heap.Arena, *heap.Checked) {
	t.Helper()
	a, err := heap.NewArena(size, align)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, a.Release())
	})
	b, err := f(a)
	require.NoError(t, err)
	return a, heap.Check(b, a)
}

type block struct {
	h heap.Handle
	l heap.Layout
}

// Run exercises the alignment, non-overlap, round-trip and exhaustion
// properties.
func Run(t *testing.T, f Factory, opts Options) {
	opts = opts.withDefaults()

	t.Run("Alignment", func(t *testing.T) {
		_, b := New(t, f, opts.ArenaSize, opts.ArenaAlign)
		var blocks []block
		for align := heap.PointerSize; align <= opts.MaxAlign; align *= 2 {
			for _, size := range []int{1, 7, align, align + 1, 3 * align} {
				l := heap.MustLayout(size, align)
				h, err := b.Allocate(l)
				require.NoError(t, err, "allocate %s", l)
				require.True(t, h.Aligned(align), "handle %s for %s", h, l)
				blocks = append(blocks, block{h, l})
			}
		}
		for _, blk := range blocks {
			b.Deallocate(blk.h, blk.l)
		}
		require.Zero(t, b.Live())
	})

	t.Run("NonOverlap", func(t *testing.T) {
		a, b := New(t, f, opts.ArenaSize, opts.ArenaAlign)
		rng := rand.New(rand.NewPCG(1, 2))
		live := make([]block, 0, 256)
		alloc := func() {
			l := heap.MustLayout(1+rng.IntN(512), heap.PointerSize<<rng.IntN(3))
			h, err := b.Allocate(l)
			require.NoError(t, err, "allocate %s", l)
			fill(a.Slice(h, l.Size), h)
			live = append(live, block{h, l})
		}
		for range 200 {
			alloc()
		}
		for range 100 {
			i := rng.IntN(len(live))
			verify(t, a.Slice(live[i].h, live[i].l.Size), live[i].h)
			b.Deallocate(live[i].h, live[i].l)
			live = append(live[:i], live[i+1:]...)
		}
		for range 100 {
			alloc()
		}
		for _, blk := range live {
			verify(t, a.Slice(blk.h, blk.l.Size), blk.h)
			b.Deallocate(blk.h, blk.l)
		}
		require.Zero(t, b.Live())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		_, b := New(t, f, opts.ArenaSize, opts.ArenaAlign)
		rng := rand.New(rand.NewPCG(3, 4))
		var live []block
		total := 0
		for total < opts.ArenaSize/16 {
			l := heap.MustLayout(16<<rng.IntN(8), 16)
			h, err := b.Allocate(l)
			require.NoError(t, err, "allocate %s", l)
			live = append(live, block{h, l})
			total += l.Size
		}
		rng.Shuffle(len(live), func(i, j int) {
			live[i], live[j] = live[j], live[i]
		})
		for _, blk := range live {
			b.Deallocate(blk.h, blk.l)
		}
		requireDrained(t, b)

		l := heap.MustLayout(opts.MaxBlock, 16)
		h, err := b.Allocate(l)
		require.NoError(t, err, "allocate %s after drain", l)
		b.Deallocate(h, l)
		requireDrained(t, b)
	})

	t.Run("Exhaustion", func(t *testing.T) {
		_, b := New(t, f, opts.ArenaSize, opts.ArenaAlign)
		_, err := b.Allocate(heap.MustLayout(opts.ArenaSize*2, 16))
		require.True(t, errors.Is(err, heap.ErrExhausted), "got %v", err)

		l := heap.MustLayout(4096, 16)
		var live []block
		for {
			h, err := b.Allocate(l)
			if err != nil {
				require.True(t, errors.Is(err, heap.ErrExhausted), "got %v", err)
				break
			}
			live = append(live, block{h, l})
			require.LessOrEqual(t, len(live)*l.Size, opts.ArenaSize)
		}
		require.NotEmpty(t, live)
		for i := len(live) - 1; i >= 0; i-- {
			b.Deallocate(live[i].h, live[i].l)
		}
		requireDrained(t, b)

		h, err := b.Allocate(l)
		require.NoError(t, err)
		b.Deallocate(h, l)
	})

	t.Run("StaleHandle", func(t *testing.T) {
		_, b := New(t, f, opts.ArenaSize, opts.ArenaAlign)
		l := heap.MustLayout(64, 16)
		h, err := b.Allocate(l)
		require.NoError(t, err)
		b.Deallocate(h, l)
		requireViolation(t, func() { b.Deallocate(h, l) })
	})
}

func requireDrained(t *testing.T, b *heap.Checked) {
	t.Helper()
	require.Zero(t, b.Live())
	m := b.Metrics()
	require.Zero(t, m.InUse, "metrics %+v", m)
	require.Equal(t, m.Capacity, m.Free+m.InUse, "metrics %+v", m)
}

func requireViolation(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v", r)
		require.True(t, errors.Is(err, heap.ErrContractViolation), "got %v", err)
	}()
	fn()
}

// fill stamps a block with a pattern derived from its address.
func fill(buf []byte, h heap.Handle) {
	for i := range buf {
		buf[i] = byte(uintptr(h) + uintptr(i))
	}
}

func verify(t *testing.T, buf []byte, h heap.Handle) {
	t.Helper()
	for i := range buf {
		if buf[i] != byte(uintptr(h)+uintptr(i)) {
			t.Fatalf("block %s corrupted at byte %d", h, i)
		}
	}
}
