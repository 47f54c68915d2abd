package allocbench

import (
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

// OpKind tags a workload operation.
type OpKind uint8

const (
	OpAllocate OpKind = iota
	OpDeallocate
)

func (k OpKind) String() string {
	switch k {
	case OpAllocate:
		return "allocate"
	case OpDeallocate:
		return "deallocate"
	}
	return "unknown"
}

// Op is one step of a workload. An allocate stores its handle in Slot; the
// paired deallocate names the same Slot and Layout.
type Op struct {
	Kind   OpKind
	Slot   int
	Layout heap.Layout
}

// ReleaseOrder is the order blocks are freed relative to allocation order.
type ReleaseOrder uint8

const (
	FIFO ReleaseOrder = iota
	LIFO
)

func (o ReleaseOrder) String() string {
	switch o {
	case FIFO:
		return "FIFO"
	case LIFO:
		return "LIFO"
	}
	return "unknown"
}

// ReleaseScope says when allocated blocks are freed.
type ReleaseScope uint8

const (
	// ReleaseEachRound frees a round's blocks before the next round starts.
	ReleaseEachRound ReleaseScope = iota
	// ReleaseAtEnd keeps every round's blocks live and frees them all after
	// the last round.
	ReleaseAtEnd
)

func (s ReleaseScope) String() string {
	switch s {
	case ReleaseEachRound:
		return "each-round"
	case ReleaseAtEnd:
		return "at-end"
	}
	return "unknown"
}

// Workload describes a deterministic allocation pattern. Every round
// allocates Batch copies of each size in Sizes, in that order, all with the
// same alignment. Blocks are released by Scope and Order.
//
// A Workload is a value: Ops regenerates the identical sequence on every
// call.
type Workload struct {
	Name   string
	Sizes  []int
	Align  int
	Batch  int
	Rounds int
	Order  ReleaseOrder
	Scope  ReleaseScope
}

// SmallChurn allocates k blocks of one layout and frees them in allocation
// order, rounds times.
func SmallChurn(l heap.Layout, k, rounds int) Workload {
	return Workload{
		Name:   "small-churn",
		Sizes:  []int{l.Size},
		Align:  l.Align,
		Batch:  k,
		Rounds: rounds,
		Order:  FIFO,
		Scope:  ReleaseEachRound,
	}
}

// AscendingSizes allocates one block of each size per round, keeps every
// block live across rounds, then frees them in reverse order.
func AscendingSizes(sizes []int, align, rounds int) Workload {
	return Workload{
		Name:   "ascending-sizes",
		Sizes:  sizes,
		Align:  align,
		Batch:  1,
		Rounds: rounds,
		Order:  LIFO,
		Scope:  ReleaseAtEnd,
	}
}

// MixedSizes is AscendingSizes over a list mixing sub-page and multi-page
// sizes in any order.
func MixedSizes(sizes []int, align, rounds int) Workload {
	w := AscendingSizes(sizes, align, rounds)
	w.Name = "mixed-sizes"
	return w
}

// OversizedPairs allocates two multi-page blocks per round, keeps them live,
// and frees every pair in reverse order at the end.
func OversizedPairs(first, second, align, rounds int) Workload {
	w := AscendingSizes([]int{first, second}, align, rounds)
	w.Name = "oversized-pairs"
	return w
}

// Validate checks the workload parameters.
func (w Workload) Validate() error {
	if len(w.Sizes) == 0 {
		return errors.Wrapf(ErrInvalidWorkload, "%s: no sizes", w.Name)
	}
	for _, size := range w.Sizes {
		if _, err := heap.NewLayout(size, w.Align); err != nil {
			return errors.Wrapf(ErrInvalidWorkload, "%s: %v", w.Name, err)
		}
	}
	if w.Batch < 1 {
		return errors.Wrapf(ErrInvalidWorkload, "%s: batch %d", w.Name, w.Batch)
	}
	if w.Rounds < 1 {
		return errors.Wrapf(ErrInvalidWorkload, "%s: rounds %d", w.Name, w.Rounds)
	}
	if w.Order > LIFO {
		return errors.Wrapf(ErrInvalidWorkload, "%s: release order %d", w.Name, w.Order)
	}
	if w.Scope > ReleaseAtEnd {
		return errors.Wrapf(ErrInvalidWorkload, "%s: release scope %d", w.Name, w.Scope)
	}
	return nil
}

func (w Workload) perRound() int {
	return len(w.Sizes) * w.Batch
}

// Allocations returns the number of allocate operations.
func (w Workload) Allocations() int {
	return w.perRound() * w.Rounds
}

// Len returns the number of operations.
func (w Workload) Len() int {
	return 2 * w.Allocations()
}

// Slots returns the size of the handle table a replay needs.
func (w Workload) Slots() int {
	if w.Scope == ReleaseEachRound {
		return w.perRound()
	}
	return w.Allocations()
}

// PeakLiveBytes returns the requested bytes live at the busiest point.
func (w Workload) PeakLiveBytes() int {
	sum := 0
	for _, size := range w.Sizes {
		sum += size
	}
	return sum * w.Batch * (w.Slots() / w.perRound())
}

// PeakOp returns the index of the operation after which PeakLiveBytes are
// first live.
func (w Workload) PeakOp() int {
	return w.Slots() - 1
}

// Ops yields the operation sequence.
func (w Workload) Ops() iter.Seq[Op] {
	return func(yield func(Op) bool) {
		per := w.perRound()
		layouts := make([]heap.Layout, 0, per)
		for range w.Batch {
			for _, size := range w.Sizes {
				layouts = append(layouts, heap.Layout{Size: size, Align: w.Align})
			}
		}

		release := func(n int) bool {
			for i := range n {
				slot := i
				if w.Order == LIFO {
					slot = n - 1 - i
				}
				if !yield(Op{Kind: OpDeallocate, Slot: slot, Layout: layouts[slot%per]}) {
					return false
				}
			}
			return true
		}

		slot := 0
		for range w.Rounds {
			for _, l := range layouts {
				if !yield(Op{Kind: OpAllocate, Slot: slot, Layout: l}) {
					return
				}
				slot++
			}
			if w.Scope == ReleaseEachRound {
				if !release(slot) {
					return
				}
				slot = 0
			}
		}
		if w.Scope == ReleaseAtEnd {
			release(slot)
		}
	}
}
