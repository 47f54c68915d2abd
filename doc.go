// Package allocbench measures pluggable heap-allocator backends over a
// fixed arena.
//
// # Overview
//
// A backend manages a single contiguous region of memory and answers
// allocate and deallocate requests described by a layout (size plus
// alignment). allocbench replays deterministic allocation patterns against
// each registered backend and records how long every replay takes. This is
// useful for:
//
//   - Comparing general-purpose and size-class allocators on the same load
//   - Catching alignment, overlap and leak bugs in a new backend
//   - Seeing how fragmented a heap gets at a pattern's busiest point
//
// # Basic Usage
//
//	r, err := allocbench.NewRunner(allocbench.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	results, err := r.RunCatalog(allocbench.DefaultCatalog())
//	for _, res := range results {
//		fmt.Println(res.Scenario, res.Backend, res.Summary().Mean)
//	}
//
// # Backends
//
// Four backends are registered by default:
//
//   - linked-list: first fit over an address-ordered free list
//   - slab: seven power-of-two size classes plus a linked-list heap
//   - best-fit: smallest sufficient free span, indexed by B-trees
//   - bump: a bump pointer that rewinds on LIFO frees and resets when empty
//
// Others are added with Register. A factory receives the arena and must
// hand out memory only inside it.
//
// # Scenarios
//
// DefaultCatalog returns four patterns: many short-lived pointer-sized
// blocks freed in allocation order, ascending sizes up to one page kept
// live and freed in reverse, a mix of sub-page and multi-page sizes, and
// pairs of multi-page blocks. A Workload yields its operations as an
// iter.Seq and is identical on every enumeration.
//
// # Arena Lifetime
//
// By default every iteration gets a fresh arena and a fresh backend, so
// no state carries over between samples. With the reuse policy one arena
// lives for the whole session and the backend must return to empty at the
// end of each iteration. Arenas are faulted in when they are created, so
// both policies time the same work. Either way the arena is released on
// every exit path, including aborts.
//
// # Failures
//
// An allocate failure aborts the iteration with an *AllocationError. A
// broken contract, detected by the backend or by heap.Check, aborts it
// with an error marked heap.ErrContractViolation. Any other panic during a
// replay is marked ErrBackendPanic.
// A backend still holding bytes after the last free reports ErrLeak. An
// aborted session refuses further iterations with ErrSessionAborted.
//
// # Metrics and Monitoring
//
// A Reporter exports wall and CPU time summaries, failure counts, and peak
// heap gauges to a prometheus registry:
//
//	reg := prometheus.NewRegistry()
//	rep, _ := allocbench.NewReporter(reg)
//	r, _ := allocbench.NewRunner(cfg, allocbench.WithReporter(rep))
package allocbench
