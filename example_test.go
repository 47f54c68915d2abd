package allocbench

import (
	"fmt"

	"github.com/pavanmanishd/allocbench/heap"
)

// Example shows the operations a workload yields.
func Example() {
	w := SmallChurn(heap.MustLayout(16, 8), 2, 2)
	for op := range w.Ops() {
		fmt.Printf("%-10s slot %d %s\n", op.Kind, op.Slot, op.Layout)
	}

	// Output:
	// allocate   slot 0 size=16 align=8
	// allocate   slot 1 size=16 align=8
	// deallocate slot 0 size=16 align=8
	// deallocate slot 1 size=16 align=8
	// allocate   slot 0 size=16 align=8
	// allocate   slot 1 size=16 align=8
	// deallocate slot 0 size=16 align=8
	// deallocate slot 1 size=16 align=8
}

// ExampleRunner_Run measures one scenario on one backend.
func ExampleRunner_Run() {
	cfg := DefaultConfig()
	cfg.Iterations = 3
	r, err := NewRunner(cfg)
	if err != nil {
		panic(err)
	}

	s, _ := DefaultCatalog().Lookup(ScenarioOver4096)
	f, _ := LookupBackend(BackendLinkedList)
	res, err := r.Run(s, f, 0)
	if err != nil {
		panic(err)
	}

	fmt.Printf("samples: %d\n", len(res.Samples))
	fmt.Printf("allocations per sample: %d\n", res.Allocations)
	fmt.Printf("peak in use: %d bytes\n", res.Peak.InUse)
	fmt.Printf("free blocks at peak: %d\n", res.Peak.FreeBlocks)
	fmt.Printf("fragmentation at peak: %.2f\n", res.Peak.Fragmentation())

	// Output:
	// samples: 3
	// allocations per sample: 100
	// peak in use: 1024000 bytes
	// free blocks at peak: 1
	// fragmentation at peak: 0.00
}

// ExampleSession drives iterations by hand, as a testing.B loop does.
func ExampleSession() {
	cfg := DefaultConfig()
	cfg.ArenaPolicy = ArenaReuse
	cfg.Verify = true
	r, err := NewRunner(cfg)
	if err != nil {
		panic(err)
	}

	s, _ := DefaultCatalog().Lookup(ScenarioSizesUpTo4096)
	f, _ := LookupBackend(BackendSlab)
	sess, err := r.NewSession(s, f)
	if err != nil {
		panic(err)
	}
	defer sess.Close()

	for i := range 3 {
		if _, err := sess.Iterate(); err != nil {
			panic(err)
		}
		fmt.Printf("iteration %d ok\n", i)
	}

	// Output:
	// iteration 0 ok
	// iteration 1 ok
	// iteration 2 ok
}
