package allocbench

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
	"github.com/pavanmanishd/allocbench/heap/bestfit"
	"github.com/pavanmanishd/allocbench/heap/bump"
	"github.com/pavanmanishd/allocbench/heap/linkedlist"
	"github.com/pavanmanishd/allocbench/heap/slab"
)

// Default backend names.
const (
	BackendLinkedList = "linked-list"
	BackendSlab       = "slab"
	BackendBestFit    = "best-fit"
	BackendBump       = "bump"
)

// BackendFactory builds a backend over an arena. The backend must only
// hand out memory inside the arena and must not outlive it.
type BackendFactory struct {
	Name string
	New  func(a *heap.Arena) (heap.Backend, error)
}

var registry struct {
	sync.RWMutex
	order     []string
	factories map[string]BackendFactory
}

func init() {
	MustRegister(BackendFactory{Name: BackendLinkedList, New: linkedlist.NewArena})
	MustRegister(BackendFactory{Name: BackendSlab, New: slab.NewArena})
	MustRegister(BackendFactory{Name: BackendBestFit, New: bestfit.NewArena})
	MustRegister(BackendFactory{Name: BackendBump, New: bump.NewArena})
}

// Register adds a backend factory. Names are unique.
func Register(f BackendFactory) error {
	if f.Name == "" || f.New == nil {
		return errors.New("allocbench: backend factory needs a name and a constructor")
	}
	registry.Lock()
	defer registry.Unlock()
	if registry.factories == nil {
		registry.factories = make(map[string]BackendFactory)
	}
	if _, ok := registry.factories[f.Name]; ok {
		return errors.Wrapf(ErrDuplicateBackend, "%q", f.Name)
	}
	registry.factories[f.Name] = f
	registry.order = append(registry.order, f.Name)
	return nil
}

// MustRegister is Register that panics on error.
func MustRegister(f BackendFactory) {
	if err := Register(f); err != nil {
		panic(err)
	}
}

// LookupBackend returns the factory registered under name.
func LookupBackend(name string) (BackendFactory, bool) {
	registry.RLock()
	defer registry.RUnlock()
	f, ok := registry.factories[name]
	return f, ok
}

// Backends returns the named factories, or every registered factory in
// registration order when no names are given.
func Backends(names ...string) ([]BackendFactory, error) {
	registry.RLock()
	defer registry.RUnlock()
	if len(names) == 0 {
		names = registry.order
	}
	out := make([]BackendFactory, 0, len(names))
	for _, name := range names {
		f, ok := registry.factories[name]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
		}
		out = append(out, f)
	}
	return out, nil
}
