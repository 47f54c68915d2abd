package allocbench

import (
	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

// Canonical scenario names.
const (
	ScenarioSmallBlocks   = "small-blocks"
	ScenarioSizesUpTo4096 = "sizes-up-to-4096"
	ScenarioVariousSizes  = "various-sizes"
	ScenarioOver4096      = "over-4096"
)

// Scenario is a named workload together with the backends it runs against.
type Scenario struct {
	Name     string
	Workload Workload
	// Backends restricts the scenario to the named backends. Empty means
	// every registered backend.
	Backends []string
}

// Factories resolves the scenario's backends against the registry.
func (s Scenario) Factories() ([]BackendFactory, error) {
	return Backends(s.Backends...)
}

// Catalog is an ordered list of scenarios.
type Catalog []Scenario

// DefaultCatalog returns the four canonical scenarios. Every one of them
// fits a default-size arena on every default backend.
func DefaultCatalog() Catalog {
	return Catalog{
		scenario(ScenarioSmallBlocks,
			SmallChurn(heap.MustLayout(2*heap.PointerSize, heap.PointerSize), 7, 100_000)),
		scenario(ScenarioSizesUpTo4096,
			AscendingSizes([]int{32, 64, 128, 256, 512, 1024, 2048, 4096}, 16, 150)),
		scenario(ScenarioVariousSizes,
			MixedSizes([]int{8192, 64, 128, 256, 512, 1024, 2048, 4096, 16384}, 16, 40)),
		scenario(ScenarioOver4096,
			OversizedPairs(8192, 12288, 16, 50)),
	}
}

func scenario(name string, w Workload) Scenario {
	w.Name = name
	return Scenario{Name: name, Workload: w}
}

// Names returns the scenario names in order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, s := range c {
		names[i] = s.Name
	}
	return names
}

// Lookup returns the scenario with the given name.
func (c Catalog) Lookup(name string) (Scenario, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Filter returns the named scenarios in catalog order. No names selects
// the whole catalog.
func (c Catalog) Filter(names ...string) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := c.Lookup(name); !ok {
			return nil, errors.Wrapf(ErrUnknownScenario, "%q", name)
		}
		want[name] = true
	}
	var out Catalog
	for _, s := range c {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Validate checks every workload and rejects duplicate names.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, s := range c {
		if seen[s.Name] {
			return errors.Wrapf(ErrInvalidWorkload, "duplicate scenario %q", s.Name)
		}
		seen[s.Name] = true
		if err := s.Workload.Validate(); err != nil {
			return err
		}
	}
	return nil
}
