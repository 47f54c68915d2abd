package allocbench

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

var (
	ErrInvalidWorkload  = errors.New("allocbench: invalid workload")
	ErrInvalidConfig    = errors.New("allocbench: invalid config")
	ErrUnknownScenario  = errors.New("allocbench: unknown scenario")
	ErrUnknownBackend   = errors.New("allocbench: unknown backend")
	ErrDuplicateBackend = errors.New("allocbench: backend already registered")

	// ErrLeak reports a backend that still holds bytes after a workload that
	// frees everything it allocates.
	ErrLeak = errors.New("allocbench: heap not empty after iteration")

	// ErrBackendPanic marks any panic during a replay that is not a detected
	// contract violation. It is usually raised by the backend, but a fault in
	// the replay loop itself carries the same mark.
	ErrBackendPanic = errors.New("allocbench: backend panic")

	// ErrSessionAborted is returned by every call on a session after a
	// failed iteration.
	ErrSessionAborted = errors.New("allocbench: session aborted")

	// ErrNoMetrics is returned by Session.Profile for backends that do not
	// implement heap.Inspector.
	ErrNoMetrics = errors.New("allocbench: backend reports no metrics")
)

// AllocationError is a failed Allocate during a replay. The canonical
// scenarios fit their arena, so on a correct backend it never happens.
type AllocationError struct {
	Scenario  string
	Backend   string
	Iteration int // -1 for the profiling pass
	Op        int // index in the operation sequence
	Layout    heap.Layout
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("scenario %s, backend %s, %s: allocate(%s) at op %d: %v",
		e.Scenario, e.Backend, passName(e.Iteration), e.Layout, e.Op, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}
