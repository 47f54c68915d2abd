package allocbench

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pavanmanishd/allocbench/heap"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithReporter exports samples, failures and peak metrics to rep.
func WithReporter(rep *Reporter) Option {
	return func(r *Runner) {
		r.reporter = rep
	}
}

// Runner replays scenarios against backends and measures them.
type Runner struct {
	cfg      Config
	logger   *zap.Logger
	reporter *Reporter
}

// NewRunner validates cfg and applies opts.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if cfg.Meter && r.reporter == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "meter requires a reporter")
	}
	return r, nil
}

// Config returns the runner's configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// Run measures s on the backend built by f. Iterations <= 0 uses the
// configured count. On error the returned Result holds the samples taken
// before the failure.
func (r *Runner) Run(s Scenario, f BackendFactory, iterations int) (*Result, error) {
	if iterations <= 0 {
		iterations = r.cfg.Iterations
	}
	sess, err := r.NewSession(s, f)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	res := &Result{
		Scenario:    s.Name,
		Backend:     f.Name,
		Allocations: s.Workload.Allocations(),
		Samples:     make([]Sample, 0, iterations),
	}
	if r.cfg.Profile {
		m, err := sess.Profile()
		switch {
		case err == nil:
			res.Peak, res.Profiled = m, true
		case errors.Is(err, ErrNoMetrics):
		default:
			return res, err
		}
	}
	for range iterations {
		sample, err := sess.Iterate()
		if err != nil {
			return res, err
		}
		res.Samples = append(res.Samples, sample)
	}

	sum := res.Summary()
	sess.logger.Info("benchmark complete",
		zap.Int("iterations", sum.Iterations),
		zap.Duration("mean", sum.Mean),
		zap.Duration("p95", sum.P95),
		zap.Duration("cpu", sum.CPUMean),
		zap.Int("peak_inuse", res.Peak.InUse),
	)
	return res, nil
}

// RunCatalog runs every scenario in c selected by the configured scenario
// names, on every backend selected by the scenario and the configured
// backend names. It stops at the first failure.
func (r *Runner) RunCatalog(c Catalog) ([]*Result, error) {
	scenarios, err := c.Filter(r.cfg.Scenarios...)
	if err != nil {
		return nil, err
	}
	var results []*Result
	for _, s := range scenarios {
		factories, err := r.factories(s)
		if err != nil {
			return results, err
		}
		for _, f := range factories {
			res, err := r.Run(s, f, r.cfg.Iterations)
			if res != nil {
				results = append(results, res)
			}
			if err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (r *Runner) factories(s Scenario) ([]BackendFactory, error) {
	factories, err := s.Factories()
	if err != nil || len(r.cfg.Backends) == 0 {
		return factories, err
	}
	if _, err := Backends(r.cfg.Backends...); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(r.cfg.Backends))
	for _, name := range r.cfg.Backends {
		want[name] = true
	}
	out := factories[:0]
	for _, f := range factories {
		if want[f.Name] {
			out = append(out, f)
		}
	}
	return out, nil
}

// Session replays one scenario on one backend, one iteration at a time.
// It is not safe for concurrent use.
type Session struct {
	runner   *Runner
	scenario Scenario
	factory  BackendFactory
	logger   *zap.Logger

	handles []heap.Handle
	arena   *heap.Arena
	raw     heap.Backend // as built by the factory
	backend heap.Backend // raw plus any checking and metering layers

	iteration int
	err       error
}

// NewSession validates the scenario and, under the reuse policy,
// provisions the arena.
func (r *Runner) NewSession(s Scenario, f BackendFactory) (*Session, error) {
	if err := s.Workload.Validate(); err != nil {
		return nil, err
	}
	sess := &Session{
		runner:   r,
		scenario: s,
		factory:  f,
		logger:   r.logger.With(zap.String("scenario", s.Name), zap.String("backend", f.Name)),
		handles:  make([]heap.Handle, s.Workload.Slots()),
	}
	if r.cfg.ArenaPolicy == ArenaReuse {
		if err := sess.provision(); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Iterate replays the workload once and returns its cost. After any error
// the session is aborted.
func (s *Session) Iterate() (Sample, error) {
	if err := s.check(); err != nil {
		return Sample{}, err
	}
	idx := s.iteration
	s.iteration++

	if s.runner.cfg.ArenaPolicy == ArenaFresh {
		if err := s.provision(); err != nil {
			return Sample{}, s.abort(err)
		}
		defer s.teardown()
	}
	sample, err := s.replay(idx, nil)
	if err == nil {
		err = s.checkDrained(idx)
	}
	if err != nil {
		return Sample{}, s.abort(err)
	}
	if rep := s.runner.reporter; rep != nil {
		rep.ObserveSample(s.scenario.Name, s.factory.Name, sample)
	}
	return sample, nil
}

// Profile replays the workload once, untimed, and returns the backend's
// metrics at the workload's peak. It does not count as an iteration.
func (s *Session) Profile() (heap.Metrics, error) {
	if err := s.check(); err != nil {
		return heap.Metrics{}, err
	}
	if s.runner.cfg.ArenaPolicy == ArenaFresh {
		if err := s.provision(); err != nil {
			return heap.Metrics{}, s.abort(err)
		}
		defer s.teardown()
	}
	in, ok := s.raw.(heap.Inspector)
	if !ok {
		return heap.Metrics{}, ErrNoMetrics
	}

	var peak heap.Metrics
	_, err := s.replay(-1, func() { peak = in.Metrics() })
	if err == nil {
		err = s.checkDrained(-1)
	}
	if err != nil {
		return heap.Metrics{}, s.abort(err)
	}
	if rep := s.runner.reporter; rep != nil {
		rep.ObservePeak(s.scenario.Name, s.factory.Name, peak)
	}
	return peak, nil
}

// Close releases the arena. It is safe to call more than once.
func (s *Session) Close() {
	s.teardown()
}

// Err returns the error that aborted the session, if any.
func (s *Session) Err() error {
	return s.err
}

func (s *Session) check() error {
	if s.err != nil {
		return errors.Wrapf(ErrSessionAborted, "%v", s.err)
	}
	return nil
}

func (s *Session) provision() error {
	cfg := s.runner.cfg
	a, err := heap.NewArena(cfg.HeapSize, cfg.HeapAlign)
	if err != nil {
		return err
	}
	b, err := s.factory.New(a)
	if err != nil {
		_ = a.Release()
		return errors.Wrapf(err, "backend %s", s.factory.Name)
	}
	s.arena, s.raw, s.backend = a, b, b
	if cfg.Verify {
		s.backend = heap.Check(s.backend, a)
	}
	if cfg.Meter {
		s.backend = s.runner.reporter.Meter(s.scenario.Name, s.factory.Name, s.backend)
	}
	return nil
}

// teardown drops the backend before releasing the arena it lives in.
func (s *Session) teardown() {
	s.raw, s.backend = nil, nil
	clear(s.handles)
	if s.arena == nil {
		return
	}
	if err := s.arena.Release(); err != nil {
		s.logger.Warn("release arena", zap.Error(err))
	}
	s.arena = nil
}

func (s *Session) abort(err error) error {
	s.err = err
	s.teardown()
	fields := []zap.Field{zap.Error(err)}
	var ae *AllocationError
	if errors.As(err, &ae) {
		fields = append(fields,
			zap.Int("iteration", ae.Iteration),
			zap.Int("op", ae.Op),
			zap.Stringer("layout", ae.Layout),
		)
	}
	s.logger.Error("iteration aborted", fields...)
	if rep := s.runner.reporter; rep != nil {
		rep.RecordFailure(s.scenario.Name, s.factory.Name, failureKind(err))
	}
	return err
}

// replay runs the workload once against the current backend. probe, if
// set, is called right after the peak operation.
func (s *Session) replay(iteration int, probe func()) (sample Sample, err error) {
	w := s.scenario.Workload
	backend, handles := s.backend, s.handles
	peak := w.PeakOp()
	n := 0

	defer func() {
		if p := recover(); p != nil {
			err = s.recovered(iteration, n, p)
		}
	}()

	cpu := cpuTime()
	start := time.Now()
	for op := range w.Ops() {
		switch op.Kind {
		case OpAllocate:
			h, aerr := backend.Allocate(op.Layout)
			if aerr != nil {
				return Sample{}, &AllocationError{
					Scenario:  s.scenario.Name,
					Backend:   s.factory.Name,
					Iteration: iteration,
					Op:        n,
					Layout:    op.Layout,
					Err:       aerr,
				}
			}
			handles[op.Slot] = h
		case OpDeallocate:
			backend.Deallocate(handles[op.Slot], op.Layout)
			handles[op.Slot] = 0
		}
		if probe != nil && n == peak {
			probe()
		}
		n++
	}
	return Sample{Wall: time.Since(start), CPU: cpuTime() - cpu}, nil
}

// recovered turns a panic raised during a replay into an error. The panic
// may come from the backend or from the replay loop; both are marked
// ErrBackendPanic unless they carry a contract violation.
func (s *Session) recovered(iteration, op int, p any) error {
	err, ok := p.(error)
	if !ok {
		err = errors.Newf("%v", p)
	}
	if !errors.Is(err, heap.ErrContractViolation) {
		err = errors.Mark(err, ErrBackendPanic)
	}
	return errors.Wrapf(err, "scenario %s, backend %s, %s, op %d",
		s.scenario.Name, s.factory.Name, passName(iteration), op)
}

func (s *Session) checkDrained(iteration int) error {
	in, ok := s.raw.(heap.Inspector)
	if !ok {
		return nil
	}
	if m := in.Metrics(); m.InUse != 0 {
		return errors.Wrapf(ErrLeak, "scenario %s, backend %s, %s: %d bytes in use",
			s.scenario.Name, s.factory.Name, passName(iteration), m.InUse)
	}
	return nil
}

func passName(iteration int) string {
	if iteration < 0 {
		return "profile pass"
	}
	return fmt.Sprintf("iteration %d", iteration)
}
