package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pavanmanishd/allocbench"
)

type runOptions struct {
	config     string
	scenarios  []string
	backends   []string
	iterations int
	policy     string
	verify     bool
	meter      bool
	metrics    bool
}

func runCommand() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scenarios against backends",
		Long: "Replay each selected scenario on each selected backend and print " +
			"wall time, CPU time and peak heap usage.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return run(cmd.OutOrStdout(), cfg, opts.metrics)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "TOML configuration file")
	f.StringSliceVarP(&opts.scenarios, "scenario", "s", nil, "scenarios to run (default all)")
	f.StringSliceVarP(&opts.backends, "backend", "b", nil, "backends to run (default all)")
	f.IntVarP(&opts.iterations, "iterations", "n", 0, "samples per scenario and backend")
	f.StringVar(&opts.policy, "arena-policy", "", "fresh or reuse")
	f.BoolVar(&opts.verify, "verify", false, "check every handle a backend returns")
	f.BoolVar(&opts.meter, "meter", false, "count backend traffic in prometheus metrics")
	f.BoolVar(&opts.metrics, "metrics", false, "print prometheus metrics after the table")
	return cmd
}

// load reads the config file, then applies the flags that were set.
func (o runOptions) load(cmd *cobra.Command) (allocbench.Config, error) {
	cfg := allocbench.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = allocbench.LoadConfig(o.config); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("scenario") {
		cfg.Scenarios = o.scenarios
	}
	if flags.Changed("backend") {
		cfg.Backends = o.backends
	}
	if flags.Changed("iterations") {
		cfg.Iterations = o.iterations
	}
	if flags.Changed("arena-policy") {
		if err := cfg.ArenaPolicy.UnmarshalText([]byte(o.policy)); err != nil {
			return cfg, err
		}
	}
	if flags.Changed("verify") {
		cfg.Verify = o.verify
	}
	if flags.Changed("meter") {
		cfg.Meter = o.meter
	}
	return cfg, cfg.Validate()
}

func run(out io.Writer, cfg allocbench.Config, printMetrics bool) error {
	logger, err := allocbench.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	rep, err := allocbench.NewReporter(reg)
	if err != nil {
		return err
	}
	r, err := allocbench.NewRunner(cfg, allocbench.WithLogger(logger), allocbench.WithReporter(rep))
	if err != nil {
		return err
	}

	logger.Info("starting",
		zap.String("arena", humanize.IBytes(uint64(cfg.HeapSize))),
		zap.String("policy", string(cfg.ArenaPolicy)),
		zap.Int("iterations", cfg.Iterations),
	)
	results, runErr := r.RunCatalog(allocbench.DefaultCatalog())
	if err := writeTable(out, results); err != nil {
		return err
	}
	if printMetrics {
		if err := writeMetrics(out, reg); err != nil {
			return err
		}
	}
	return runErr
}

func writeTable(out io.Writer, results []*allocbench.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "scenario\tbackend\tn\tmean\tp95\tcpu\tper alloc\tallocs/s\tpeak in use\tfrag\t")
	for _, res := range results {
		s := res.Summary()
		peak, frag := "-", "-"
		if res.Profiled {
			peak = humanize.IBytes(uint64(res.Peak.InUse))
			frag = fmt.Sprintf("%.1f%%", res.Peak.Fragmentation()*100)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			res.Scenario, res.Backend, s.Iterations,
			round(s.Mean), round(s.P95), round(s.CPUMean),
			s.PerOp(res.Allocations),
			humanize.SIWithDigits(s.AllocsPerSecond, 2, ""),
			peak, frag,
		)
	}
	return w.Flush()
}

func writeMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return err
		}
	}
	return nil
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		return d.Round(time.Millisecond)
	case d > time.Millisecond:
		return d.Round(time.Microsecond)
	}
	return d
}
