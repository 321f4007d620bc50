package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/trafficsim/qsim/sim"
	"github.com/trafficsim/qsim/sim/events"
	"github.com/trafficsim/qsim/sim/fingerprint"
	"github.com/trafficsim/qsim/sim/metrics"
	"github.com/trafficsim/qsim/sim/recorder"
	"github.com/trafficsim/qsim/sim/scenario"
	"github.com/trafficsim/qsim/sim/trace"
)

// RunOptions holds everything one simulation run needs; the run and
// fingerprint commands fill it from flags.
type RunOptions struct {
	Scenario       string
	Manager        string        // causal or parallel
	Workers        int           // parallel handler groups; 0 = GOMAXPROCS
	DispatchPolicy string        // abort or remove
	Horizon        float64       // seconds; 0 = scenario horizon or none
	Timeout        time.Duration // wall clock; 0 = none
	FingerprintOut string        // "auto" derives a name from the run id
	BinSize        float64
	SQLiteOut      string
	MetricsAddr    string
	TraceLevel     string
	CompareTo      string
}

// RunResult describes a finished run.
type RunResult struct {
	RunID       string
	Summary     *trace.TraceSummary
	Fingerprint *fingerprint.Fingerprint
	// FingerprintPath is set when the fingerprint was written.
	FingerprintPath string
	// Comparison is set when CompareTo was given.
	Comparison *fingerprint.Result
	Active     []string
}

var (
	runFlags         RunOptions
	fingerprintFlags RunOptions
)

func registerRunFlags(c *cobra.Command, o *RunOptions) {
	c.Flags().StringVar(&o.Scenario, "scenario", "", "Scenario YAML file (network and plans)")
	c.Flags().StringVar(&o.Manager, "manager", "causal", "Events manager: causal or parallel")
	c.Flags().IntVar(&o.Workers, "workers", 0, "Handler groups of the parallel manager (0 = GOMAXPROCS)")
	c.Flags().StringVar(&o.DispatchPolicy, "dispatch-policy", "abort", "Handler failure policy: abort or remove")
	c.Flags().Float64Var(&o.Horizon, "horizon", 0, "Simulation horizon in seconds (0 = scenario value or unbounded)")
	c.Flags().DurationVar(&o.Timeout, "timeout", 0, "Wall-clock limit for the run (0 = none)")
	c.Flags().Float64Var(&o.BinSize, "fingerprint-bin", fingerprint.DefaultBinSize, "Fingerprint time bin size in seconds")
	c.Flags().StringVar(&o.SQLiteOut, "sqlite-out", "", "Write events to this SQLite database")
	c.Flags().StringVar(&o.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	c.Flags().StringVar(&o.TraceLevel, "trace-level", string(trace.TraceLevelTrips), "Events kept for the summary: none, trips, events")
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario and print a travel summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runFlags
		res, err := runWithSignals(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.FingerprintOut, "fingerprint-out", "", `Write the run fingerprint to this file ("auto" names it after the run id)`)
}

func runWithSignals(parent context.Context, opts RunOptions) (*RunResult, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()
	return RunScenario(ctx, opts)
}

// RunScenario loads the scenario, wires the requested handlers and runs the
// simulation through a full processing cycle.
func RunScenario(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Scenario == "" {
		return nil, errors.New("--scenario is required")
	}
	if !trace.IsValidTraceLevel(opts.TraceLevel) {
		return nil, fmt.Errorf("unknown trace level %q", opts.TraceLevel)
	}
	strategy, err := events.ParseStrategy(opts.Manager)
	if err != nil {
		return nil, err
	}
	policy, err := events.ParseDispatchPolicy(opts.DispatchPolicy)
	if err != nil {
		return nil, err
	}

	sc, err := scenario.Load(opts.Scenario)
	if err != nil {
		return nil, err
	}
	net, plans, err := sc.Build()
	if err != nil {
		return nil, err
	}

	res := &RunResult{RunID: xid.New().String()}
	hubOpts := []events.Option{events.WithDispatchPolicy(policy)}
	if opts.Workers > 0 {
		hubOpts = append(hubOpts, events.WithWorkers(opts.Workers))
	}
	var mgr events.Manager
	if strategy == events.StrategyParallel {
		mgr = events.NewParallel(hubOpts...)
	} else {
		mgr = events.NewCausal(hubOpts...)
	}

	log := trace.NewLog(trace.TraceLevel(opts.TraceLevel))
	fp := fingerprint.NewHandler(opts.BinSize)
	mgr.AddHandler(log)
	mgr.AddHandler(fp)

	if opts.SQLiteOut != "" {
		rec, err := recorder.Open(opts.SQLiteOut)
		if err != nil {
			return nil, err
		}
		atexit.Register(func() {
			if err := rec.Close(); err != nil {
				logrus.Errorf("closing recorder: %v", err)
			}
		})
		defer func() {
			if err := rec.Close(); err != nil {
				logrus.Errorf("closing recorder: %v", err)
			}
		}()
		mgr.AddHandler(rec)
	}

	if opts.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		ph, err := metrics.NewPromHandler(reg)
		if err != nil {
			return nil, err
		}
		mgr.AddHandler(ph)
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.StartPromServer(srvCtx, opts.MetricsAddr, reg); err != nil {
				logrus.Errorf("metrics server: %v", err)
			}
		}()
	}

	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = sc.Horizon
	}
	var engineOpts []sim.Option
	if horizon > 0 {
		engineOpts = append(engineOpts, sim.WithHorizon(horizon))
	}
	engine, err := sim.NewEngine(net, plans, mgr, engineOpts...)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := mgr.InitProcessing(); err != nil {
		return nil, err
	}
	logrus.Infof("Run %s: %d links, %d plans, %s manager", res.RunID, net.Len(), len(plans), opts.Manager)
	start := time.Now()
	if err := engine.Run(ctx); err != nil {
		return nil, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	if err := mgr.FinishProcessing(); err != nil {
		return nil, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	logrus.Infof("Run %s finished in %v at simulated time %v", res.RunID, time.Since(start), engine.Now())

	res.Summary = trace.Summarize(log.Events())
	res.Fingerprint = fp.Fingerprint()
	res.Active = engine.ActiveVehicles()

	if path := opts.FingerprintOut; path != "" {
		if path == "auto" {
			path = "qsim_" + res.RunID + fingerprint.FileExtension
		}
		if err := fingerprint.WriteFile(path, res.Fingerprint); err != nil {
			return nil, err
		}
		res.FingerprintPath = path
	}
	if opts.CompareTo != "" {
		ref, err := fingerprint.ReadFile(opts.CompareTo)
		if err != nil {
			return nil, err
		}
		r := fingerprint.Compare(ref, res.Fingerprint)
		res.Comparison = &r
	}
	return res, nil
}

func printSummary(w io.Writer, res *RunResult) {
	s := res.Summary
	fmt.Fprintf(w, "=== Simulation Summary (run %s) ===\n", res.RunID)
	fmt.Fprintf(w, "Events          : %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Trips           : %d (%d completed)\n", s.Trips, s.CompletedTrips)
	fmt.Fprintf(w, "Stuck vehicles  : %d\n", s.StuckVehicles)
	if s.CompletedTrips > 0 {
		fmt.Fprintf(w, "Travel time (s) : mean %.1f, std %.1f, p95 %.1f, max %.1f\n",
			s.MeanTravelTime, s.StdTravelTime, s.P95TravelTime, s.MaxTravelTime)
	}
	fmt.Fprintf(w, "Fingerprint     : %016x\n", res.Fingerprint.Hash)
	if res.FingerprintPath != "" {
		fmt.Fprintf(w, "Written to      : %s\n", res.FingerprintPath)
	}
}
