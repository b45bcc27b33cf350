package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cepflow/cepflow/flow"
	"github.com/cepflow/cepflow/flow/cluster"
	"github.com/cepflow/cepflow/flow/graphspec"
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/trace"
)

var (
	logLevel      string // Log verbosity level
	graphPath     string // Graph description file (.yaml, .yml or .toml)
	numRanks      int    // Number of local ranks; 0 derives it from the graph
	iterations    int    // Execution cycles per rank
	apps          []int  // Application ids to execute; empty selects all
	traceLevel    string // Profiling level: none, states, spans
	exchangeDepth int    // Per-tag exchange queue depth
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "cepflow",
	Short: "SPMD dataflow graph runner for online radio-astronomy processing",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := configureLogging(logLevel, cmd.Flags().Changed("log")); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

// runOptions carries the run flags into runGraph.
type runOptions struct {
	Graph         string
	Ranks         int
	Iterations    int
	Apps          []int
	TraceLevel    string
	ExchangeDepth int
}

// runGraph loads, builds and runs a graph on a local cluster, writing the
// trace summary to w when tracing is enabled. Cancelling ctx aborts every
// rank.
func runGraph(ctx context.Context, o runOptions, w io.Writer) error {
	if !trace.IsValidTraceLevel(o.TraceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, states, spans", o.TraceLevel)
	}
	if o.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", o.Iterations)
	}
	spec, err := loadSpec(o.Graph)
	if err != nil {
		return err
	}
	ranks := o.Ranks
	if ranks == 0 {
		ranks = spec.MaxRank() + 1
	}
	if ranks <= spec.MaxRank() {
		return fmt.Errorf("graph %s places nodes on rank %d but only %d rank(s) requested", spec.Name, spec.MaxRank(), ranks)
	}

	cfg := cluster.DeploymentConfig{
		Ranks:         ranks,
		Iterations:    o.Iterations,
		ExchangeDepth: o.ExchangeDepth,
		TraceLevel:    trace.TraceLevel(o.TraceLevel),
		Apps:          o.Apps,
	}
	c, err := cluster.NewLocalCluster(cfg, func(ex *th.Exchange, opts ...flow.Option) (*flow.Simul, error) {
		return graphspec.Build(spec, ex, opts...)
	})
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range c.Ranks() {
			if err := spec.CloseFiles(r.Graph); err != nil {
				logrus.Warnf("rank %d: %v", r.ID, err)
			}
		}
	}()

	var diag strings.Builder
	if !c.Ranks()[0].Graph.CheckConnections(&diag) {
		return fmt.Errorf("graph %s has connection errors:\n%s", spec.Name, diag.String())
	}
	if diag.Len() > 0 {
		logrus.Warnf("graph %s:\n%s", spec.Name, diag.String())
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			logrus.Warnf("interrupted, aborting %d rank(s)", ranks)
			c.Abort()
		case <-runCtx.Done():
		}
	}()

	logrus.Infof("Running %s on %d rank(s) for %d cycle(s)", spec.Name, ranks, o.Iterations)
	start := time.Now()
	if err := c.Run(runCtx); err != nil {
		return err
	}
	logrus.Infof("Run complete in %v", time.Since(start))

	if cfg.TraceLevel != "" && cfg.TraceLevel != trace.TraceLevelNone {
		printSummary(w, c.Summary())
	}
	return nil
}

func loadSpec(path string) (*graphspec.GraphSpec, error) {
	spec, err := graphspec.Load(path)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph %s: %w", path, err)
	}
	return spec, nil
}

func printSummary(w io.Writer, s *trace.TraceSummary) {
	fmt.Fprintf(w, "=== Trace Summary ===\n")
	fmt.Fprintf(w, "Spans: %d\n", s.TotalSpans)
	fmt.Fprintf(w, "States: %d\n", s.UniqueStates)
	fmt.Fprintf(w, "Total time: %v\n", s.TotalTime)
	if s.Busiest != "" {
		fmt.Fprintf(w, "Busiest state: %s (%v)\n", s.Busiest, s.PerState[s.Busiest])
	}
	ranks := make([]int, 0, len(s.PerRank))
	for rank := range s.PerRank {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	for _, rank := range ranks {
		fmt.Fprintf(w, "  rank %d: %v\n", rank, s.PerRank[rank])
	}
}

// exitAborted is the exit status of a run stopped by an interrupt.
const exitAborted = 130

// exitCode maps a runGraph result to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flow.ErrAborted):
		return exitAborted
	default:
		return 1
	}
}

// runCmd executes a graph using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a graph on local ranks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err := runGraph(ctx, runOptions{
			Graph:         graphPath,
			Ranks:         numRanks,
			Iterations:    iterations,
			Apps:          apps,
			TraceLevel:    traceLevel,
			ExchangeDepth: exchangeDepth,
		}, os.Stdout)
		switch exitCode(err) {
		case 0:
		case exitAborted:
			logrus.Warnf("Run aborted: %v", err)
			os.Exit(exitAborted)
		default:
			logrus.Fatalf("Run failed: %v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic); overrides "+EnvLogLevel)

	runCmd.Flags().StringVar(&graphPath, "graph", "", "Graph description file (.yaml, .yml or .toml)")
	runCmd.Flags().IntVar(&numRanks, "ranks", 0, "Number of local ranks (0 = highest rank in the graph + 1)")
	runCmd.Flags().IntVar(&iterations, "iterations", 1, "Execution cycles per rank")
	runCmd.Flags().IntSliceVar(&apps, "apps", nil, "Comma-separated application ids to execute (default all)")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "Profiling level (none, states, spans)")
	runCmd.Flags().IntVar(&exchangeDepth, "exchange-depth", th.DefaultExchangeDepth, "Payloads buffered per exchange tag")
	_ = runCmd.MarkFlagRequired("graph")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
