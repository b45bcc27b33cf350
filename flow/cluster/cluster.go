package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/cepflow/cepflow/flow"
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BuildFunc builds the complete graph as seen by one rank. It must apply
// opts to the highest-level Simul and must build the same topology in the
// same order on every call.
type BuildFunc func(ex *th.Exchange, opts ...flow.Option) (*flow.Simul, error)

// Rank is one member of a LocalCluster.
type Rank struct {
	ID         int
	Graph      *flow.Simul
	Controller *LocalController
	Recorder   *trace.Recorder // nil when tracing is disabled
}

// LocalCluster runs every rank of an SPMD deployment as a goroutine of this
// process. Ranks share one th.Exchange; each rank has its own graph copy,
// VirtualMachine and controller.
type LocalCluster struct {
	config DeploymentConfig
	ex     *th.Exchange
	ranks  []*Rank
	hasRun bool
}

// NewLocalCluster builds one graph per rank. Builds run serially with tag
// numbering reset before each, so hop tags agree across ranks.
// Panics if config.Ranks < 1 or build is nil.
func NewLocalCluster(config DeploymentConfig, build BuildFunc) (*LocalCluster, error) {
	if config.Ranks < 1 {
		panic("LocalCluster: Ranks must be >= 1")
	}
	if build == nil {
		panic("LocalCluster: nil BuildFunc")
	}
	c := &LocalCluster{
		config: config,
		ex:     th.NewExchange(config.exchangeDepth()),
		ranks:  make([]*Rank, config.Ranks),
	}
	for id := range c.ranks {
		opts := []flow.Option{flow.WithRank(id)}
		if len(config.Apps) > 0 {
			opts = append(opts, flow.WithAppFilter(flow.OnlyApps(config.Apps...)))
		}
		var rec *trace.Recorder
		if config.TraceLevel != "" && config.TraceLevel != trace.TraceLevelNone {
			rec = trace.NewRecorder(trace.TraceConfig{Level: config.TraceLevel, Rank: id})
			opts = append(opts, flow.WithProfiler(rec))
		}
		flow.ResetTags()
		g, err := build(c.ex, opts...)
		if err != nil {
			return nil, fmt.Errorf("building rank %d: %w", id, err)
		}
		if !g.IsHighestLevel() {
			return nil, fmt.Errorf("building rank %d: %q is not a highest-level Simul", id, g.Name())
		}
		ctl := NewLocalController(g.VM())
		g.BindController(ctl)
		c.ranks[id] = &Rank{ID: id, Graph: g, Controller: ctl, Recorder: rec}
	}
	logrus.Infof("cluster: built %d rank(s)", len(c.ranks))
	return c, nil
}

// Ranks returns the members in rank order.
func (c *LocalCluster) Ranks() []*Rank { return c.ranks }

// Exchange returns the shared exchange.
func (c *LocalCluster) Exchange() *th.Exchange { return c.ex }

// Run preprocesses every rank, starts every controller, runs the configured
// number of cycles on all ranks concurrently and postprocesses. The first
// failing rank cancels the others. A rank observing Aborting returns an
// error wrapping flow.ErrAborted.
// Panics if called more than once.
func (c *LocalCluster) Run(ctx context.Context) error {
	if c.hasRun {
		panic("LocalCluster.Run() called more than once")
	}
	c.hasRun = true

	for _, r := range c.ranks {
		if err := r.Graph.Preprocess(); err != nil {
			return fmt.Errorf("rank %d preprocess: %w", r.ID, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range c.ranks {
		g.Go(func() error {
			for i := 0; i < c.config.Iterations; i++ {
				if err := r.Graph.Process(ctx); err != nil {
					return fmt.Errorf("rank %d cycle %d: %w", r.ID, i, err)
				}
			}
			logrus.Debugf("cluster: rank %d finished %d cycle(s)", r.ID, c.config.Iterations)
			return nil
		})
	}
	for _, r := range c.ranks {
		r.Controller.Start()
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, flow.ErrAborted) {
			logrus.Warnf("cluster: aborted: %v", err)
		}
		return err
	}

	for _, r := range c.ranks {
		if err := r.Graph.Postprocess(); err != nil {
			return fmt.Errorf("rank %d postprocess: %w", r.ID, err)
		}
	}
	return nil
}

// Abort fires the abort trigger on every rank.
func (c *LocalCluster) Abort() {
	for _, r := range c.ranks {
		r.Controller.Abort()
	}
}

// Summary aggregates the profiling spans of every rank.
func (c *LocalCluster) Summary() *trace.TraceSummary {
	recs := make([]*trace.Recorder, 0, len(c.ranks))
	for _, r := range c.ranks {
		recs = append(recs, r.Recorder)
	}
	return trace.Summarize(recs...)
}
