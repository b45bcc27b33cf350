package flow

// Profiler brackets profiled regions with named states.
// DefineState returns the same id for the same name on repeated calls.
type Profiler interface {
	DefineState(name, color string) int
	EnterState(id int)
	LeaveState(id int)
}

// NoopProfiler discards all spans.
type NoopProfiler struct{}

func (NoopProfiler) DefineState(string, string) int { return 0 }
func (NoopProfiler) EnterState(int)                 {}
func (NoopProfiler) LeaveState(int)                 {}

// Controller is an external trigger source for a VirtualMachine.
// Start, Stop and Abort each fire the matching trigger; Connect is told about
// every boundary channel of the Simul the controller is bound to.
type Controller interface {
	Start()
	Stop()
	Abort()
	Connect(isSource bool, channel, id int)
}

// AppFilter selects which application ids this process executes.
type AppFilter func(appID int) bool

// AllApps selects every application.
func AllApps(int) bool { return true }

// OnlyApps selects the listed application ids.
func OnlyApps(ids ...int) AppFilter {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(appID int) bool { return set[appID] }
}

// Env is the per-process execution environment injected into a root Simul.
type Env struct {
	Rank     int       // rank of this process
	Select   AppFilter // application selection; nil selects all
	Profiler Profiler  // nil disables profiling
}

func (e Env) selects(appID int) bool {
	if e.Select == nil {
		return true
	}
	return e.Select(appID)
}

func (e Env) profiler() Profiler {
	if e.Profiler == nil {
		return NoopProfiler{}
	}
	return e.Profiler
}

// Option configures a Step or Simul at construction time.
type Option func(*options)

type options struct {
	indexSuffix bool
	env         Env
}

func defaultOptions() options {
	return options{env: Env{Rank: 0}}
}

// WithIndexSuffix appends "_<seq>" to the step name when it is added to a
// Simul.
func WithIndexSuffix() Option {
	return func(o *options) { o.indexSuffix = true }
}

// WithEnv sets the execution environment of a Simul. Only the environment of
// the highest-level Simul is used.
func WithEnv(env Env) Option {
	return func(o *options) { o.env = env }
}

// WithRank sets the rank of this process.
func WithRank(rank int) Option {
	return func(o *options) { o.env.Rank = rank }
}

// WithAppFilter sets the application selection predicate.
func WithAppFilter(f AppFilter) Option {
	return func(o *options) { o.env.Select = f }
}

// WithProfiler sets the profiler.
func WithProfiler(p Profiler) Option {
	return func(o *options) { o.env.Profiler = p }
}
