package cluster

import (
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/trace"
)

// DeploymentConfig describes a local SPMD deployment: Ranks cooperating
// copies of one graph, each running Iterations cycles. Ranks must be >= 1.
type DeploymentConfig struct {
	Ranks         int
	Iterations    int
	ExchangeDepth int              // per-tag queue depth, default th.DefaultExchangeDepth
	TraceLevel    trace.TraceLevel // "" or "none" disables profiling
	Apps          []int            // application ids to execute; empty selects all
}

func (c DeploymentConfig) exchangeDepth() int {
	if c.ExchangeDepth < 1 {
		return th.DefaultExchangeDepth
	}
	return c.ExchangeDepth
}
