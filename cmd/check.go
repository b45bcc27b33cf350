package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cepflow/cepflow/flow"
	"github.com/cepflow/cepflow/flow/graphspec"
	"github.com/cepflow/cepflow/flow/th"
)

var (
	checkGraphPath string
	dumpGraphPath  string
	dumpRank       int
)

// buildForRank builds the graph at path as seen by rank.
func buildForRank(path string, rank int) (*graphspec.GraphSpec, *flow.Simul, error) {
	spec, err := loadSpec(path)
	if err != nil {
		return nil, nil, err
	}
	flow.ResetTags()
	root, err := graphspec.Build(spec, th.NewExchange(th.DefaultExchangeDepth), flow.WithRank(rank))
	if err != nil {
		return nil, nil, err
	}
	return spec, root, nil
}

// checkGraph builds the graph and writes its connection diagnostics to w.
func checkGraph(path string, w io.Writer) (bool, error) {
	spec, root, err := buildForRank(path, 0)
	if err != nil {
		return false, err
	}
	defer func() { _ = spec.CloseFiles(root) }()
	ok := root.CheckConnections(w)
	if ok {
		fmt.Fprintf(w, "%s: connections OK (%d rank(s))\n", spec.Name, spec.MaxRank()+1)
	}
	return ok, nil
}

// dumpGraph builds the graph for rank and writes its pre-order dump to w.
func dumpGraph(path string, rank int, w io.Writer) error {
	spec, root, err := buildForRank(path, rank)
	if err != nil {
		return err
	}
	defer func() { _ = spec.CloseFiles(root) }()
	root.Dump(w)
	return nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the wiring of a graph",
	Long:  "Build the graph, run its optimization passes and report unconnected or mismatched channels. Diagnostics are written to stdout.",
	Run: func(cmd *cobra.Command, args []string) {
		ok, err := checkGraph(checkGraphPath, cmd.OutOrStdout())
		if err != nil {
			logrus.Fatalf("Check failed: %v", err)
		}
		if !ok {
			logrus.Fatalf("Graph %s has connection errors", checkGraphPath)
		}
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the graph tree with placements and transports",
	Run: func(cmd *cobra.Command, args []string) {
		if err := dumpGraph(dumpGraphPath, dumpRank, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("Dump failed: %v", err)
		}
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkGraphPath, "graph", "", "Graph description file (.yaml, .yml or .toml)")
	_ = checkCmd.MarkFlagRequired("graph")

	dumpCmd.Flags().StringVar(&dumpGraphPath, "graph", "", "Graph description file (.yaml, .yml or .toml)")
	dumpCmd.Flags().IntVar(&dumpRank, "rank", 0, "Rank whose view of the graph is dumped")
	_ = dumpCmd.MarkFlagRequired("graph")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dumpCmd)
}
