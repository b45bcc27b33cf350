package cmd

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cepflow/cepflow/flow/graphspec"
)

var (
	convertFromPath string
	convertFormat   string
)

// validFormats is the set of output formats of convert.
var validFormats = map[string]bool{"yaml": true, "toml": true}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a graph description between YAML and TOML",
	Long:  "Load a graph description (YAML or TOML), validate it and write it in the requested format. Output is written to stdout for piping.",
	Run: func(cmd *cobra.Command, args []string) {
		spec, err := loadSpec(convertFromPath)
		if err != nil {
			logrus.Fatalf("Failed to load graph %s: %v", convertFromPath, err)
		}
		if err := writeSpec(cmd.OutOrStdout(), spec, convertFormat); err != nil {
			logrus.Fatalf("Convert failed: %v", err)
		}
	},
}

// writeSpec encodes spec to w in format.
func writeSpec(w io.Writer, spec *graphspec.GraphSpec, format string) error {
	if !validFormats[format] {
		return fmt.Errorf("unknown format %q; valid: yaml, toml", format)
	}
	if format == "toml" {
		return toml.NewEncoder(w).Encode(spec)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return err
	}
	return enc.Close()
}

func init() {
	convertCmd.Flags().StringVar(&convertFromPath, "from", "", "Graph description to convert (.yaml, .yml or .toml)")
	convertCmd.Flags().StringVar(&convertFormat, "to", "yaml", "Output format (yaml, toml)")
	_ = convertCmd.MarkFlagRequired("from")

	rootCmd.AddCommand(convertCmd)
}
