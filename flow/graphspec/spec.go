// Package graphspec loads graph descriptions from YAML or TOML files and
// builds them into flow.Simul trees.
//
// A description names the highest-level Simul, its boundary ports, its
// children (leaf work kinds from flow/work, or nested "simul" entries with
// their own children and wiring), the connections between them, optional
// array wirings, file sinks and optimization passes. Placement is part of
// the description: a node without a rank inherits its parent's.
package graphspec

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cepflow/cepflow/flow/th"
	"github.com/cepflow/cepflow/flow/work"
	"gopkg.in/yaml.v3"
)

// SimulKind is the kind of a nested composite entry.
const SimulKind = "simul"

// GraphSpec is a complete graph description.
type GraphSpec struct {
	Name        string           `yaml:"name" toml:"name"`
	Transport   string           `yaml:"transport,omitempty" toml:"transport,omitempty"` // default mechanism: memory or exchange
	Rank        *int             `yaml:"rank,omitempty" toml:"rank,omitempty"`           // nil places the root on rank 0
	App         *int             `yaml:"app,omitempty" toml:"app,omitempty"`
	Ports       PortSpec         `yaml:"ports,omitempty" toml:"ports,omitempty"`
	Steps       []StepSpec       `yaml:"steps" toml:"steps"`
	Connections []ConnectionSpec `yaml:"connections,omitempty" toml:"connections,omitempty"`
	Arrays      []ArraySpec      `yaml:"arrays,omitempty" toml:"arrays,omitempty"`
	Files       []FileSpec       `yaml:"files,omitempty" toml:"files,omitempty"`
	Optimize    OptimizeSpec     `yaml:"optimize,omitempty" toml:"optimize,omitempty"`
}

// PortSpec names the boundary channels of a Simul.
type PortSpec struct {
	Inputs  []string `yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs []string `yaml:"outputs,omitempty" toml:"outputs,omitempty"`
}

// StepSpec describes one child. Kind "simul" makes it a composite; Ports,
// Steps, Connections and Arrays apply only then.
type StepSpec struct {
	Name        string             `yaml:"name" toml:"name"`
	Kind        string             `yaml:"kind" toml:"kind"`
	Inputs      int                `yaml:"inputs,omitempty" toml:"inputs,omitempty"`
	Outputs     int                `yaml:"outputs,omitempty" toml:"outputs,omitempty"`
	Size        int                `yaml:"size,omitempty" toml:"size,omitempty"`
	Rank        *int               `yaml:"rank,omitempty" toml:"rank,omitempty"`
	App         *int               `yaml:"app,omitempty" toml:"app,omitempty"`
	IndexSuffix bool               `yaml:"index_suffix,omitempty" toml:"index_suffix,omitempty"`
	Params      map[string]float64 `yaml:"params,omitempty" toml:"params,omitempty"`
	Ports       PortSpec           `yaml:"ports,omitempty" toml:"ports,omitempty"`
	Steps       []StepSpec         `yaml:"steps,omitempty" toml:"steps,omitempty"`
	Connections []ConnectionSpec   `yaml:"connections,omitempty" toml:"connections,omitempty"`
	Arrays      []ArraySpec        `yaml:"arrays,omitempty" toml:"arrays,omitempty"`
}

// ConnectionSpec wires From to To using the Simul.Connect name grammar.
// An empty Transport uses the graph default.
type ConnectionSpec struct {
	From      string `yaml:"from" toml:"from"`
	To        string `yaml:"to" toml:"to"`
	Transport string `yaml:"transport,omitempty" toml:"transport,omitempty"`
}

// ArraySpec wires the boundary of a Simul to a list of its children with
// ConnectInputToArray or ConnectOutputToArray.
type ArraySpec struct {
	Direction string   `yaml:"direction" toml:"direction"` // input or output
	Steps     []string `yaml:"steps" toml:"steps"`
	Skip      int      `yaml:"skip,omitempty" toml:"skip,omitempty"`
	Offset    int      `yaml:"offset,omitempty" toml:"offset,omitempty"`
	Transport string   `yaml:"transport,omitempty" toml:"transport,omitempty"`
}

// FileSpec redirects an output channel of a root child to a YAML file.
type FileSpec struct {
	Channel string `yaml:"channel" toml:"channel"`
	Path    string `yaml:"path" toml:"path"`
}

// OptimizeSpec selects the passes run after wiring.
type OptimizeSpec struct {
	Shortcut bool `yaml:"shortcut,omitempty" toml:"shortcut,omitempty"`
	Simplify bool `yaml:"simplify,omitempty" toml:"simplify,omitempty"`
}

// ValidArrayDirections is the set of recognized array directions.
var ValidArrayDirections = map[string]bool{"input": true, "output": true}

// Load reads a graph description. The format follows the file extension:
// .yaml/.yml or .toml. Both formats are parsed strictly: unrecognized keys
// (typos) are rejected.
func Load(path string) (*GraphSpec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	case ".toml":
		return loadTOML(path)
	default:
		return nil, fmt.Errorf("graph spec %s: unsupported extension (want .yaml, .yml or .toml)", path)
	}
}

func loadYAML(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph spec: %w", err)
	}
	var spec GraphSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing graph spec: %w", err)
	}
	return &spec, nil
}

func loadTOML(path string) (*GraphSpec, error) {
	var spec GraphSpec
	meta, err := toml.DecodeFile(path, &spec)
	if err != nil {
		return nil, fmt.Errorf("parsing graph spec: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("parsing graph spec: unknown keys %s", strings.Join(keys, ", "))
	}
	return &spec, nil
}

// Validate checks names, kinds and parameter ranges of the whole description.
// Wiring names are resolved by Build.
func (g *GraphSpec) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateName("name", g.Name); err != nil {
		return err
	}
	if !th.ValidKinds[g.Transport] {
		return fmt.Errorf("unknown transport %q; valid: memory, exchange", g.Transport)
	}
	if err := validatePlacement("", g.Rank, g.App); err != nil {
		return err
	}
	if err := validateLevel("", g.Steps, g.Connections, g.Arrays); err != nil {
		return err
	}
	for i, f := range g.Files {
		if f.Channel == "" {
			return fmt.Errorf("files[%d]: channel is required", i)
		}
	}
	return nil
}

func validateLevel(prefix string, steps []StepSpec, conns []ConnectionSpec, arrays []ArraySpec) error {
	for i := range steps {
		if err := validateStep(fmt.Sprintf("%ssteps[%d]", prefix, i), &steps[i]); err != nil {
			return err
		}
	}
	for i, c := range conns {
		p := fmt.Sprintf("%sconnections[%d]", prefix, i)
		if c.From == "" || c.To == "" {
			return fmt.Errorf("%s: from and to are required", p)
		}
		if !th.ValidKinds[c.Transport] {
			return fmt.Errorf("%s: unknown transport %q", p, c.Transport)
		}
	}
	for i, a := range arrays {
		p := fmt.Sprintf("%sarrays[%d]", prefix, i)
		if !ValidArrayDirections[a.Direction] {
			return fmt.Errorf("%s: unknown direction %q; valid: input, output", p, a.Direction)
		}
		if len(a.Steps) == 0 {
			return fmt.Errorf("%s: at least one step required", p)
		}
		if a.Skip < 0 || a.Offset < 0 {
			return fmt.Errorf("%s: skip and offset must be non-negative", p)
		}
		if !th.ValidKinds[a.Transport] {
			return fmt.Errorf("%s: unknown transport %q", p, a.Transport)
		}
	}
	return nil
}

func validateStep(prefix string, s *StepSpec) error {
	if err := validateName(prefix+".name", s.Name); err != nil {
		return err
	}
	if err := validatePlacement(prefix+".", s.Rank, s.App); err != nil {
		return err
	}
	if s.Kind == SimulKind {
		return validateLevel(prefix+".", s.Steps, s.Connections, s.Arrays)
	}
	if !work.ValidKinds[s.Kind] {
		return fmt.Errorf("%s: unknown kind %q; valid: source, scale, add, sink, simul", prefix, s.Kind)
	}
	if len(s.Steps) > 0 || len(s.Connections) > 0 || len(s.Arrays) > 0 ||
		len(s.Ports.Inputs) > 0 || len(s.Ports.Outputs) > 0 {
		return fmt.Errorf("%s: only kind simul may have ports, steps, connections or arrays", prefix)
	}
	if s.Inputs < 0 || s.Outputs < 0 || s.Size < 0 {
		return fmt.Errorf("%s: inputs, outputs and size must be non-negative", prefix)
	}
	for name, val := range s.Params {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s.params.%s must be a finite number, got %f", prefix, name, val)
		}
	}
	return nil
}

func validateName(field, name string) error {
	if strings.Contains(name, ".") {
		return fmt.Errorf("%s %q must not contain '.'", field, name)
	}
	return nil
}

func validatePlacement(prefix string, rank, app *int) error {
	if rank != nil && *rank < 0 {
		return fmt.Errorf("%srank must be non-negative, got %d", prefix, *rank)
	}
	if app != nil && *app < 0 {
		return fmt.Errorf("%sapp must be non-negative, got %d", prefix, *app)
	}
	return nil
}

// MaxRank returns the highest rank any node of the description is placed on.
// A deployment needs at least MaxRank()+1 ranks.
func (g *GraphSpec) MaxRank() int {
	top := 0
	if g.Rank != nil {
		top = *g.Rank
	}
	return maxRank(g.Steps, top)
}

func maxRank(steps []StepSpec, inherited int) int {
	top := inherited
	for _, s := range steps {
		r := inherited
		if s.Rank != nil {
			r = *s.Rank
		}
		top = max(top, r, maxRank(s.Steps, r))
	}
	return top
}
