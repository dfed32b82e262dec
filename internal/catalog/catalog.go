// Package catalog loads the workflow templates and system agents that every
// new workspace starts with.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/creatory/creatory/internal/creatory"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtin embed.FS

// StarterTemplate is the file name of the template seeded into new workspaces.
const StarterTemplate = "short_video_pipeline.yaml"

// LoadError reports why a template file could not be materialised. All
// problems in the file are listed, not just the first.
type LoadError struct {
	File     string
	Problems []string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load template %s: %s", e.File, strings.Join(e.Problems, "; "))
}

type templateFile struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Version     int            `yaml:"version"`
	Definition  map[string]any `yaml:"definition_json"`
	Nodes       []nodeFile     `yaml:"nodes"`
	Edges       []edgeFile     `yaml:"edges"`
}

type nodeFile struct {
	Key       string         `yaml:"node_key"`
	Type      string         `yaml:"type"`
	Config    map[string]any `yaml:"config_json"`
	PositionX *float64       `yaml:"position_x"`
	PositionY *float64       `yaml:"position_y"`
}

type edgeFile struct {
	Source    string         `yaml:"source_node_key"`
	Target    string         `yaml:"target_node_key"`
	Condition string         `yaml:"condition_expr"`
	Metadata  map[string]any `yaml:"metadata_json"`
}

// Parse materialises a template definition. Node types are matched case
// insensitively; any unknown type, missing key or dangling edge makes the
// whole file fail.
func Parse(file string, data []byte) (creatory.Template, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return creatory.Template{}, &LoadError{File: file, Problems: []string{"invalid YAML: " + err.Error()}}
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return creatory.Template{}, &LoadError{File: file, Problems: []string{"template root must be a mapping"}}
	}
	var tf templateFile
	if err := root.Content[0].Decode(&tf); err != nil {
		return creatory.Template{}, &LoadError{File: file, Problems: []string{"decode: " + err.Error()}}
	}

	lerr := &LoadError{File: file}
	tmpl := creatory.Template{
		Name:        strings.TrimSpace(tf.Name),
		Description: tf.Description,
		Version:     tf.Version,
		Definition:  tf.Definition,
	}
	if tmpl.Name == "" {
		lerr.Problems = append(lerr.Problems, "name is required")
	}
	if tmpl.Version == 0 {
		tmpl.Version = 1
	}
	if tmpl.Definition == nil {
		tmpl.Definition = map[string]any{}
	}

	keys := make(map[string]bool, len(tf.Nodes))
	var unknown []string
	for i, n := range tf.Nodes {
		key := strings.TrimSpace(n.Key)
		nt, err := creatory.ParseNodeType(strings.ToLower(strings.TrimSpace(n.Type)))
		if err != nil {
			unknown = append(unknown, fmt.Sprintf("%q (node %s)", n.Type, describe(key, i)))
		}
		if key == "" {
			lerr.Problems = append(lerr.Problems, fmt.Sprintf("node #%d has no node_key", i+1))
			continue
		}
		if keys[key] {
			lerr.Problems = append(lerr.Problems, fmt.Sprintf("duplicate node_key %q", key))
			continue
		}
		keys[key] = true
		cfg := n.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		tmpl.Nodes = append(tmpl.Nodes, creatory.Node{
			Key:       key,
			Type:      nt,
			Config:    cfg,
			PositionX: n.PositionX,
			PositionY: n.PositionY,
		})
	}
	if len(unknown) > 0 {
		lerr.Problems = append(lerr.Problems, "unknown node types: "+strings.Join(unknown, ", "))
	}

	for _, e := range tf.Edges {
		src, dst := strings.TrimSpace(e.Source), strings.TrimSpace(e.Target)
		if src == "" || dst == "" {
			lerr.Problems = append(lerr.Problems, "edge is missing source_node_key or target_node_key")
			continue
		}
		if !keys[src] || !keys[dst] {
			lerr.Problems = append(lerr.Problems, fmt.Sprintf("edge %s -> %s references an unknown node", src, dst))
			continue
		}
		md := e.Metadata
		if md == nil {
			md = map[string]any{}
		}
		tmpl.Edges = append(tmpl.Edges, creatory.Edge{
			SourceNodeKey: src,
			TargetNodeKey: dst,
			ConditionExpr: e.Condition,
			Metadata:      md,
		})
	}

	if len(lerr.Problems) > 0 {
		return creatory.Template{}, lerr
	}
	return tmpl, nil
}

func describe(key string, i int) string {
	if key == "" {
		return fmt.Sprintf("#%d", i+1)
	}
	return key
}

// Catalog is an immutable set of parsed templates keyed by file name.
type Catalog struct {
	templates map[string]creatory.Template
}

// Load parses every *.yaml file in fsys. Errors from all files are joined.
func Load(fsys fs.FS) (*Catalog, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	c := &Catalog{templates: make(map[string]creatory.Template, len(names))}
	var errs []error
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("read template %s: %w", name, err))
			continue
		}
		tmpl, err := Parse(name, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.templates[name] = tmpl
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() (*Catalog, error) {
	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir loads templates from a directory on disk.
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Template returns a deep-enough copy of the named template that callers may
// assign IDs without touching the catalog.
func (c *Catalog) Template(file string) (creatory.Template, bool) {
	t, ok := c.templates[path.Base(file)]
	if !ok {
		return creatory.Template{}, false
	}
	t.Nodes = append([]creatory.Node(nil), t.Nodes...)
	t.Edges = append([]creatory.Edge(nil), t.Edges...)
	return t, true
}

// Names lists the template files in the catalog, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for n := range c.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
