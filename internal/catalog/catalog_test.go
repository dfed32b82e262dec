package catalog

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/creatory/creatory/internal/creatory"
	"github.com/creatory/creatory/internal/dag"
)

func TestBuiltinStarterTemplate(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	tmpl, ok := c.Template(StarterTemplate)
	if !ok {
		t.Fatalf("starter template missing, have %v", c.Names())
	}
	if tmpl.Name != "Short Video Pipeline" || tmpl.Version != 1 {
		t.Errorf("got %q v%d", tmpl.Name, tmpl.Version)
	}
	if tmpl.Definition["category"] != "short-form" {
		t.Errorf("definition = %v", tmpl.Definition)
	}
	if len(tmpl.Nodes) != 4 || len(tmpl.Edges) != 3 {
		t.Fatalf("nodes=%d edges=%d", len(tmpl.Nodes), len(tmpl.Edges))
	}

	d, err := dag.Build(tmpl.Nodes, tmpl.Edges)
	if err != nil {
		t.Fatalf("dag: %v", err)
	}
	want := []string{"research", "script", "visuals", "human_review"}
	got := d.TopologicalOrder()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	last, _ := d.Node("human_review")
	if last.Type != creatory.NodeTypeHumanGate || *last.PositionX != 840 {
		t.Errorf("human_review = %+v", last)
	}
}

func TestTemplateReturnsCopy(t *testing.T) {
	c, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	a, _ := c.Template(StarterTemplate)
	a.Nodes[0].Key = "mutated"
	b, _ := c.Template(StarterTemplate)
	if b.Nodes[0].Key == "mutated" {
		t.Fatal("catalog template was mutated through a returned copy")
	}
}

func TestParseListsEveryUnknownNodeType(t *testing.T) {
	data := []byte(`
name: Broken
nodes:
  - node_key: a
    type: webhook
  - node_key: b
    type: Agent
  - node_key: c
    type: llm
`)
	_, err := Parse("broken.yaml", data)
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, `"webhook" (node a)`) || !strings.Contains(msg, `"llm" (node c)`) {
		t.Errorf("error should list both unknown types: %s", msg)
	}
	if strings.Contains(msg, "Agent") {
		t.Errorf("mixed-case known type reported as unknown: %s", msg)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"not a mapping", "- a\n- b\n", "must be a mapping"},
		{"invalid yaml", "name: [", "invalid YAML"},
		{"missing name", "nodes: []\n", "name is required"},
		{"missing key", "name: x\nnodes:\n  - type: agent\n", "has no node_key"},
		{"duplicate key", "name: x\nnodes:\n  - {node_key: a, type: agent}\n  - {node_key: a, type: tool}\n", "duplicate node_key"},
		{"dangling edge", "name: x\nnodes:\n  - {node_key: a, type: agent}\nedges:\n  - {source_node_key: a, target_node_key: z}\n", "unknown node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("t.yaml", []byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadJoinsErrors(t *testing.T) {
	fsys := fstest.MapFS{
		"good.yaml": {Data: []byte("name: Good\nnodes:\n  - {node_key: a, type: agent}\n")},
		"bad.yaml":  {Data: []byte("name: Bad\nnodes:\n  - {node_key: a, type: nope}\n")},
	}
	if _, err := Load(fsys); err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("expected error naming bad.yaml, got %v", err)
	}

	delete(fsys, "bad.yaml")
	c, err := Load(fsys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if names := c.Names(); len(names) != 1 || names[0] != "good.yaml" {
		t.Errorf("names = %v", names)
	}
}

func TestDirectorAgent(t *testing.T) {
	a := DirectorAgent("ws-1")
	if a.Slug != DirectorAgentSlug || !a.IsSystem || a.WorkspaceID == nil || *a.WorkspaceID != "ws-1" {
		t.Fatalf("agent = %+v", a)
	}
	if a.Config["mode"] != "director" {
		t.Errorf("config = %v", a.Config)
	}
}
