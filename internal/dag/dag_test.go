package dag

import (
	"errors"
	"reflect"
	"testing"

	"github.com/creatory/creatory/internal/creatory"
)

func node(key string, x *float64) creatory.Node {
	return creatory.Node{Key: key, Type: creatory.NodeTypeAgent, PositionX: x}
}

func edge(from, to string) creatory.Edge {
	return creatory.Edge{SourceNodeKey: from, TargetNodeKey: to}
}

func TestBuildDAG(t *testing.T) {
	nodes := []creatory.Node{node("c", nil), node("a", nil), node("b", nil)}
	edges := []creatory.Edge{edge("a", "b"), edge("b", "c")}
	d, err := Build(nodes, edges)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	order := d.TopologicalOrder()
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Fatalf("wrong order: %v", order)
	}
	if got := d.Children("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("children(a) = %v", got)
	}
	if got := d.Parents("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("parents(c) = %v", got)
	}
	if got := d.Roots(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("roots = %v", got)
	}
}

func TestNoEdgesUsesPositionalOrder(t *testing.T) {
	nodes := []creatory.Node{
		node("unplaced-b", nil),
		node("right", creatory.Float(300)),
		node("unplaced-a", nil),
		node("left", creatory.Float(10)),
		node("tie-b", creatory.Float(100)),
		node("tie-a", creatory.Float(100)),
	}
	d, err := Build(nodes, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"left", "tie-a", "tie-b", "right", "unplaced-a", "unplaced-b"}
	if got := d.TopologicalOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	var positional []string
	for _, n := range PositionalOrder(nodes) {
		positional = append(positional, n.Key)
	}
	if !reflect.DeepEqual(positional, want) {
		t.Fatalf("positional = %v, want %v", positional, want)
	}
}

func TestEdgesOverridePosition(t *testing.T) {
	// "late" sits left of "early" on the canvas but depends on it.
	nodes := []creatory.Node{
		node("late", creatory.Float(0)),
		node("early", creatory.Float(500)),
		node("other", creatory.Float(100)),
	}
	d, err := Build(nodes, []creatory.Edge{edge("early", "late")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"other", "early", "late"}
	if got := d.TopologicalOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestBuildDAGCycleDetection(t *testing.T) {
	nodes := []creatory.Node{node("a", nil), node("b", nil), node("c", nil)}
	edges := []creatory.Edge{edge("a", "b"), edge("b", "c"), edge("c", "b")}
	_, err := Build(nodes, edges)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCyclicGraph) {
		t.Fatalf("expected ErrCyclicGraph, got %v", err)
	}
	var ce *CyclicGraphError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CyclicGraphError, got %T", err)
	}
	if !reflect.DeepEqual(ce.Nodes, []string{"b", "c"}) {
		t.Errorf("cycle nodes = %v", ce.Nodes)
	}
}

func TestBuildDAGSelfLoop(t *testing.T) {
	_, err := Build([]creatory.Node{node("a", nil)}, []creatory.Edge{edge("a", "a")})
	if !errors.Is(err, ErrCyclicGraph) {
		t.Fatalf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestBuildDAGUnknownNode(t *testing.T) {
	_, err := Build([]creatory.Node{node("a", nil)}, []creatory.Edge{edge("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown edge target")
	}
}

func TestBuildDAGDuplicateKey(t *testing.T) {
	_, err := Build([]creatory.Node{node("a", nil), node("a", nil)}, nil)
	if err == nil {
		t.Fatal("expected error for duplicate key")
	}
}

func TestBuildDAGDuplicateEdge(t *testing.T) {
	nodes := []creatory.Node{node("a", nil), node("b", nil)}
	d, err := Build(nodes, []creatory.Edge{edge("a", "b"), edge("a", "b")})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := d.Parents("b"); len(got) != 1 {
		t.Fatalf("duplicate edge counted twice: %v", got)
	}
	if _, ok := d.Edge("a", "b"); !ok {
		t.Fatal("edge a->b not indexed")
	}
}

func TestNodesInOrder(t *testing.T) {
	nodes := []creatory.Node{node("b", creatory.Float(2)), node("a", creatory.Float(1))}
	d, err := Build(nodes, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := d.Nodes()
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("nodes = %+v", got)
	}
	if d.Len() != 2 {
		t.Errorf("len = %d", d.Len())
	}
}
