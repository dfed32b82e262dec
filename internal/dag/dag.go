// Package dag orders template nodes for execution.
//
// Nodes are ordered topologically over the template's edges. Among nodes
// that are ready at the same time, the one with the smaller positional key
// goes first: position_x ascending with unpositioned nodes last, then
// node_key. A template without edges therefore runs in plain positional
// order.
package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/creatory/creatory/internal/creatory"
)

// ErrCyclicGraph is matched by every *CyclicGraphError.
var ErrCyclicGraph = errors.New("cyclic graph")

// CyclicGraphError lists the nodes that could not be ordered.
type CyclicGraphError struct {
	Nodes []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("cyclic graph: nodes %s form a cycle", strings.Join(e.Nodes, ", "))
}

func (e *CyclicGraphError) Is(target error) bool { return target == ErrCyclicGraph }

type DAG struct {
	nodes     map[string]creatory.Node
	children  map[string][]string
	parents   map[string][]string
	edges     map[string]creatory.Edge
	topoOrder []string
}

// Build indexes nodes and edges and computes the execution order.
func Build(nodes []creatory.Node, edges []creatory.Edge) (*DAG, error) {
	d := &DAG{
		nodes:    make(map[string]creatory.Node, len(nodes)),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		edges:    make(map[string]creatory.Edge, len(edges)),
	}

	for _, n := range nodes {
		if _, exists := d.nodes[n.Key]; exists {
			return nil, fmt.Errorf("duplicate node key: %s", n.Key)
		}
		d.nodes[n.Key] = n
	}

	for _, e := range edges {
		if _, ok := d.nodes[e.SourceNodeKey]; !ok {
			return nil, fmt.Errorf("edge references unknown node: %s", e.SourceNodeKey)
		}
		if _, ok := d.nodes[e.TargetNodeKey]; !ok {
			return nil, fmt.Errorf("edge references unknown node: %s", e.TargetNodeKey)
		}
		key := e.SourceNodeKey + "->" + e.TargetNodeKey
		if _, dup := d.edges[key]; dup {
			continue
		}
		d.edges[key] = e
		d.children[e.SourceNodeKey] = append(d.children[e.SourceNodeKey], e.TargetNodeKey)
		d.parents[e.TargetNodeKey] = append(d.parents[e.TargetNodeKey], e.SourceNodeKey)
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.topoOrder = order
	return d, nil
}

func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for key := range d.nodes {
		inDegree[key] = 0
	}
	for _, children := range d.children {
		for _, c := range children {
			inDegree[c]++
		}
	}
	var queue []string
	for key, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, key)
		}
	}
	d.sortByPosition(queue)
	order := make([]string, 0, len(d.nodes))
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		order = append(order, key)
		for _, c := range d.children[key] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
		d.sortByPosition(queue)
	}
	if len(order) != len(d.nodes) {
		var stuck []string
		for key, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, key)
			}
		}
		sort.Strings(stuck)
		return nil, &CyclicGraphError{Nodes: stuck}
	}
	return order, nil
}

func (d *DAG) sortByPosition(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		return Less(d.nodes[keys[i]], d.nodes[keys[j]])
	})
}

// Less orders nodes by position_x ascending (unpositioned last), then key.
func Less(a, b creatory.Node) bool {
	switch {
	case a.PositionX == nil && b.PositionX != nil:
		return false
	case a.PositionX != nil && b.PositionX == nil:
		return true
	case a.PositionX != nil && b.PositionX != nil && *a.PositionX != *b.PositionX:
		return *a.PositionX < *b.PositionX
	}
	return a.Key < b.Key
}

// PositionalOrder returns a copy of nodes sorted by Less, ignoring edges.
func PositionalOrder(nodes []creatory.Node) []creatory.Node {
	out := make([]creatory.Node, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

func (d *DAG) TopologicalOrder() []string { return d.topoOrder }
func (d *DAG) Children(key string) []string { return d.children[key] }
func (d *DAG) Parents(key string) []string { return d.parents[key] }
func (d *DAG) Len() int { return len(d.nodes) }

// Node returns the node with the given key.
func (d *DAG) Node(key string) (creatory.Node, bool) {
	n, ok := d.nodes[key]
	return n, ok
}

// Nodes returns the nodes in execution order.
func (d *DAG) Nodes() []creatory.Node {
	out := make([]creatory.Node, 0, len(d.topoOrder))
	for _, key := range d.topoOrder {
		out = append(out, d.nodes[key])
	}
	return out
}

// Roots returns the nodes without parents, in execution order.
func (d *DAG) Roots() []string {
	var roots []string
	for _, key := range d.topoOrder {
		if len(d.parents[key]) == 0 {
			roots = append(roots, key)
		}
	}
	return roots
}

func (d *DAG) Edge(from, to string) (creatory.Edge, bool) {
	e, ok := d.edges[from+"->"+to]
	return e, ok
}
