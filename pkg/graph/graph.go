// Package graph provides the Kahn-style dependency structure the
// executor schedules from. Nodes are operation indices; edges point from
// a prerequisite to its dependents.
package graph

import (
	"fmt"
	"sync"
)

// Graph is a topological work queue. Construction validates acyclicity;
// after Build, the executor drains it through Ready and Complete. All
// methods are safe for concurrent use.
type Graph struct {
	mu sync.Mutex

	nodes      map[int]bool
	successors map[int][]int
	indegree   map[int]int

	built     bool
	completed map[int]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:      make(map[int]bool),
		successors: make(map[int][]int),
		indegree:   make(map[int]int),
		completed:  make(map[int]bool),
	}
}

// AddNode registers an operation index. Adding twice is a no-op.
func (g *Graph) AddNode(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nodes[id] {
		return
	}
	g.nodes[id] = true
	g.indegree[id] = 0
}

// AddEdge records that `to` depends on `from`. Both nodes must exist.
func (g *Graph) AddEdge(from, to int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nodes[from] {
		return fmt.Errorf("edge references unknown node %d", from)
	}
	if !g.nodes[to] {
		return fmt.Errorf("edge references unknown node %d", to)
	}
	if from == to {
		return fmt.Errorf("node %d cannot depend on itself", from)
	}
	for _, existing := range g.successors[from] {
		if existing == to {
			return nil
		}
	}

	g.successors[from] = append(g.successors[from], to)
	g.indegree[to]++
	return nil
}

// Build validates the graph. A cycle is a hard error: the operation set
// cannot be ordered and nothing should execute.
func (g *Graph) Build() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Kahn simulation over a scratch indegree copy.
	indegree := make(map[int]int, len(g.indegree))
	for id, d := range g.indegree {
		indegree[id] = d
	}

	queue := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range g.successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if visited != len(g.nodes) {
		return fmt.Errorf("dependency cycle detected: %d of %d operations unreachable",
			len(g.nodes)-visited, len(g.nodes))
	}

	g.built = true
	return nil
}

// Ready returns the nodes with no outstanding prerequisites that have
// not yet been completed. The executor calls this once for the initial
// frontier; afterwards Complete hands out newly ready nodes.
func (g *Graph) Ready() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []int
	for id := range g.nodes {
		if g.indegree[id] == 0 && !g.completed[id] {
			ready = append(ready, id)
		}
	}
	return ready
}

// Complete marks a node done and returns the successors whose last
// prerequisite it was. Completing an unknown or already-completed node
// returns nil.
func (g *Graph) Complete(id int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nodes[id] || g.completed[id] {
		return nil
	}
	g.completed[id] = true

	var unblocked []int
	for _, succ := range g.successors[id] {
		g.indegree[succ]--
		if g.indegree[succ] == 0 && !g.completed[succ] {
			unblocked = append(unblocked, succ)
		}
	}
	return unblocked
}

// Dependents returns the transitive successors of a node. The executor
// uses this to skip everything downstream of a failure.
func (g *Graph) Dependents(id int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	seen := make(map[int]bool)
	var out []int
	stack := append([]int(nil), g.successors[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
		stack = append(stack, g.successors[n]...)
	}
	return out
}

// Len returns the node count.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Pending returns how many nodes have not completed.
func (g *Graph) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes) - len(g.completed)
}
