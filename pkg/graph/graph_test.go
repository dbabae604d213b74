package graph

import (
	"sort"
	"sync"
	"testing"
)

func buildChain(t *testing.T, edges [][2]int, nodes ...int) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%d, %d): %v", e[0], e[1], err)
		}
	}
	if err := g.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestReadyAndComplete(t *testing.T) {
	// 0 -> 1 -> 3, 0 -> 2 -> 3
	g := buildChain(t, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}}, 0, 1, 2, 3)

	ready := g.Ready()
	if len(ready) != 1 || ready[0] != 0 {
		t.Fatalf("initial ready = %v, want [0]", ready)
	}

	unblocked := g.Complete(0)
	sort.Ints(unblocked)
	if len(unblocked) != 2 || unblocked[0] != 1 || unblocked[1] != 2 {
		t.Fatalf("Complete(0) = %v, want [1 2]", unblocked)
	}

	if got := g.Complete(1); got != nil {
		t.Fatalf("Complete(1) = %v, node 3 still waits on 2", got)
	}
	got := g.Complete(2)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("Complete(2) = %v, want [3]", got)
	}

	if g.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", g.Pending())
	}
	g.Complete(3)
	if g.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", g.Pending())
	}
}

func TestCycleDetection(t *testing.T) {
	g := New()
	for _, n := range []int{0, 1, 2} {
		g.AddNode(n)
	}
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 0}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	if err := g.Build(); err == nil {
		t.Fatal("expected cycle detection to fail Build")
	}
}

func TestEdgeValidation(t *testing.T) {
	g := New()
	g.AddNode(0)
	if err := g.AddEdge(0, 99); err == nil {
		t.Error("expected error for unknown node")
	}
	if err := g.AddEdge(0, 0); err == nil {
		t.Error("expected error for self edge")
	}
}

func TestDuplicateEdgeIgnored(t *testing.T) {
	g := New()
	g.AddNode(0)
	g.AddNode(1)
	if err := g.AddEdge(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := g.Build(); err != nil {
		t.Fatal(err)
	}
	// A double-counted edge would leave node 1 blocked forever.
	if got := g.Complete(0); len(got) != 1 || got[0] != 1 {
		t.Errorf("Complete(0) = %v, want [1]", got)
	}
}

func TestDependents(t *testing.T) {
	g := buildChain(t, [][2]int{{0, 1}, {1, 2}, {1, 3}, {4, 3}}, 0, 1, 2, 3, 4)

	deps := g.Dependents(0)
	sort.Ints(deps)
	want := []int{1, 2, 3}
	if len(deps) != len(want) {
		t.Fatalf("Dependents(0) = %v, want %v", deps, want)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Fatalf("Dependents(0) = %v, want %v", deps, want)
		}
	}

	if deps := g.Dependents(2); deps != nil {
		t.Errorf("Dependents(2) = %v, want none", deps)
	}
}

func TestConcurrentComplete(t *testing.T) {
	// A wide fan-in: 100 independent nodes all feeding one sink.
	g := New()
	const width = 100
	sink := width
	g.AddNode(sink)
	for i := 0; i < width; i++ {
		g.AddNode(i)
		if err := g.AddEdge(i, sink); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.Build(); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var unblockedCount int
	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if got := g.Complete(i); len(got) > 0 {
				mu.Lock()
				unblockedCount += len(got)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Exactly one completion may unblock the sink.
	if unblockedCount != 1 {
		t.Errorf("sink unblocked %d times, want exactly 1", unblockedCount)
	}
}
