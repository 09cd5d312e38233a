package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/sehgal-vip/travel-agent/state"
)

func noop(context.Context, *state.State) error { return nil }

func TestAddNodeEmptyName(t *testing.T) {
	g := NewGraph()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected function to panic, but it did not")
		} else if r != "node name cannot be empty" {
			t.Errorf("Expected panic value to be 'node name cannot be empty', but got %v", r)
		}
	}()

	g.AddNode(&Node{Name: "", Type: NodeTypeCustom, Execute: noop})
}

func TestAddNodeDuplicate(t *testing.T) {
	g := NewGraph()
	g.AddNode(&Node{Name: "dup_node", Type: NodeTypeCustom, Execute: noop})

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected function to panic, but it did not")
		} else if r != "node dup_node already exists" {
			t.Errorf("Expected panic value to be 'node dup_node already exists', but got %v", r)
		}
	}()
	g.AddNode(&Node{Name: "dup_node", Type: NodeTypeCustom, Execute: noop})
}

func TestAddNodeWithoutBehaviourPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Expected function to panic, but it did not")
		}
	}()
	NewGraph().AddNode(&Node{Name: "empty", Type: NodeTypeHandler})
}

func TestExecuteStaticEdges(t *testing.T) {
	var order []string
	record := func(name string) NodeFunc {
		return func(context.Context, *state.State) error {
			order = append(order, name)
			return nil
		}
	}

	g := NewBuilder().
		AddNode("start", NodeTypeStart, record("start")).
		AddNode("work", NodeTypeHandler, record("work")).
		AddNode("end", NodeTypeEnd, record("end")).
		AddEdge("start", "work").
		AddEdge("work", "end").
		Build()

	path, err := g.Execute(context.Background(), state.New("c1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := []string{"start", "work", "end"}
	if len(path) != len(want) || len(order) != len(want) {
		t.Fatalf("Expected path %v, got path %v order %v", want, path, order)
	}
	for i := range want {
		if path[i] != want[i] || order[i] != want[i] {
			t.Errorf("step %d: expected %s, got path %s order %s", i, want[i], path[i], order[i])
		}
	}
}

func TestRouteOutsideAllowListEnds(t *testing.T) {
	ran := false
	g := NewBuilder().
		AddRoutedNode("router", NodeTypeStart, noop, func(context.Context, *state.State) (string, error) {
			return "intruder", nil
		}).
		AddNode("intruder", NodeTypeHandler, func(context.Context, *state.State) error {
			ran = true
			return nil
		}).
		AddNode("planner", NodeTypeHandler, noop).
		AddEdge("router", "planner").
		Build()

	path, err := g.Execute(context.Background(), state.New("c1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if ran {
		t.Error("node outside the allow-list must not run")
	}
	if len(path) != 1 || path[0] != "router" {
		t.Errorf("Expected path [router], got %v", path)
	}
}

func TestRouteToEnd(t *testing.T) {
	g := NewBuilder().
		AddRoutedNode("router", NodeTypeStart, noop, func(context.Context, *state.State) (string, error) {
			return End, nil
		}).
		AddNode("finish", NodeTypeEnd, nil).
		Build()

	path, err := g.Execute(context.Background(), state.New("c1"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(path) != 2 || path[1] != "finish" {
		t.Errorf("Expected path [router finish], got %v", path)
	}
}

func TestMaxVisits(t *testing.T) {
	g := NewBuilder().
		AddRoutedNode("a", NodeTypeStart, noop, func(context.Context, *state.State) (string, error) {
			return "b", nil
		}).
		AddRoutedNode("b", NodeTypeHandler, noop, func(context.Context, *state.State) (string, error) {
			return "a", nil
		}).
		AddEdge("a", "b").
		AddEdge("b", "a").
		SetMaxVisits(3).
		Build()

	path, err := g.Execute(context.Background(), state.New("c1"))
	if !errors.Is(err, ErrLoop) {
		t.Fatalf("Expected ErrLoop, got %v", err)
	}
	if len(path) != 6 {
		t.Errorf("Expected 6 visits before the cap, got %d", len(path))
	}
}

func TestExecuteErrors(t *testing.T) {
	boom := errors.New("boom")
	g := NewBuilder().
		AddNode("start", NodeTypeStart, func(context.Context, *state.State) error { return boom }).
		Build()

	if _, err := g.Execute(context.Background(), state.New("c1")); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped node error, got %v", err)
	}
	if _, err := NewGraph().Execute(context.Background(), state.New("c1")); err == nil {
		t.Error("Expected error without a start node")
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	g := NewBuilder().AddNode("start", NodeTypeStart, noop).Build()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Execute(ctx, state.New("c1")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
