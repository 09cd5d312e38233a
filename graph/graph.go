// Package graph is a named-node state machine over a conversation state.
//
// Each node runs, then picks its successor. A successor is honored only if
// it is on the node's edge list; anything else ends the run. A per-node
// visit cap stops runaway loops.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/sehgal-vip/travel-agent/state"
)

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart   NodeType = "start"
	NodeTypeEnd     NodeType = "end"
	NodeTypeHandler NodeType = "handler"
	NodeTypeCustom  NodeType = "custom"
)

// End is the successor name that finishes a run.
const End = "__end__"

// ErrLoop is returned when a node is visited more than the cap allows.
var ErrLoop = errors.New("graph: loop detected")

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, *state.State) error

// RouteFunc picks the next node name after a node has executed.
type RouteFunc func(context.Context, *state.State) (string, error)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Route     RouteFunc // nil follows the single static edge, if any
	NextNodes []string  // allow-list of successors
}

func (n *Node) addNext(name string) {
	for _, existing := range n.NextNodes {
		if existing == name {
			return
		}
	}
	n.NextNodes = append(n.NextNodes, name)
}

func (n *Node) allows(name string) bool {
	for _, next := range n.NextNodes {
		if next == name {
			return true
		}
	}
	return false
}

// Graph represents an execution flow graph
type Graph struct {
	nodes     map[string]*Node
	startNode string
	endNode   string
	maxVisits int
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 10,
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	if node.Name == End {
		panic(fmt.Sprintf("node name %s is reserved", End))
	}
	if node.Type != NodeTypeEnd && node.Execute == nil && node.Route == nil {
		panic(fmt.Sprintf("node %s of type %s must have an Execute or Route function", node.Name, node.Type))
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)

	g.nodes[node.Name] = node

	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
	if node.Type == NodeTypeEnd {
		g.endNode = node.Name
	}
}

// SetStartNode sets the start node
func (g *Graph) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetEndNode sets the end node
func (g *Graph) SetEndNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.endNode = name
}

// Execute runs the graph from the start node and returns the visited path.
// On error the path up to the failing node is still returned.
func (g *Graph) Execute(ctx context.Context, st *state.State) ([]string, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}

	visited := make(map[string]int)
	var path []string
	current := g.startNode

	for {
		if err := ctx.Err(); err != nil {
			return path, err
		}
		if current == End {
			return path, g.finish(ctx, st, &path)
		}

		node, exists := g.nodes[current]
		if !exists {
			return path, fmt.Errorf("node %s not found", current)
		}

		visited[current]++
		if visited[current] > g.maxVisits {
			return path, fmt.Errorf("%w at node %s", ErrLoop, current)
		}
		path = append(path, current)

		if node.Type == NodeTypeEnd {
			if node.Execute != nil {
				return path, node.Execute(ctx, st)
			}
			return path, nil
		}

		if node.Execute != nil {
			if err := node.Execute(ctx, st); err != nil {
				return path, fmt.Errorf("error executing node %s: %w", node.Name, err)
			}
		}

		next, err := g.resolveNext(ctx, node, st)
		if err != nil {
			return path, err
		}
		current = next
	}
}

func (g *Graph) resolveNext(ctx context.Context, node *Node, st *state.State) (string, error) {
	if node.Route == nil {
		if len(node.NextNodes) == 1 {
			return node.NextNodes[0], nil
		}
		return End, nil
	}
	next, err := node.Route(ctx, st)
	if err != nil {
		return "", fmt.Errorf("error routing from node %s: %w", node.Name, err)
	}
	if next == End || !node.allows(next) {
		return End, nil
	}
	return next, nil
}

func (g *Graph) finish(ctx context.Context, st *state.State, path *[]string) error {
	if g.endNode == "" {
		return nil
	}
	node := g.nodes[g.endNode]
	*path = append(*path, node.Name)
	if node.Execute == nil {
		return nil
	}
	return node.Execute(ctx, st)
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Has reports whether a node with the given name exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{
		graph: NewGraph(),
	}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddRoutedNode adds a node whose successor is chosen at run time.
func (b *Builder) AddRoutedNode(name string, nodeType NodeType, execute NodeFunc, route RouteFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
		Route:   route,
	})
	return b
}

// AddEdge connects two nodes
func (b *Builder) AddEdge(from, to string) *Builder {
	if node, exists := b.graph.nodes[from]; exists {
		node.addNext(to)
	}
	return b
}

// SetStart sets the start node
func (b *Builder) SetStart(name string) *Builder {
	b.graph.SetStartNode(name)
	return b
}

// SetEnd sets the end node
func (b *Builder) SetEnd(name string) *Builder {
	b.graph.SetEndNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder) SetMaxVisits(maxVisits int) *Builder {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// Build returns the constructed graph
func (b *Builder) Build() *Graph {
	return b.graph
}
