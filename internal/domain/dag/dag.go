// Package dag validates, orders and lays out the node graphs built in the DAG
// editor, and renders them into executable documents.
package dag

import (
	"fmt"
	"strings"
)

// Editor node types.
const (
	ContentNodeType = "contentNode"
	CustomNodeType  = "customNode"
	DeletableEdge   = "deletable"
)

// Layout spacing in editor units.
const (
	levelHeight = 150
	nodeWidth   = 200
)

// Position is a node's location on the editor canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the editor payload of a node. Content nodes carry a
// ContentGUID, custom nodes a CustomType.
type NodeData struct {
	Label       string         `json:"label,omitempty"`
	ContentGUID string         `json:"contentGuid,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	ContentURL  string         `json:"contentUrl,omitempty"`
	Author      string         `json:"author,omitempty"`
	Description string         `json:"description,omitempty"`
	NodeType    string         `json:"nodeType,omitempty"`
	CustomType  string         `json:"customType,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Node is one step of a DAG.
type Node struct {
	ID       string    `json:"id"`
	Type     string    `json:"type,omitempty"`
	Data     NodeData  `json:"data"`
	Position *Position `json:"position,omitempty"`
}

// IsContent reports whether the node runs platform content.
func (n Node) IsContent() bool { return n.Data.ContentGUID != "" }

// IsCustom reports whether the node is a custom action.
func (n Node) IsCustom() bool { return !n.IsContent() && n.Data.CustomType != "" }

// Edge is a dependency: Target runs after Source.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type,omitempty"`
}

// Validation is the outcome of Validate.
type Validation struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// graph is the adjacency view of nodes and the edges between known nodes.
type graph struct {
	order    []string
	out      map[string][]string
	in       map[string][]string
	nodeByID map[string]Node
}

func newGraph(nodes []Node, edges []Edge) *graph {
	g := &graph{
		order:    make([]string, 0, len(nodes)),
		out:      make(map[string][]string, len(nodes)),
		in:       make(map[string][]string, len(nodes)),
		nodeByID: make(map[string]Node, len(nodes)),
	}
	for _, n := range nodes {
		if _, dup := g.nodeByID[n.ID]; dup {
			continue
		}
		g.order = append(g.order, n.ID)
		g.nodeByID[n.ID] = n
		g.out[n.ID] = nil
		g.in[n.ID] = nil
	}
	for _, e := range edges {
		if _, ok := g.nodeByID[e.Source]; !ok {
			continue
		}
		if _, ok := g.nodeByID[e.Target]; !ok {
			continue
		}
		g.out[e.Source] = append(g.out[e.Source], e.Target)
		g.in[e.Target] = append(g.in[e.Target], e.Source)
	}
	return g
}

func (g *graph) hasCycle() bool {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.order))
	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = onStack
		for _, next := range g.out[id] {
			switch state[next] {
			case onStack:
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}
	for _, id := range g.order {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}
	return false
}

// components counts weakly connected components.
func (g *graph) components() int {
	seen := make(map[string]bool, len(g.order))
	count := 0
	for _, id := range g.order {
		if seen[id] {
			continue
		}
		count++
		stack := []string{id}
		seen[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, adj := range [][]string{g.out[cur], g.in[cur]} {
				for _, next := range adj {
					if !seen[next] {
						seen[next] = true
						stack = append(stack, next)
					}
				}
			}
		}
	}
	return count
}

// Validate checks that the graph is acyclic and, when it has more than one
// node, connected. Edges naming unknown nodes are ignored. An empty graph is valid.
func Validate(nodes []Node, edges []Edge) Validation {
	errs := []string{}
	if len(nodes) == 0 {
		return Validation{IsValid: true, Errors: errs}
	}
	g := newGraph(nodes, edges)
	if g.hasCycle() {
		errs = append(errs, "DAG contains cycles")
	}
	if len(nodes) > 1 && g.components() > 1 {
		errs = append(errs, "DAG has disconnected components")
	}
	return Validation{IsValid: len(errs) == 0, Errors: errs}
}

// TopologicalBatches groups nodes into batches that can run in parallel:
// every node runs after all of its predecessors' batches. Roots keep their
// input order.
func TopologicalBatches(nodes []Node, edges []Edge) ([][]Node, error) {
	g := newGraph(nodes, edges)
	inDegree := make(map[string]int, len(g.order))
	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.in[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	var batches [][]Node
	processed := 0
	for len(queue) > 0 {
		size := len(queue)
		batch := make([]Node, 0, size)
		for _, id := range queue[:size] {
			batch = append(batch, g.nodeByID[id])
			processed++
			for _, next := range g.out[id] {
				inDegree[next]--
				if inDegree[next] == 0 {
					queue = append(queue, next)
				}
			}
		}
		queue = queue[size:]
		batches = append(batches, batch)
	}

	if processed != len(g.order) {
		var stuck []string
		for _, id := range g.order {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: unprocessed nodes: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return batches, nil
}

// BatchIDs flattens batches to node ids.
func BatchIDs(batches [][]Node) [][]string {
	out := make([][]string, len(batches))
	for i, b := range batches {
		out[i] = make([]string, len(b))
		for j, n := range b {
			out[i][j] = n.ID
		}
	}
	return out
}

// AutoLayout returns copies of nodes positioned level by level from the
// roots, each level centred on x=0. Nodes unreachable from a root are placed
// on the last level.
func AutoLayout(nodes []Node, edges []Edge) []Node {
	if len(nodes) == 0 {
		return nodes
	}
	g := newGraph(nodes, edges)

	type item struct {
		id    string
		level int
	}
	var queue []item
	for _, id := range g.order {
		if len(g.in[id]) == 0 {
			queue = append(queue, item{id: id})
		}
	}
	if len(queue) == 0 {
		queue = append(queue, item{id: g.order[0]})
	}

	var levels [][]string
	visited := make(map[string]bool, len(g.order))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		for len(levels) <= cur.level {
			levels = append(levels, nil)
		}
		levels[cur.level] = append(levels[cur.level], cur.id)
		for _, next := range g.out[cur.id] {
			if !visited[next] {
				queue = append(queue, item{id: next, level: cur.level + 1})
			}
		}
	}
	last := len(levels) - 1
	for _, id := range g.order {
		if !visited[id] {
			levels[last] = append(levels[last], id)
		}
	}

	out := make([]Node, 0, len(g.order))
	for li, ids := range levels {
		startX := -float64(len(ids)*nodeWidth) / 2
		for i, id := range ids {
			n := g.nodeByID[id]
			n.Position = &Position{
				X: startX + float64(i*nodeWidth) + nodeWidth/2,
				Y: float64(li * levelHeight),
			}
			out = append(out, n)
		}
	}
	return out
}

// CountTypes returns the number of content and custom nodes.
func CountTypes(nodes []Node) (content, custom int) {
	for _, n := range nodes {
		switch {
		case n.IsContent():
			content++
		case n.IsCustom():
			custom++
		}
	}
	return content, custom
}
