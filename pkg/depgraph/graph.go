// Package depgraph maintains the base-wide directed graph of which computed
// fields read which other fields, possibly across tables through link fields.
// The graph is derived state: it must always be recomputable from the field
// definitions alone. Its single invariant is acyclicity, enforced when a
// field definition is inserted, never at evaluation time.
package depgraph

import (
	"sync"

	apperrors "github.com/dmdorta1111/AirTable-sub000/pkg/errors"
)

// Edge is one dependency of a computed field. ViaLink is empty for
// same-table references and names the link field for lookup/rollup and other
// cross-table references.
type Edge struct {
	Source  string
	ViaLink string
}

// Dependent pairs a depending field with the link field its dependency
// crosses, if any.
type Dependent struct {
	FieldID string
	ViaLink string
}

// Graph is shared, read-mostly state scoped to one base. Mutations (field
// create/update/delete) are serialized per base behind the write lock while
// recompute-pass lookups read concurrently.
type Graph struct {
	mu sync.RWMutex

	// precedents: dependent field id -> source field id -> edge
	precedents map[string]map[string]Edge
	// dependents: source field id -> dependent field ids
	dependents map[string]map[string]struct{}
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		precedents: make(map[string]map[string]Edge),
		dependents: make(map[string]map[string]struct{}),
	}
}

// SetEdges replaces the outgoing edges of fieldID, running cycle detection
// before committing. On a cycle the graph is restored to its prior state and
// a CircularDependencyError carrying the cycle path is returned; the caller
// must not persist the field definition.
func (g *Graph) SetEdges(fieldID string, edges []Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prior := g.precedents[fieldID]
	g.removeOutgoingLocked(fieldID)

	next := make(map[string]Edge, len(edges))
	for _, e := range edges {
		next[e.Source] = e
		if g.dependents[e.Source] == nil {
			g.dependents[e.Source] = make(map[string]struct{})
		}
		g.dependents[e.Source][fieldID] = struct{}{}
	}
	g.precedents[fieldID] = next

	if path := g.findCycleLocked(fieldID); path != nil {
		// Roll back to the pre-insert state.
		g.removeOutgoingLocked(fieldID)
		if prior != nil {
			g.precedents[fieldID] = prior
			for src := range prior {
				if g.dependents[src] == nil {
					g.dependents[src] = make(map[string]struct{})
				}
				g.dependents[src][fieldID] = struct{}{}
			}
		}
		return &apperrors.CircularDependencyError{Path: path}
	}
	return nil
}

// Remove deletes fieldID's node and every edge touching it.
func (g *Graph) Remove(fieldID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeOutgoingLocked(fieldID)
	delete(g.precedents, fieldID)

	for dep := range g.dependents[fieldID] {
		delete(g.precedents[dep], fieldID)
	}
	delete(g.dependents, fieldID)
}

func (g *Graph) removeOutgoingLocked(fieldID string) {
	for src := range g.precedents[fieldID] {
		delete(g.dependents[src], fieldID)
		if len(g.dependents[src]) == 0 {
			delete(g.dependents, src)
		}
	}
	delete(g.precedents, fieldID)
}

// findCycleLocked reports a cycle through start, as the path of field ids
// from start back to start, or nil when none exists. The graph was acyclic
// before start's edges were replaced, so any cycle must pass through start.
func (g *Graph) findCycleLocked(start string) []string {
	var stack []string
	visited := make(map[string]bool)

	var visit func(id string) []string
	visit = func(id string) []string {
		stack = append(stack, id)
		defer func() { stack = stack[:len(stack)-1] }()

		for src := range g.precedents[id] {
			if src == start {
				path := make([]string, len(stack), len(stack)+1)
				copy(path, stack)
				return append(path, start)
			}
			if visited[src] {
				continue
			}
			visited[src] = true
			if path := visit(src); path != nil {
				return path
			}
		}
		return nil
	}
	return visit(start)
}

// Dependents returns the fields that directly read fieldID.
func (g *Graph) Dependents(fieldID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.dependents[fieldID]))
	for dep := range g.dependents[fieldID] {
		out = append(out, dep)
	}
	return out
}

// Precedents returns fieldID's outgoing edges.
func (g *Graph) Precedents(fieldID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Edge, 0, len(g.precedents[fieldID]))
	for _, e := range g.precedents[fieldID] {
		out = append(out, e)
	}
	return out
}

// SameTableDependents returns the fields transitively dependent on the
// changed fields through same-table edges only. Cross-table (via-link)
// dependents are the scheduler's fan-out concern and are excluded here. The
// result is an unordered set; pass it through TopoOrder before evaluating.
func (g *Graph) SameTableDependents(changed []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	affected := make(map[string]bool)
	queue := append([]string(nil), changed...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[cur] {
			edge := g.precedents[dep][cur]
			if edge.ViaLink != "" {
				continue
			}
			if !affected[dep] {
				affected[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := make([]string, 0, len(affected))
	for id := range affected {
		out = append(out, id)
	}
	return out
}

// TopoOrder sorts the given field ids so that every field appears after all
// of its same-table precedents in the set: a recompute pass can evaluate the
// slice front to back. Ties between independent fields fall in no particular
// order. The graph is acyclic by construction, so the DFS terminates.
func (g *Graph) TopoOrder(ids []string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	order := make([]string, 0, len(ids))
	done := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		for src, edge := range g.precedents[id] {
			if edge.ViaLink == "" && inSet[src] {
				visit(src)
			}
		}
		order = append(order, id)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}

// LinkedDependents returns the fields depending on any of the given fields
// across a link, deduplicated. These live on other tables; the scheduler
// fans out to the records that link to the changed record.
func (g *Graph) LinkedDependents(fieldIDs []string) []Dependent {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[Dependent]struct{})
	var out []Dependent
	for _, id := range fieldIDs {
		for dep := range g.dependents[id] {
			edge := g.precedents[dep][id]
			if edge.ViaLink == "" {
				continue
			}
			d := Dependent{FieldID: dep, ViaLink: edge.ViaLink}
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}
