package nadi

import "fmt"

// routes is the routing table: a multimap from source ports to destination
// ports. Like the registry it relies on the Context topology lock.
type routes struct {
	edges    []Edge          // insertion order, for reproducible listings
	bySource map[Port][]Port // fan-out destinations per source
}

func newRoutes() *routes {
	return &routes{bySource: make(map[Port][]Port)}
}

func (t *routes) has(e Edge) bool {
	for _, d := range t.bySource[e.Source] {
		if d == e.Destination {
			return true
		}
	}
	return false
}

// connect inserts an edge. Re-connecting an existing edge is an error.
func (t *routes) connect(e Edge) error {
	if t.has(e) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
	}
	t.edges = append(t.edges, e)
	dests := t.bySource[e.Source]
	next := make([]Port, len(dests), len(dests)+1)
	copy(next, dests)
	t.bySource[e.Source] = append(next, e.Destination)
	return nil
}

// disconnect removes an edge.
func (t *routes) disconnect(e Edge) error {
	if !t.has(e) {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, e)
	}
	t.edges = filterEdges(t.edges, func(x Edge) bool { return x != e })
	t.rebuild(e.Source)
	return nil
}

// removeNode drops every edge touching h and returns how many were removed.
func (t *routes) removeNode(h Handle) int {
	before := len(t.edges)
	t.edges = filterEdges(t.edges, func(x Edge) bool {
		return x.Source.Node != h && x.Destination.Node != h
	})
	if len(t.edges) == before {
		return 0
	}
	t.bySource = make(map[Port][]Port, len(t.bySource))
	for _, e := range t.edges {
		t.bySource[e.Source] = append(t.bySource[e.Source], e.Destination)
	}
	return before - len(t.edges)
}

// rebuild recomputes the destinations of one source from the edge list.
func (t *routes) rebuild(src Port) {
	var dests []Port
	for _, e := range t.edges {
		if e.Source == src {
			dests = append(dests, e.Destination)
		}
	}
	if len(dests) == 0 {
		delete(t.bySource, src)
		return
	}
	t.bySource[src] = dests
}

// resolve returns the destinations of a source port in insertion order. The
// returned slice is never mutated in place and may be read after the lock is released.
func (t *routes) resolve(src Port) []Port {
	return t.bySource[src]
}

// list returns a copy of all edges in insertion order.
func (t *routes) list() []Edge {
	out := make([]Edge, len(t.edges))
	copy(out, t.edges)
	return out
}

func filterEdges(edges []Edge, keep func(Edge) bool) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
