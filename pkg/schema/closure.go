package schema

import (
	"sort"

	"github.com/latticedb/schemagraph/pkg/codec"
)

// Supertypes returns v's strict ancestors, ordered from its immediate
// supertype up to (and including) its root. Memoized per transaction
// epoch: a second call with no intervening mutation returns the
// cached slice instead of re-walking SUB edges.
func (g *Graph) Supertypes(v *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("supertypes", v.id, func() ([]VertexID, error) {
		return g.walkSupertypes(v)
	})
}

func (g *Graph) walkSupertypes(v *Vertex) ([]VertexID, error) {
	var chain []VertexID
	visited := map[VertexID]bool{v.id: true}
	current := v
	for !current.IsRoot() {
		next, err := g.Supertype(current)
		if err != nil {
			if err == ErrNotFound {
				break
			}
			return nil, err
		}
		if visited[next.id] {
			return nil, ErrSchemaCycle
		}
		visited[next.id] = true
		chain = append(chain, next.id)
		current = next
	}
	return chain, nil
}

// Subtypes returns every strict descendant of v, via a breadth-first
// walk of inbound SUB edges. Order is not significant to callers.
func (g *Graph) Subtypes(v *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("subtypes", v.id, func() ([]VertexID, error) {
		return g.walkSubtypes(v)
	})
}

func (g *Graph) walkSubtypes(v *Vertex) ([]VertexID, error) {
	var result []VertexID
	visited := map[VertexID]bool{v.id: true}
	queue := []*Vertex{v}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		it := cur.In().To(codec.Sub)
		for it.Next() {
			childID := it.Peer()
			if visited[childID] {
				return nil, ErrSchemaCycle
			}
			visited[childID] = true
			result = append(result, childID)
			child, err := g.Vertex(childID)
			if err != nil {
				return nil, err
			}
			queue = append(queue, child)
		}
	}
	return result, nil
}

// IsSubtypeOf reports whether v equals candidate or descends from it.
func (g *Graph) IsSubtypeOf(v, candidate *Vertex) (bool, error) {
	if v.id == candidate.id {
		return true, nil
	}
	chain, err := g.Supertypes(v)
	if err != nil {
		return false, err
	}
	for _, id := range chain {
		if id == candidate.id {
			return true, nil
		}
	}
	return false, nil
}

// RelatedRoleTypes returns every role a relation type relates,
// combining the roles it directly declares with those inherited from
// its supertypes, minus any inherited role a more derived type has
// overridden with a narrower one (spec's override semantics).
func (g *Graph) RelatedRoleTypes(relationType *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("relates", relationType.id, func() ([]VertexID, error) {
		return g.inheritedEdgeClosure(relationType, codec.Relates)
	})
}

// Owns returns every attribute type v owns, directly or inherited,
// minus any inherited ownership a more derived type has overridden.
func (g *Graph) Owns(v *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("owns", v.id, func() ([]VertexID, error) {
		direct, err := g.inheritedEdgeClosure(v, codec.Owns)
		if err != nil {
			return nil, err
		}
		keyed, err := g.inheritedEdgeClosure(v, codec.OwnsKey)
		if err != nil {
			return nil, err
		}
		return mergeSorted(direct, keyed), nil
	})
}

// OwnsKeys returns every attribute type v owns as a key, directly or
// inherited.
func (g *Graph) OwnsKeys(v *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("owns-key", v.id, func() ([]VertexID, error) {
		return g.inheritedEdgeClosure(v, codec.OwnsKey)
	})
}

// Plays returns every role v plays, directly or inherited, minus any
// inherited role a more derived type has overridden.
func (g *Graph) Plays(v *Vertex) ([]VertexID, error) {
	return g.memoizedClosure("plays", v.id, func() ([]VertexID, error) {
		return g.inheritedEdgeClosure(v, codec.Plays)
	})
}

// inheritedEdgeClosure walks v and its ancestor chain (most derived
// first), unioning every edge of enc each declares directly, then
// strips out any peer an ancestor-chain member marked as overridden.
// Because the walk visits the most derived type first, a subtype's
// own (more specific) edge always wins a naming collision; the final
// pass only needs to remove the generic peer the override named.
func (g *Graph) inheritedEdgeClosure(v *Vertex, enc codec.EdgeEncoding) ([]VertexID, error) {
	chainIDs, err := g.Supertypes(v)
	if err != nil {
		return nil, err
	}
	chain := append([]VertexID{v.id}, chainIDs...)

	seen := map[VertexID]bool{}
	overridden := map[VertexID]bool{}
	var result []VertexID

	for _, id := range chain {
		member, err := g.Vertex(id)
		if err != nil {
			return nil, err
		}
		it := member.Out().To(enc)
		for it.Next() {
			e := it.Edge()
			if !seen[e.Peer] {
				seen[e.Peer] = true
				result = append(result, e.Peer)
			}
			if e.Annotation.Overridden != 0 {
				overridden[e.Annotation.Overridden] = true
			}
		}
	}

	filtered := result[:0]
	for _, id := range result {
		if !overridden[id] {
			filtered = append(filtered, id)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i] < filtered[j] })
	return filtered, nil
}

func mergeSorted(a, b []VertexID) []VertexID {
	seen := map[VertexID]bool{}
	out := make([]VertexID, 0, len(a)+len(b))
	for _, id := range append(append([]VertexID{}, a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Graph) memoizedClosure(kind string, root VertexID, compute func() ([]VertexID, error)) ([]VertexID, error) {
	key := closureKey{kind: kind, root: root}
	if entry, ok := g.closureMemo[key]; ok && entry.epoch == g.epoch {
		return entry.ids, nil
	}
	ids, err := compute()
	if err != nil {
		return nil, err
	}
	g.closureMemo[key] = closureEntry{epoch: g.epoch, ids: ids}
	return ids, nil
}
