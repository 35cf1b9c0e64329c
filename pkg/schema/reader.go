package schema

import (
	"fmt"

	"github.com/latticedb/schemagraph/pkg/codec"
)

// Reader is the read-only query surface a type-reasoning or query
// planning collaborator needs: resolve a type by name, walk its
// hierarchy, and ask what it owns, plays, or relates. Graph satisfies
// this directly; callers that only need to read never have to depend
// on Graph's mutation methods.
type Reader interface {
	GetType(encoding Encoding, label, scope string) (*Vertex, error)
	Root(encoding Encoding) (*Vertex, error)
	Supertype(v *Vertex) (*Vertex, error)
	Supertypes(v *Vertex) ([]VertexID, error)
	Subtypes(v *Vertex) ([]VertexID, error)
	IsSubtypeOf(v, candidate *Vertex) (bool, error)
	RelatedRoleTypes(relationType *Vertex) ([]VertexID, error)
	Owns(v *Vertex) ([]VertexID, error)
	OwnsKeys(v *Vertex) ([]VertexID, error)
	Plays(v *Vertex) ([]VertexID, error)
	RelatesOverridden(relationType, role *Vertex) (string, error)
}

var _ Reader = (*Graph)(nil)

// VertexIterator is an iterator over every vertex of one Encoding, in
// ascending id order. It only advances with Next; it has no Seek.
type VertexIterator struct {
	graph *Graph
	it    vertexKeyScanner
	err   error
	cur   *Vertex
}

// vertexKeyScanner is the slice of kv.Iterator this package actually
// uses, kept narrow so VertexIterator can be built in tests without a
// full kv.Txn.
type vertexKeyScanner interface {
	Next() bool
	Key() []byte
	Close()
}

// Types returns an iterator over every vertex of encoding, in
// ascending id order.
func (g *Graph) Types(encoding Encoding) *VertexIterator {
	it, err := g.txn.Scan(codec.VertexPrefix(encoding))
	if err != nil {
		return &VertexIterator{err: fmt.Errorf("schema: scanning types: %w", err)}
	}
	return &VertexIterator{graph: g, it: it}
}

// Next advances to the next vertex. A scan bounded by codec.VertexPrefix
// also surfaces that encoding's property and edge keys, since both
// extend a vertex key's bytes, so Next skips any hit that isn't
// exactly a vertex key rather than handing it to DecodeVertexKey.
func (vi *VertexIterator) Next() bool {
	if vi.err != nil || vi.it == nil {
		return false
	}
	for vi.it.Next() {
		key := vi.it.Key()
		if len(key) != codec.VertexKeyLen {
			continue
		}
		_, id, err := codec.DecodeVertexKey(key)
		if err != nil {
			vi.err = fmt.Errorf("schema: decoding vertex key: %w", err)
			return false
		}
		v, err := vi.graph.Vertex(id)
		if err != nil {
			vi.err = err
			return false
		}
		vi.cur = v
		return true
	}
	vi.cur = nil
	return false
}

// Vertex returns the current vertex.
func (vi *VertexIterator) Vertex() *Vertex { return vi.cur }

// Err returns any error encountered while scanning.
func (vi *VertexIterator) Err() error { return vi.err }

// Close releases the iterator's backing kv resources.
func (vi *VertexIterator) Close() {
	if vi.it != nil {
		vi.it.Close()
	}
}
