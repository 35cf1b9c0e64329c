package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/latticedb/schemagraph/pkg/codec"
	"github.com/latticedb/schemagraph/pkg/kv"
)

// Annotation carries the extra, edge-kind-specific data an OWNS,
// PLAYS, or RELATES edge may need beyond its endpoints. Overridden names the peer
// vertex of the supertype edge this edge overrides; it is zero when
// the edge overrides nothing.
type Annotation struct {
	Overridden VertexID `json:"overridden,omitempty"`
}

// edgeValue is the JSON payload stored at an edge key. Only the Out
// record of a pair needs an annotation read back; the In mirror
// stores the same payload so either endpoint can answer Annotation
// queries without resolving its peer.
type edgeValue struct {
	Overridden uint64 `json:"overridden,omitempty"`
}

func (a Annotation) marshal() []byte {
	v := edgeValue{Overridden: uint64(a.Overridden)}
	b, _ := json.Marshal(v)
	return b
}

func unmarshalAnnotation(raw []byte) (Annotation, error) {
	if len(raw) == 0 {
		return Annotation{}, nil
	}
	var v edgeValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return Annotation{}, fmt.Errorf("schema: decoding edge annotation: %w", err)
	}
	return Annotation{Overridden: VertexID(v.Overridden)}, nil
}

// Edge is one typed, directed connection from an adjacency's owning
// vertex to a peer vertex.
type Edge struct {
	Peer         VertexID
	PeerEncoding Encoding
	Annotation   Annotation

	deleted bool
}

// bucket holds every known edge of one EdgeEncoding at one direction,
// keyed by peer id, plus a standing sort order used to serve
// ascending iteration without re-sorting on every call.
type bucket struct {
	loaded  bool
	edges   map[VertexID]*Edge
	order   []VertexID // ascending peer ids, rebuilt when edges are added
	dirty   bool       // true when order needs re-sorting
}

func newBucket() *bucket {
	return &bucket{edges: make(map[VertexID]*Edge)}
}

func (b *bucket) put(e *Edge) {
	if _, exists := b.edges[e.Peer]; !exists {
		b.order = append(b.order, e.Peer)
		b.dirty = true
	}
	b.edges[e.Peer] = e
}

func (b *bucket) remove(peer VertexID) {
	if e, ok := b.edges[peer]; ok {
		e.deleted = true
	}
}

func (b *bucket) sortedOrder() []VertexID {
	if b.dirty {
		sort.Slice(b.order, func(i, j int) bool { return b.order[i] < b.order[j] })
		b.dirty = false
	}
	return b.order
}

// Adjacency is a vertex's typed edge set in one direction (C4). It is
// loaded lazily, one EdgeEncoding bucket at a time, and buffers
// mutations in memory until the owning transaction commits.
type Adjacency struct {
	graph    *Graph
	owner    *Vertex
	dir      codec.Direction
	buckets  map[codec.EdgeEncoding]*bucket
}

func newAdjacency(g *Graph, owner *Vertex, dir codec.Direction) *Adjacency {
	return &Adjacency{graph: g, owner: owner, dir: dir, buckets: make(map[codec.EdgeEncoding]*bucket)}
}

func (a *Adjacency) bucketFor(enc codec.EdgeEncoding) (*bucket, error) {
	b, ok := a.buckets[enc]
	if !ok {
		b = newBucket()
		a.buckets[enc] = b
	}
	if !b.loaded {
		if err := a.graph.loadAdjacencyBucket(a.owner, a.dir, enc, b); err != nil {
			return nil, err
		}
		b.loaded = true
	}
	return b, nil
}

// To returns a forwardable iterator over every live edge of enc held
// by this adjacency, in ascending peer-id order.
func (a *Adjacency) To(enc codec.EdgeEncoding) *EdgeIterator {
	b, err := a.bucketFor(enc)
	if err != nil {
		return &EdgeIterator{err: err}
	}
	return &EdgeIterator{bucket: b, order: append([]VertexID(nil), b.sortedOrder()...)}
}

// Get returns the live edge to peer of encoding enc, if any.
func (a *Adjacency) Get(enc codec.EdgeEncoding, peer VertexID) (*Edge, error) {
	b, err := a.bucketFor(enc)
	if err != nil {
		return nil, err
	}
	e, ok := b.edges[peer]
	if !ok || e.deleted {
		return nil, ErrNotFound
	}
	return e, nil
}

// Has reports whether a live edge of encoding enc to peer exists.
func (a *Adjacency) Has(enc codec.EdgeEncoding, peer VertexID) bool {
	_, err := a.Get(enc, peer)
	return err == nil
}

// Put records an edge from the owning vertex to peer and writes its
// mirror on peer's opposite-direction adjacency, so the two endpoints
// stay symmetric in memory until commit flushes both records.
func (a *Adjacency) Put(enc codec.EdgeEncoding, peer *Vertex, ann Annotation) error {
	b, err := a.bucketFor(enc)
	if err != nil {
		return err
	}
	b.put(&Edge{Peer: peer.ID(), PeerEncoding: peer.Encoding(), Annotation: ann})

	mirrorDir := mirror(a.dir)
	mirrorAdj := peer.adjacency(mirrorDir)
	mb, err := mirrorAdj.bucketFor(enc)
	if err != nil {
		return err
	}
	mb.put(&Edge{Peer: a.owner.ID(), PeerEncoding: a.owner.Encoding(), Annotation: ann})

	a.owner.markModified()
	peer.markModified()
	return nil
}

// Remove deletes the edge from the owning vertex to peer, and its
// mirror, if one exists.
func (a *Adjacency) Remove(enc codec.EdgeEncoding, peer *Vertex) error {
	b, err := a.bucketFor(enc)
	if err != nil {
		return err
	}
	b.remove(peer.ID())

	mirrorDir := mirror(a.dir)
	mirrorAdj := peer.adjacency(mirrorDir)
	mb, err := mirrorAdj.bucketFor(enc)
	if err != nil {
		return err
	}
	mb.remove(a.owner.ID())

	a.owner.markModified()
	peer.markModified()
	return nil
}

// DeleteAll removes every outbound and inbound edge touching the
// owning vertex, across every edge encoding. Used when a type is
// deleted (a type with no instances, see RNoInstancesOnDelete, may
// still carry schema edges that must be torn down along with it).
func (v *Vertex) DeleteAll() error {
	for _, enc := range []codec.EdgeEncoding{codec.Sub, codec.Owns, codec.OwnsKey, codec.Plays, codec.Relates} {
		if err := deleteAllOf(v.Out(), enc); err != nil {
			return err
		}
		if err := deleteAllOf(v.In(), enc); err != nil {
			return err
		}
	}
	return nil
}

func deleteAllOf(a *Adjacency, enc codec.EdgeEncoding) error {
	b, err := a.bucketFor(enc)
	if err != nil {
		return err
	}
	for _, peerID := range append([]VertexID(nil), b.sortedOrder()...) {
		e, ok := b.edges[peerID]
		if !ok {
			continue
		}
		peer, err := a.graph.Vertex(e.Peer)
		if err != nil {
			return err
		}
		if err := a.Remove(enc, peer); err != nil {
			return err
		}
	}
	return nil
}

func mirror(dir codec.Direction) codec.Direction {
	if dir == codec.Out {
		return codec.In
	}
	return codec.Out
}

// EdgeIterator is a forwardable, sorted iterator over one adjacency
// bucket. It snapshots the bucket's peer-id order at creation time
// but re-checks live membership at each Next call, so edges removed
// after the iterator was created are skipped rather than served
// stale, and edges added after creation are not retroactively
// surfaced mid-scan (spec's "tolerates concurrent mutation"
// guarantee, mirroring kv.Iterator).
type EdgeIterator struct {
	bucket  *bucket
	order   []VertexID
	pos     int
	current *Edge
	err     error
}

// Next advances to the next live edge, returning false when the
// iterator is exhausted or failed during lazy load.
func (it *EdgeIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.pos < len(it.order) {
		peer := it.order[it.pos]
		it.pos++
		if e, ok := it.bucket.edges[peer]; ok && !e.deleted {
			it.current = e
			return true
		}
	}
	it.current = nil
	return false
}

// Seek discards entries up to the first with peer id >= target,
// positioning the iterator so the next Next call lands there.
func (it *EdgeIterator) Seek(target VertexID) {
	if it.err != nil {
		return
	}
	it.pos = sort.Search(len(it.order), func(i int) bool { return it.order[i] >= target })
}

// Peer returns the current edge's peer vertex id.
func (it *EdgeIterator) Peer() VertexID {
	if it.current == nil {
		return 0
	}
	return it.current.Peer
}

// Edge returns the current edge.
func (it *EdgeIterator) Edge() *Edge {
	return it.current
}

// Err returns any error encountered while lazily loading the
// iterator's backing bucket.
func (it *EdgeIterator) Err() error {
	return it.err
}

// loadAdjacencyBucket fills b with every edge recorded in the backing
// store for (owner, dir, enc). Buckets that were never written have
// no keys to scan and simply come back empty.
func (g *Graph) loadAdjacencyBucket(owner *Vertex, dir codec.Direction, enc codec.EdgeEncoding, b *bucket) error {
	prefix := codec.EdgePrefix(owner.Encoding(), owner.ID(), dir, enc)
	it, err := g.txn.Scan(prefix)
	if err != nil {
		return fmt.Errorf("schema: scanning adjacency: %w", err)
	}
	defer it.Close()

	for it.Next() {
		decoded, err := codec.DecodeEdgeKey(it.Key())
		if err != nil {
			return fmt.Errorf("schema: decoding edge key: %w", err)
		}
		ann, err := unmarshalAnnotation(it.Value())
		if err != nil {
			return err
		}
		b.put(&Edge{Peer: decoded.To, PeerEncoding: decoded.ToEncoding, Annotation: ann})
	}
	return nil
}

// flushBucket writes every buffered mutation in a (loaded) bucket
// to txn, emitting one key for the live edges and a delete for any
// edge that was removed since load.
func flushBucket(txn kv.Txn, owner *Vertex, dir codec.Direction, enc codec.EdgeEncoding, b *bucket) error {
	if b == nil || !b.loaded {
		return nil
	}
	for peer, e := range b.edges {
		key := codec.EncodeEdgeKey(owner.Encoding(), owner.ID(), dir, enc, e.PeerEncoding, peer)
		if e.deleted {
			if err := txn.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := txn.Put(key, e.Annotation.marshal()); err != nil {
			return err
		}
	}
	return nil
}
