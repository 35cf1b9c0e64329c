package schema

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/latticedb/schemagraph/pkg/codec"
	"github.com/latticedb/schemagraph/pkg/kv"
)

// Store opens a schema graph over a kv.Store, bootstrapping the five
// root vertices on first use and handing out one Graph per
// transaction. It owns the process-wide id allocator so ids stay
// unique across concurrent transactions against the same backing
// store.
type Store struct {
	kv     kv.Store
	nextID atomic.Uint64
}

// Open wraps backing, seeding the id allocator from the highest
// vertex id already persisted (or from the five reserved root ids if
// the store is empty), and ensures the root vertices exist.
func Open(ctx context.Context, backing kv.Store) (*Store, error) {
	s := &Store{kv: backing}
	s.nextID.Store(uint64(RootThingID))

	txn, err := backing.BeginTxn(true)
	if err != nil {
		return nil, fmt.Errorf("schema: opening store: %w", err)
	}
	defer txn.Rollback()

	maxID, err := highestVertexID(txn)
	if err != nil {
		return nil, err
	}
	if maxID > uint64(RootThingID) {
		s.nextID.Store(maxID)
	}

	if err := ensureRoots(txn); err != nil {
		return nil, err
	}
	if err := txn.Commit(ctx); err != nil {
		return nil, fmt.Errorf("schema: bootstrapping roots: %w", err)
	}
	return s, nil
}

// highestVertexID scans every encoding's vertex prefix to seed the id
// allocator on reopen. The same prefix also matches that encoding's
// property and edge keys (both extend a vertex key's bytes), so scan
// hits that aren't exactly vertex-key length are skipped rather than
// passed to DecodeVertexKey.
func highestVertexID(txn kv.Txn) (uint64, error) {
	var max uint64
	for _, enc := range []codec.Encoding{codec.EntityType, codec.RelationType, codec.AttributeType, codec.RoleType, codec.ThingRoot} {
		it, err := txn.Scan(codec.VertexPrefix(enc))
		if err != nil {
			return 0, fmt.Errorf("schema: scanning vertices: %w", err)
		}
		for it.Next() {
			key := it.Key()
			if len(key) != codec.VertexKeyLen {
				continue
			}
			_, id, err := codec.DecodeVertexKey(key)
			if err != nil {
				it.Close()
				return 0, fmt.Errorf("schema: decoding vertex key: %w", err)
			}
			if uint64(id) > max {
				max = uint64(id)
			}
		}
		it.Close()
	}
	return max, nil
}

func ensureRoots(txn kv.Txn) error {
	for _, rd := range rootDescriptors {
		key := codec.EncodeVertexKey(rd.encoding, rd.id)
		_, err := txn.Get(codec.EncodePropertyKey(rd.encoding, rd.id, codec.PropertyLabel))
		if err == nil {
			continue
		}
		if err != kv.ErrNotFound {
			return fmt.Errorf("schema: checking root %s: %w", rd.label, err)
		}
		if err := txn.Put(key, nil); err != nil {
			return err
		}
		if err := writeVertexProperties(txn, rd.encoding, rd.id, rd.label, rd.scope, false, ValueTypeNone); err != nil {
			return err
		}
	}
	return nil
}

func writeVertexProperties(txn kv.Txn, encoding Encoding, id VertexID, label, scope string, abstract bool, vt ValueType) error {
	if err := txn.Put(codec.EncodePropertyKey(encoding, id, codec.PropertyLabel), []byte(label)); err != nil {
		return err
	}
	if err := txn.Put(codec.EncodePropertyKey(encoding, id, codec.PropertyScope), []byte(scope)); err != nil {
		return err
	}
	abstractByte := []byte{0}
	if abstract {
		abstractByte = []byte{1}
	}
	if err := txn.Put(codec.EncodePropertyKey(encoding, id, codec.PropertyAbstract), abstractByte); err != nil {
		return err
	}
	if err := txn.Put(codec.EncodePropertyKey(encoding, id, codec.PropertyValue), []byte(vt)); err != nil {
		return err
	}
	return txn.Put(codec.EncodeIndexKey(encoding, label, scope), encodeIndexValue(id))
}

func encodeIndexValue(id VertexID) []byte {
	return codec.EncodeVertexKey(codec.ThingRoot, id)[3:] // reuse the big-endian id encoding, no encoding tag needed
}

func decodeIndexValue(raw []byte) (VertexID, error) {
	if len(raw) != 8 {
		return 0, codec.ErrMalformedKey
	}
	var id uint64
	for _, b := range raw {
		id = id<<8 | uint64(b)
	}
	return VertexID(id), nil
}

// Begin starts a new transaction over the schema graph.
func (s *Store) Begin(writable bool) (*Graph, error) {
	txn, err := s.kv.BeginTxn(writable)
	if err != nil {
		return nil, fmt.Errorf("schema: beginning transaction: %w", err)
	}
	return &Graph{
		store:       s,
		txn:         txn,
		vertices:    make(map[VertexID]*Vertex),
		index:       make(map[indexKey]VertexID),
		closureMemo: make(map[closureKey]closureEntry),
	}, nil
}

// Close closes the underlying backing store.
func (s *Store) Close() error { return s.kv.Close() }

// closureKey identifies one memoized transitive-closure computation.
type closureKey struct {
	kind string
	root VertexID
}

type closureEntry struct {
	epoch uint64
	ids   []VertexID
}

// Graph is the per-transaction schema graph container (C5): an
// identity cache over Vertex, a label index, and the transitive
// closure memo table, all backed by one kv.Txn.
type Graph struct {
	store *Store
	txn   kv.Txn

	vertices map[VertexID]*Vertex
	index    map[indexKey]VertexID

	epoch       uint64
	closureMemo map[closureKey]closureEntry

	staleIndexKeys []indexKey

	done bool
}

// markStaleIndex records that ik no longer points at a live vertex
// and should be removed from the backing index at commit.
func (g *Graph) markStaleIndex(ik indexKey) {
	g.staleIndexKeys = append(g.staleIndexKeys, ik)
}

// indexKey mirrors the (encoding, label, scope) triple the backing
// index key encodes, used to spot duplicate labels created earlier in
// the same transaction, before they have been flushed to the index.
type indexKey struct {
	encoding Encoding
	label    string
	scope    string
}

func (g *Graph) bumpEpoch() { g.epoch++ }

// Vertex returns the interned *Vertex for id, loading it from the
// backing transaction on first request within this Graph.
func (g *Graph) Vertex(id VertexID) (*Vertex, error) {
	if v, ok := g.vertices[id]; ok {
		return v, nil
	}
	encoding, err := g.encodingOf(id)
	if err != nil {
		return nil, err
	}
	v := &Vertex{graph: g, id: id, encoding: encoding}
	g.vertices[id] = v
	return v, nil
}

// encodingOf discovers which Encoding a persisted vertex id was
// stored under by checking each vertex-key shape. Root ids are known
// statically and skip the probe.
func (g *Graph) encodingOf(id VertexID) (Encoding, error) {
	for _, rd := range rootDescriptors {
		if rd.id == id {
			return rd.encoding, nil
		}
	}
	for _, enc := range []codec.Encoding{codec.EntityType, codec.RelationType, codec.AttributeType, codec.RoleType, codec.ThingRoot} {
		_, err := g.txn.Get(codec.EncodePropertyKey(enc, id, codec.PropertyLabel))
		if err == nil {
			return enc, nil
		}
		if err != kv.ErrNotFound {
			return 0, fmt.Errorf("schema: resolving vertex %d: %w", id, err)
		}
	}
	return 0, ErrNotFound
}

func (g *Graph) loadVertexProperties(v *Vertex) error {
	label, err := g.txn.Get(codec.EncodePropertyKey(v.encoding, v.id, codec.PropertyLabel))
	if err != nil {
		if err == kv.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("schema: loading label: %w", err)
	}
	v.label = string(label)

	if scope, err := g.txn.Get(codec.EncodePropertyKey(v.encoding, v.id, codec.PropertyScope)); err == nil {
		v.scope = string(scope)
	}
	if abstract, err := g.txn.Get(codec.EncodePropertyKey(v.encoding, v.id, codec.PropertyAbstract)); err == nil {
		v.abstract = len(abstract) == 1 && abstract[0] == 1
	}
	if vt, err := g.txn.Get(codec.EncodePropertyKey(v.encoding, v.id, codec.PropertyValue)); err == nil {
		v.valueType = ValueType(vt)
	}
	return nil
}

// GetType resolves a (encoding, label, scope) triple to its vertex via
// the label index.
func (g *Graph) GetType(encoding Encoding, label, scope string) (*Vertex, error) {
	ik := indexKey{encoding, label, scope}
	if id, ok := g.index[ik]; ok {
		return g.Vertex(id)
	}

	raw, err := g.txn.Get(codec.EncodeIndexKey(encoding, label, scope))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("schema: looking up type: %w", err)
	}
	id, err := decodeIndexValue(raw)
	if err != nil {
		return nil, err
	}
	g.index[ik] = id
	return g.Vertex(id)
}

// Root returns the fixed root vertex for encoding.
func (g *Graph) Root(encoding Encoding) (*Vertex, error) {
	return g.Vertex(RootOf(encoding))
}

// CreateType allocates a new type vertex of the given encoding and
// label, directly below root. scope is only meaningful for role-type
// vertices. Callers are expected to have already run the validator
// (RUniqueLabel, duplicate-label checks) before calling this.
func (g *Graph) CreateType(encoding Encoding, label, scope string) (*Vertex, error) {
	if _, err := g.GetType(encoding, label, scope); err == nil {
		return nil, ErrAlreadyExists
	} else if err != ErrNotFound {
		return nil, err
	}

	id := VertexID(g.store.nextID.Add(1))
	v := &Vertex{
		graph:            g,
		id:               id,
		encoding:         encoding,
		label:            label,
		scope:            scope,
		isNew:            true,
		propertiesLoaded: true,
		modified:         true,
	}
	g.vertices[id] = v
	g.index[indexKey{encoding, label, scope}] = id
	g.bumpEpoch()

	root, err := g.Root(encoding)
	if err != nil {
		return nil, err
	}
	if err := v.Out().Put(codec.Sub, root, Annotation{}); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteType removes a non-root type vertex and every edge touching
// it. Callers must have already confirmed the type has no instances
// (RNoInstancesOnDelete) and is not itself somebody's supertype before
// calling this.
func (g *Graph) DeleteType(v *Vertex) error {
	if v.IsRoot() {
		return ErrRootTypeMutation
	}
	if err := v.DeleteAll(); err != nil {
		return err
	}
	v.deleted = true
	g.bumpEpoch()
	return nil
}

// SetSupertype replaces v's single outbound SUB edge with one
// pointing at supertype. Callers must have already validated the
// resulting hierarchy (R1, R2, R10, REncodingMatch; see
// Validator.ValidateSetSupertype) before calling this.
func (g *Graph) SetSupertype(v, supertype *Vertex) error {
	if v.IsRoot() {
		return ErrRootTypeMutation
	}
	existing := v.Out().To(codec.Sub)
	for existing.Next() {
		old, err := g.Vertex(existing.Peer())
		if err != nil {
			return err
		}
		if err := v.Out().Remove(codec.Sub, old); err != nil {
			return err
		}
	}
	return v.Out().Put(codec.Sub, supertype, Annotation{})
}

// Supertype returns v's direct supertype, or ErrNotFound if v is a
// root with none.
func (g *Graph) Supertype(v *Vertex) (*Vertex, error) {
	it := v.Out().To(codec.Sub)
	if !it.Next() {
		return nil, ErrNotFound
	}
	return g.Vertex(it.Peer())
}

// SetRelates declares that relationType directly relates a role named
// roleLabel, creating the role-type vertex if it does not already
// exist with that (label, scope) pair. When overriddenLabel is
// non-empty, the new RELATES edge records that it overrides the role
// of that name inherited from relationType's supertype chain (see
// RelatesOverridden), mirroring the overridden-attribute/role slot
// SetOwns and SetPlays already carry.
func (g *Graph) SetRelates(relationType *Vertex, roleLabel, overriddenLabel string) (*Vertex, error) {
	label, err := relationType.Label()
	if err != nil {
		return nil, err
	}
	role, err := g.GetType(RoleType, roleLabel, label)
	if err == ErrNotFound {
		role, err = g.CreateType(RoleType, roleLabel, label)
	}
	if err != nil {
		return nil, err
	}

	var overridden VertexID
	if overriddenLabel != "" {
		ov, err := g.resolveOverriddenRole(relationType, overriddenLabel)
		if err != nil {
			return nil, err
		}
		overridden = ov.ID()
	}

	if err := relationType.Out().Put(codec.Relates, role, Annotation{Overridden: overridden}); err != nil {
		return nil, err
	}
	return role, nil
}

// resolveOverriddenRole looks up the role named overriddenLabel among
// the roles relationType inherits (directly or transitively) before
// the prospective SetRelates edge is added.
func (g *Graph) resolveOverriddenRole(relationType *Vertex, overriddenLabel string) (*Vertex, error) {
	roles, err := g.RelatedRoleTypes(relationType)
	if err != nil {
		return nil, err
	}
	for _, id := range roles {
		role, err := g.Vertex(id)
		if err != nil {
			return nil, err
		}
		label, err := role.Label()
		if err != nil {
			return nil, err
		}
		if label == overriddenLabel {
			return role, nil
		}
	}
	return nil, ErrNotFound
}

// RelatesOverridden returns the label of the role relationType's
// direct RELATES edge to role overrides, or "" if the edge overrides
// nothing.
func (g *Graph) RelatesOverridden(relationType, role *Vertex) (string, error) {
	e, err := relationType.Out().Get(codec.Relates, role.ID())
	if err != nil {
		return "", err
	}
	if e.Annotation.Overridden == 0 {
		return "", nil
	}
	overridden, err := g.Vertex(e.Annotation.Overridden)
	if err != nil {
		return "", err
	}
	return overridden.Label()
}

// UnsetRelates removes relationType's direct RELATES edge to role.
func (g *Graph) UnsetRelates(relationType, role *Vertex) error {
	return relationType.Out().Remove(codec.Relates, role)
}

// SetOwns declares that owner directly owns attrType, optionally as a
// key (unique, mandatory) ownership and optionally overriding an
// inherited ownership of the same attribute.
func (g *Graph) SetOwns(owner, attrType *Vertex, key bool, overridden VertexID) error {
	enc := codec.Owns
	if key {
		enc = codec.OwnsKey
	}
	return owner.Out().Put(enc, attrType, Annotation{Overridden: overridden})
}

// UnsetOwns removes owner's direct ownership (either OWNS or
// OWNS_KEY) of attrType.
func (g *Graph) UnsetOwns(owner, attrType *Vertex) error {
	if owner.Out().Has(codec.OwnsKey, attrType.ID()) {
		return owner.Out().Remove(codec.OwnsKey, attrType)
	}
	return owner.Out().Remove(codec.Owns, attrType)
}

// SetPlays declares that playerType directly plays role.
func (g *Graph) SetPlays(playerType, role *Vertex, overridden VertexID) error {
	return playerType.Out().Put(codec.Plays, role, Annotation{Overridden: overridden})
}

// UnsetPlays removes playerType's direct PLAYS edge to role.
func (g *Graph) UnsetPlays(playerType, role *Vertex) error {
	return playerType.Out().Remove(codec.Plays, role)
}

// Commit runs the local commit check (R8, R9: every buffered relation
// type must declare or inherit a non-root role, and none of its
// directly declared roles may be abstract), then flushes every
// buffered vertex and edge mutation to the backing transaction and
// commits it. Declaration-time rules (R1, R2, R5, R6, R7, R10) are
// expected to have already been validated by the caller before each
// mutation; Commit only re-checks the two rules that depend on a
// relation type's final, fully-inherited role set, which cannot be
// known until every mutation in the transaction has been buffered. If
// the commit check fails, no mutation is flushed and the transaction
// remains open for Rollback.
func (g *Graph) Commit(ctx context.Context) error {
	if g.done {
		return ErrTransactionClosed
	}
	if err := NewValidator(g, nil).ValidateCommit(); err != nil {
		return err
	}
	for _, ik := range g.staleIndexKeys {
		if err := g.txn.Delete(codec.EncodeIndexKey(ik.encoding, ik.label, ik.scope)); err != nil {
			return err
		}
	}
	for _, v := range g.vertices {
		if err := g.flushVertex(v); err != nil {
			return err
		}
	}
	g.done = true
	return g.txn.Commit(ctx)
}

// Rollback discards every buffered mutation.
func (g *Graph) Rollback() error {
	if g.done {
		return nil
	}
	g.done = true
	return g.txn.Rollback()
}

func (g *Graph) flushVertex(v *Vertex) error {
	if v.deleted || v.modified {
		if err := v.ensureLoaded(); err != nil {
			return err
		}
	}
	if v.deleted {
		if err := g.flushDeletedVertex(v); err != nil {
			return err
		}
		return g.flushAdjacencyBuckets(v)
	}

	if v.isNew {
		if err := g.txn.Put(codec.EncodeVertexKey(v.encoding, v.id), nil); err != nil {
			return err
		}
	}
	if v.modified {
		if err := writeVertexProperties(g.txn, v.encoding, v.id, v.label, v.scope, v.abstract, v.valueType); err != nil {
			return err
		}
	}

	return g.flushAdjacencyBuckets(v)
}

// flushDeletedVertex removes a tombstoned vertex's own persisted
// vertex key, label properties, and index entry.
func (g *Graph) flushDeletedVertex(v *Vertex) error {
	if err := g.txn.Delete(codec.EncodeVertexKey(v.encoding, v.id)); err != nil {
		return err
	}
	if err := g.txn.Delete(codec.EncodeIndexKey(v.encoding, v.label, v.scope)); err != nil {
		return err
	}
	for _, tag := range []codec.PropertyTag{codec.PropertyLabel, codec.PropertyScope, codec.PropertyAbstract, codec.PropertyValue} {
		if err := g.txn.Delete(codec.EncodePropertyKey(v.encoding, v.id, tag)); err != nil {
			return err
		}
	}
	return nil
}

// flushAdjacencyBuckets writes every loaded outbound and inbound
// bucket on v, across every edge encoding. Called for live vertices
// to persist their edges, and for deleted vertices to remove any
// edge keys DeleteAll tombstoned.
func (g *Graph) flushAdjacencyBuckets(v *Vertex) error {
	for _, enc := range []codec.EdgeEncoding{codec.Sub, codec.Owns, codec.OwnsKey, codec.Plays, codec.Relates} {
		if v.out != nil {
			if err := flushBucket(g.txn, v, codec.Out, enc, v.out.buckets[enc]); err != nil {
				return err
			}
		}
		if v.in != nil {
			if err := flushBucket(g.txn, v, codec.In, enc, v.in.buckets[enc]); err != nil {
				return err
			}
		}
	}
	return nil
}
