package schema

import (
	"fmt"

	"github.com/latticedb/schemagraph/pkg/codec"
)

// VertexID is re-exported from codec so callers need not import both
// packages for the common case.
type VertexID = codec.VertexID

// Encoding is re-exported from codec; see codec.Encoding for the kind
// tags (EntityType, RelationType, AttributeType, RoleType, ThingRoot).
type Encoding = codec.Encoding

const (
	EntityType    = codec.EntityType
	RelationType  = codec.RelationType
	AttributeType = codec.AttributeType
	RoleType      = codec.RoleType
	ThingRoot     = codec.ThingRoot
)

// ValueType names the scalar type of an attribute-type vertex.
// Populated only on AttributeType vertices (spec §3).
type ValueType string

const (
	ValueTypeNone     ValueType = ""
	ValueTypeBoolean  ValueType = "boolean"
	ValueTypeLong     ValueType = "long"
	ValueTypeDouble   ValueType = "double"
	ValueTypeString   ValueType = "string"
	ValueTypeDateTime ValueType = "datetime"
)

// Root vertex identifiers and labels. Roots are created once, on a
// store's first use, and may never be mutated or deleted (R10).
const (
	RootEntityID    VertexID = 1
	RootRelationID  VertexID = 2
	RootAttributeID VertexID = 3
	RootRoleID      VertexID = 4
	RootThingID     VertexID = 5
)

const (
	RootEntityLabel    = "entity"
	RootRelationLabel  = "relation"
	RootAttributeLabel = "attribute"
	RootRoleLabel      = "role"
	RootRoleScope      = "relation"
	RootThingLabel     = "thing"
)

// rootDescriptor describes one of the five fixed roots created at
// store-init time.
type rootDescriptor struct {
	id       VertexID
	encoding Encoding
	label    string
	scope    string
}

var rootDescriptors = []rootDescriptor{
	{RootEntityID, EntityType, RootEntityLabel, ""},
	{RootRelationID, RelationType, RootRelationLabel, ""},
	{RootAttributeID, AttributeType, RootAttributeLabel, ""},
	{RootRoleID, RoleType, RootRoleLabel, RootRoleScope},
	{RootThingID, ThingRoot, RootThingLabel, ""},
}

// RootOf returns the fixed root vertex id for encoding. RoleType's
// root is the "role:relation" role; every other encoding has exactly
// one root.
func RootOf(encoding Encoding) VertexID {
	switch encoding {
	case EntityType:
		return RootEntityID
	case RelationType:
		return RootRelationID
	case AttributeType:
		return RootAttributeID
	case RoleType:
		return RootRoleID
	case ThingRoot:
		return RootThingID
	default:
		return 0
	}
}

// Vertex is an in-memory, intern-cached type vertex (C3). Requesting
// the same id twice from a Graph always returns the same *Vertex
// instance; see Graph.Vertex.
type Vertex struct {
	graph    *Graph
	id       VertexID
	encoding Encoding

	label     string
	scope     string
	abstract  bool
	valueType ValueType

	propertiesLoaded bool
	modified         bool
	isNew            bool
	deleted          bool

	out *Adjacency
	in  *Adjacency
}

// ID returns the vertex's internal identifier.
func (v *Vertex) ID() VertexID { return v.id }

// Encoding returns the vertex's kind tag.
func (v *Vertex) Encoding() Encoding { return v.encoding }

// IsRoot reports whether v is one of the five fixed root vertices.
func (v *Vertex) IsRoot() bool { return v.id == RootOf(v.encoding) }

// IsDeleted reports whether v has been tombstoned in this
// transaction.
func (v *Vertex) IsDeleted() bool { return v.deleted }

// Label returns the vertex's label, loading it from storage on first
// access if this vertex was not created in the current transaction.
func (v *Vertex) Label() (string, error) {
	if err := v.ensureLoaded(); err != nil {
		return "", err
	}
	return v.label, nil
}

// Scope returns the vertex's scope. Only role-type vertices carry a
// meaningful scope; for other encodings it is always "".
func (v *Vertex) Scope() (string, error) {
	if err := v.ensureLoaded(); err != nil {
		return "", err
	}
	return v.scope, nil
}

// Abstract reports whether the vertex is marked abstract.
func (v *Vertex) Abstract() (bool, error) {
	if err := v.ensureLoaded(); err != nil {
		return false, err
	}
	return v.abstract, nil
}

// ValueType returns the vertex's scalar value type. Meaningful only
// for AttributeType vertices.
func (v *Vertex) ValueType() (ValueType, error) {
	if err := v.ensureLoaded(); err != nil {
		return ValueTypeNone, err
	}
	return v.valueType, nil
}

// SetLabel renames the vertex. On a relation-type vertex it also
// rewrites the scope of every role-type vertex the relation directly
// declares via an outbound RELATES edge, since a role's scope is its
// declaring relation's label (see DESIGN.md for why this does not
// cascade to inherited roles).
func (v *Vertex) SetLabel(label string) error {
	if v.IsRoot() {
		return ErrRootTypeMutation
	}
	if err := v.ensureLoaded(); err != nil {
		return err
	}
	if label == "" {
		return fmt.Errorf("schema: label must not be empty")
	}

	oldLabel := v.label
	if oldLabel == label {
		return nil
	}
	v.graph.markStaleIndex(indexKey{v.encoding, oldLabel, v.scope})
	v.label = label
	v.markModified()
	v.graph.index[indexKey{v.encoding, label, v.scope}] = v.id

	if v.encoding == RelationType {
		it := v.Out().To(codec.Relates)
		for it.Next() {
			role, err := v.graph.Vertex(it.Peer())
			if err != nil {
				return err
			}
			if _, err := role.Label(); err != nil {
				return err
			}
			v.graph.markStaleIndex(indexKey{role.encoding, role.label, role.scope})
			role.scope = label
			role.markModified()
			v.graph.index[indexKey{role.encoding, role.label, label}] = role.id
		}
	}
	return nil
}

// SetAbstract marks or clears the vertex's abstractness. Callers are
// expected to run the validator (R4, R10) before calling this; Vertex
// itself does not check instance state.
func (v *Vertex) SetAbstract(abstract bool) error {
	if v.IsRoot() {
		return ErrRootTypeMutation
	}
	if err := v.ensureLoaded(); err != nil {
		return err
	}
	v.abstract = abstract
	v.markModified()
	return nil
}

// SetValueType sets the scalar value type. Only meaningful on
// AttributeType vertices; callers should not call this on other
// encodings.
func (v *Vertex) SetValueType(vt ValueType) error {
	if v.IsRoot() {
		return ErrRootTypeMutation
	}
	if err := v.ensureLoaded(); err != nil {
		return err
	}
	v.valueType = vt
	v.markModified()
	return nil
}

func (v *Vertex) markModified() {
	v.modified = true
	v.graph.bumpEpoch()
}

// Out returns the vertex's outbound adjacency, creating it on first
// use.
func (v *Vertex) Out() *Adjacency {
	if v.out == nil {
		v.out = newAdjacency(v.graph, v, codec.Out)
	}
	return v.out
}

// In returns the vertex's inbound adjacency, creating it on first
// use.
func (v *Vertex) In() *Adjacency {
	if v.in == nil {
		v.in = newAdjacency(v.graph, v, codec.In)
	}
	return v.in
}

func (v *Vertex) adjacency(dir codec.Direction) *Adjacency {
	if dir == codec.Out {
		return v.Out()
	}
	return v.In()
}

// ensureLoaded lazily fetches a vertex's scalar properties from the
// backing store the first time any of them is read, unless the
// vertex was created fresh in this transaction (in which case there
// is nothing to load).
func (v *Vertex) ensureLoaded() error {
	if v.propertiesLoaded || v.isNew {
		v.propertiesLoaded = true
		return nil
	}
	if err := v.graph.loadVertexProperties(v); err != nil {
		return err
	}
	v.propertiesLoaded = true
	return nil
}
