package schema

import (
	"fmt"
	"strings"

	"github.com/latticedb/schemagraph/pkg/codec"
)

// RuleID names one structural consistency rule enforced before a
// mutation is allowed to stand, or before a transaction is allowed to
// commit. R1, R2, and R4-R10 are the rule catalogue (there is no R3
// RuleID and no check for it in this package); the unnumbered RuleIDs name
// additional structural invariants the catalogue assumes but does not
// itself enumerate (label uniqueness, edge-encoding matching, role
// scope, and instance-on-delete).
type RuleID string

const (
	// R1: a type's supertype must not be itself or one of its own
	// subtypes. ValidateDeleteType also reports R1 when the type to be
	// deleted still has subtypes.
	R1NoCycle RuleID = "R1-no-cycle"
	// R2: a subtype may not directly declare a RELATES, OWNS, or PLAYS
	// edge that collides with one the new supertype already grants by
	// inheritance.
	R2SupertypeConflict RuleID = "R2-supertype-conflict"
	// R4: a type may be marked abstract only while it has no direct
	// instances.
	R4AbstractRequiresNoInstances RuleID = "R4-abstract-requires-no-instances"
	// R5: an overridden RELATES, OWNS, or PLAYS edge must override a
	// role or attribute the supertype chain actually grants.
	R5OverrideMustBeInherited RuleID = "R5-override-must-be-inherited"
	// R6: a role cannot be unrelated from a relation type while a
	// subtype relation still relates it (directly or by inheritance).
	R6RoleStillRelated RuleID = "R6-role-still-related"
	// R7: an OWNS declaration's key annotation must not conflict with
	// an inherited OWNS of the same attribute.
	R7OwnsAnnotationConflict RuleID = "R7-owns-annotation-conflict"
	// R8: a concrete relation type must declare or inherit at least
	// one non-root role. Checked at commit, once every mutation in the
	// transaction has been buffered.
	R8ConcreteRelationRequiresRole RuleID = "R8-concrete-relation-requires-role"
	// R9: a concrete relation type's directly declared roles must not
	// themselves be abstract. Checked at commit, alongside R8.
	R9ConcreteRelationAbstractRole RuleID = "R9-concrete-relation-abstract-role"
	// R10: the five root vertices cannot be mutated or deleted.
	R10RootImmutable RuleID = "R10-root-immutable"

	// RUniqueLabel: (encoding, label, scope) must be unique.
	RUniqueLabel RuleID = "unique-label"
	// REncodingMatch: SUB, OWNS, and PLAYS edges only connect vertices
	// of the Encoding the edge kind requires (an entity type cannot
	// subtype a relation type, OWNS must target an attribute type,
	// PLAYS must target a role type).
	REncodingMatch RuleID = "encoding-match"
	// RRoleScopeConsistency: a role's scope must equal the label of a
	// relation type that directly relates it.
	RRoleScopeConsistency RuleID = "role-scope-consistency"
	// RNoInstancesOnDelete: a type cannot be deleted while it has
	// direct instances.
	RNoInstancesOnDelete RuleID = "no-instances-on-delete"
)

// Violation is one rule failure found while validating a pending
// mutation.
type Violation struct {
	Rule    RuleID
	Message string
}

// ValidationError wraps one or more Violations. Mutations that fail
// validation are never buffered into the Graph; the caller sees this
// error instead and the Graph is left exactly as it was.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("schema: validation failed: %s: %s", e.Violations[0].Rule, e.Violations[0].Message)
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Rule, v.Message)
	}
	return fmt.Sprintf("schema: validation failed (%d violations): %s", len(e.Violations), strings.Join(msgs, "; "))
}

func asValidationError(violations []Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}

// InstanceChecker answers whether a type vertex currently has direct
// instances. The schema graph itself holds no instance data (spec
// scopes that to a separate data-plane component); callers that do
// maintain instances wire in a checker so R4 and instance-on-delete
// can be enforced, callers that don't may pass a checker that always
// reports false.
type InstanceChecker func(VertexID) (bool, error)

// Validator runs the structural consistency rules (R1, R2, R4-R10) against a
// Graph before a mutation is allowed to stand, or before a
// transaction is allowed to commit. It holds no state of its own
// beyond the Graph and InstanceChecker it was built with, so a single
// Validator can be reused across many prospective mutations within
// one transaction.
type Validator struct {
	graph     *Graph
	instances InstanceChecker
}

// NewValidator builds a Validator over graph. instances may be nil,
// in which case R4 and instance-on-delete are treated as
// always-satisfied.
func NewValidator(graph *Graph, instances InstanceChecker) *Validator {
	return &Validator{graph: graph, instances: instances}
}

func (v *Validator) hasInstances(id VertexID) (bool, error) {
	if v.instances == nil {
		return false, nil
	}
	return v.instances(id)
}

// ValidateSetSupertype checks a prospective SetSupertype(child, super)
// call.
func (v *Validator) ValidateSetSupertype(child, super *Vertex) error {
	var violations []Violation

	if child.IsRoot() {
		violations = append(violations, Violation{R10RootImmutable, "cannot change the supertype of a root type"})
	}
	if child.encoding != super.encoding {
		violations = append(violations, Violation{REncodingMatch,
			fmt.Sprintf("cannot subtype a %s with a %s", super.encoding, child.encoding)})
	}
	if child.id == super.id {
		violations = append(violations, Violation{R1NoCycle, "a type cannot be its own supertype"})
	} else {
		isDescendant, err := v.graph.IsSubtypeOf(super, child)
		if err != nil {
			return err
		}
		if isDescendant {
			violations = append(violations, Violation{R1NoCycle, "supertype must not be a subtype of the type being changed"})
		}
	}

	conflicts, err := v.conflictingDirectDeclarations(child, super)
	if err != nil {
		return err
	}
	violations = append(violations, conflicts...)

	return asValidationError(violations)
}

// conflictingDirectDeclarations finds every RELATES, OWNS, or PLAYS
// edge child declares directly (not as an override) whose peer is
// already part of super's inherited closure - a type reparented under
// super would otherwise both declare and inherit the same peer, which
// the override mechanism exists precisely to express instead.
func (v *Validator) conflictingDirectDeclarations(child, super *Vertex) ([]Violation, error) {
	var violations []Violation

	owned, err := v.graph.Owns(super)
	if err != nil {
		return nil, err
	}
	for _, enc := range []codec.EdgeEncoding{codec.Owns, codec.OwnsKey} {
		peers, err := v.directNonOverridingPeers(child, enc)
		if err != nil {
			return nil, err
		}
		for _, id := range peers {
			if containsID(owned, id) {
				violations = append(violations, v.conflictViolation(child, super, id, "owns"))
			}
		}
	}

	played, err := v.graph.Plays(super)
	if err != nil {
		return nil, err
	}
	directPlays, err := v.directNonOverridingPeers(child, codec.Plays)
	if err != nil {
		return nil, err
	}
	for _, id := range directPlays {
		if containsID(played, id) {
			violations = append(violations, v.conflictViolation(child, super, id, "plays"))
		}
	}

	if super.encoding == RelationType {
		related, err := v.graph.RelatedRoleTypes(super)
		if err != nil {
			return nil, err
		}
		directRelates, err := v.directNonOverridingPeers(child, codec.Relates)
		if err != nil {
			return nil, err
		}
		for _, id := range directRelates {
			if containsID(related, id) {
				violations = append(violations, v.conflictViolation(child, super, id, "relates"))
			}
		}
	}

	return violations, nil
}

func (v *Validator) directNonOverridingPeers(t *Vertex, enc codec.EdgeEncoding) ([]VertexID, error) {
	it := t.Out().To(enc)
	var ids []VertexID
	for it.Next() {
		e := it.Edge()
		if e.Annotation.Overridden == 0 {
			ids = append(ids, e.Peer)
		}
	}
	return ids, it.Err()
}

func (v *Validator) conflictViolation(child, super *Vertex, peer VertexID, what string) Violation {
	label := fmt.Sprintf("#%d", peer)
	if p, err := v.graph.Vertex(peer); err == nil {
		label = mustLabel(p)
	}
	return Violation{R2SupertypeConflict,
		fmt.Sprintf("%s directly %s %q, which it would already inherit from %s",
			mustLabel(child), what, label, mustLabel(super))}
}

func containsID(ids []VertexID, target VertexID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

// ValidateCreateType checks a prospective CreateType(encoding, label,
// scope) call.
func (v *Validator) ValidateCreateType(encoding Encoding, label, scope string) error {
	var violations []Violation
	if label == "" {
		violations = append(violations, Violation{RUniqueLabel, "label must not be empty"})
	}
	if _, err := v.graph.GetType(encoding, label, scope); err == nil {
		violations = append(violations, Violation{RUniqueLabel,
			fmt.Sprintf("a %s named %q already exists", encoding, label)})
	} else if err != ErrNotFound {
		return err
	}
	return asValidationError(violations)
}

// ValidateSetAbstract checks a prospective SetAbstract(target, true)
// call. Clearing the abstract flag is always structurally safe.
func (v *Validator) ValidateSetAbstract(target *Vertex, abstract bool) error {
	if !abstract {
		return nil
	}
	var violations []Violation
	if target.IsRoot() {
		violations = append(violations, Violation{R10RootImmutable, "root types are already implicitly abstract"})
	}
	has, err := v.hasInstances(target.id)
	if err != nil {
		return err
	}
	if has {
		violations = append(violations, Violation{R4AbstractRequiresNoInstances,
			"cannot mark a type abstract while it has direct instances"})
	}
	return asValidationError(violations)
}

// ValidateDeleteType checks a prospective DeleteType(target) call.
func (v *Validator) ValidateDeleteType(target *Vertex) error {
	var violations []Violation
	if target.IsRoot() {
		violations = append(violations, Violation{R10RootImmutable, "root types cannot be deleted"})
	}
	has, err := v.hasInstances(target.id)
	if err != nil {
		return err
	}
	if has {
		violations = append(violations, Violation{RNoInstancesOnDelete, "cannot delete a type that has direct instances"})
	}
	subtypes, err := v.graph.Subtypes(target)
	if err != nil {
		return err
	}
	if len(subtypes) > 0 {
		violations = append(violations, Violation{R1NoCycle, "cannot delete a type that still has subtypes"})
	}
	return asValidationError(violations)
}

// ValidateSetRelates checks a prospective SetRelates(relationType,
// roleLabel, overriddenLabel) call against an already-resolved
// (possibly new) role vertex.
func (v *Validator) ValidateSetRelates(relationType, role *Vertex, overriddenLabel string) error {
	var violations []Violation
	if relationType.encoding != RelationType {
		violations = append(violations, Violation{REncodingMatch, "only a relation type can relate a role"})
	}
	relationLabel, err := relationType.Label()
	if err != nil {
		return err
	}
	roleScope, err := role.Scope()
	if err != nil {
		return err
	}
	if roleScope != relationLabel {
		violations = append(violations, Violation{RRoleScopeConsistency,
			fmt.Sprintf("role %q is scoped to %q, not %q", mustLabel(role), roleScope, relationLabel)})
	}
	if overriddenLabel != "" {
		if _, err := v.graph.resolveOverriddenRole(relationType, overriddenLabel); err != nil {
			if err != ErrNotFound {
				return err
			}
			violations = append(violations, Violation{R5OverrideMustBeInherited,
				fmt.Sprintf("%q does not inherit a role named %q to override", relationLabel, overriddenLabel)})
		}
	}
	return asValidationError(violations)
}

// ValidateUnsetRelates checks a prospective UnsetRelates(relationType,
// role) call.
func (v *Validator) ValidateUnsetRelates(relationType, role *Vertex) error {
	var violations []Violation
	subtypes, err := v.graph.Subtypes(relationType)
	if err != nil {
		return err
	}
	for _, id := range subtypes {
		sub, err := v.graph.Vertex(id)
		if err != nil {
			return err
		}
		roles, err := v.graph.RelatedRoleTypes(sub)
		if err != nil {
			return err
		}
		for _, rid := range roles {
			if rid == role.id {
				violations = append(violations, Violation{R6RoleStillRelated,
					fmt.Sprintf("subtype %q still relates this role", mustLabel(sub))})
			}
		}
	}
	return asValidationError(violations)
}

// ValidateSetOwns checks a prospective SetOwns(owner, attrType, key,
// overridden) call.
func (v *Validator) ValidateSetOwns(owner, attrType *Vertex, key bool, overridden VertexID) error {
	var violations []Violation
	if attrType.encoding != AttributeType {
		violations = append(violations, Violation{REncodingMatch, "OWNS must target an attribute type"})
	}
	if overridden != 0 {
		owned, err := v.graph.Owns(owner)
		if err != nil {
			return err
		}
		if !containsID(owned, overridden) {
			violations = append(violations, Violation{R5OverrideMustBeInherited,
				"overridden attribute is not inherited from a supertype"})
		}
	} else {
		inherited, err := v.graph.Owns(owner)
		if err != nil {
			return err
		}
		if containsID(inherited, attrType.id) {
			keyed, err := v.graph.OwnsKeys(owner)
			if err != nil {
				return err
			}
			if containsID(keyed, attrType.id) != key {
				violations = append(violations, Violation{R7OwnsAnnotationConflict,
					fmt.Sprintf("%s already inherits OWNS of %q with a different key annotation; override it instead of redeclaring it directly",
						mustLabel(owner), mustLabel(attrType))})
			}
		}
	}
	return asValidationError(violations)
}

// ValidateSetPlays checks a prospective SetPlays(playerType, role,
// overridden) call.
func (v *Validator) ValidateSetPlays(playerType, role *Vertex, overridden VertexID) error {
	var violations []Violation
	if role.encoding != RoleType {
		violations = append(violations, Violation{REncodingMatch, "PLAYS must target a role type"})
	}
	if overridden != 0 {
		played, err := v.graph.Plays(playerType)
		if err != nil {
			return err
		}
		if !containsID(played, overridden) {
			violations = append(violations, Violation{R5OverrideMustBeInherited,
				"overridden role is not inherited from a supertype"})
		}
	}
	return asValidationError(violations)
}

// ValidateCommit runs the local commit check (spec phase 1 of Commit):
// every relation-type vertex buffered in this transaction must, if
// concrete, declare or inherit at least one non-root role (R8), and
// none of the roles it directly declares may itself be abstract (R9).
// Unlike the other Validate* methods this does not check a single
// prospective mutation; it checks the transaction's buffered state as
// a whole, which is why it runs from Commit rather than at a mutation
// call site.
func (v *Validator) ValidateCommit() error {
	var violations []Violation
	for _, vx := range v.graph.vertices {
		if vx.deleted || vx.encoding != RelationType || vx.IsRoot() {
			continue
		}
		if !(vx.isNew || vx.modified) {
			continue
		}
		abstract, err := vx.Abstract()
		if err != nil {
			return err
		}
		if abstract {
			continue
		}

		roles, err := v.graph.RelatedRoleTypes(vx)
		if err != nil {
			return err
		}
		nonRoot := 0
		for _, id := range roles {
			if id != RootRoleID {
				nonRoot++
			}
		}
		if nonRoot == 0 {
			violations = append(violations, Violation{R8ConcreteRelationRequiresRole,
				fmt.Sprintf("concrete relation type %q declares or inherits no non-root role", mustLabel(vx))})
		}

		it := vx.Out().To(codec.Relates)
		for it.Next() {
			role, err := v.graph.Vertex(it.Peer())
			if err != nil {
				return err
			}
			roleAbstract, err := role.Abstract()
			if err != nil {
				return err
			}
			if roleAbstract {
				violations = append(violations, Violation{R9ConcreteRelationAbstractRole,
					fmt.Sprintf("concrete relation type %q declares abstract role %q", mustLabel(vx), mustLabel(role))})
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
	}
	return asValidationError(violations)
}

func mustLabel(v *Vertex) string {
	label, err := v.Label()
	if err != nil {
		return fmt.Sprintf("#%d", v.id)
	}
	return label
}
