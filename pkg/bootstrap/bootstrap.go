// Package bootstrap applies a declarative YAML schema document to a
// schema graph on startup, the same role apoc.LoadConfig/
// LoadFromEnvOrFile play for the teacher codebase's plugin
// configuration: a small struct with yaml tags, unmarshaled with
// gopkg.in/yaml.v3, with environment variables able to name the file
// to load.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/latticedb/schemagraph/pkg/schema"
)

// Document is the top-level shape of a bootstrap schema file.
type Document struct {
	Attributes []AttributeDecl `yaml:"attributes"`
	Entities   []TypeDecl      `yaml:"entities"`
	Relations  []RelationDecl  `yaml:"relations"`
}

// AttributeDecl declares one attribute type.
type AttributeDecl struct {
	Label     string `yaml:"label"`
	ValueType string `yaml:"value_type"`
	Supertype string `yaml:"supertype"`
	Abstract  bool   `yaml:"abstract"`
}

// TypeDecl declares one entity type and what it owns and plays.
type TypeDecl struct {
	Label     string   `yaml:"label"`
	Supertype string   `yaml:"supertype"`
	Abstract  bool     `yaml:"abstract"`
	Owns      []string `yaml:"owns"`
	OwnsKey   []string `yaml:"owns_key"`
	Plays     []string `yaml:"plays"` // "relation-label:role-label"
}

// RelationDecl declares one relation type, the roles it relates, and
// what it owns.
type RelationDecl struct {
	Label     string   `yaml:"label"`
	Supertype string   `yaml:"supertype"`
	Abstract  bool     `yaml:"abstract"`
	Relates   []string `yaml:"relates"` // "role" or "role@overridden-role"
	Owns      []string `yaml:"owns"`
	OwnsKey   []string `yaml:"owns_key"`
	Plays     []string `yaml:"plays"`
}

// LoadFile reads and parses a bootstrap schema document from disk.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: reading %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bootstrap: parsing %s: %w", path, err)
	}
	return &doc, nil
}

// LoadFileOrEnv loads path if non-empty, otherwise falls back to the
// SCHEMAGRAPH_BOOTSTRAP_FILE environment variable. Returns a nil
// Document and nil error when neither names a file, so callers can
// treat bootstrap as optional without special-casing the empty path.
func LoadFileOrEnv(path string) (*Document, error) {
	if path == "" {
		path = os.Getenv("SCHEMAGRAPH_BOOTSTRAP_FILE")
	}
	if path == "" {
		return nil, nil
	}
	return LoadFile(path)
}

// Apply creates every type the document declares and wires their
// OWNS, OWNS_KEY, PLAYS, and RELATES edges, inside a single
// transaction. Two-phase: every type vertex is created first, so
// later declarations may reference types declared earlier in the
// same document regardless of order; edges are wired in a second
// pass once every label resolves.
func Apply(ctx context.Context, g *schema.Graph, v *schema.Validator, doc *Document) error {
	if doc == nil {
		return nil
	}

	for _, a := range doc.Attributes {
		if err := v.ValidateCreateType(schema.AttributeType, a.Label, ""); err != nil {
			return err
		}
		attr, err := g.CreateType(schema.AttributeType, a.Label, "")
		if err != nil {
			return err
		}
		if a.ValueType != "" {
			if err := attr.SetValueType(schema.ValueType(a.ValueType)); err != nil {
				return err
			}
		}
		if a.Abstract {
			if err := v.ValidateSetAbstract(attr, true); err != nil {
				return err
			}
			if err := attr.SetAbstract(true); err != nil {
				return err
			}
		}
	}

	for _, e := range doc.Entities {
		if err := v.ValidateCreateType(schema.EntityType, e.Label, ""); err != nil {
			return err
		}
		if _, err := g.CreateType(schema.EntityType, e.Label, ""); err != nil {
			return err
		}
	}

	for _, r := range doc.Relations {
		if err := v.ValidateCreateType(schema.RelationType, r.Label, ""); err != nil {
			return err
		}
		if _, err := g.CreateType(schema.RelationType, r.Label, ""); err != nil {
			return err
		}
	}

	if err := applySupertypes(g, v, doc); err != nil {
		return err
	}
	if err := applyRelates(g, v, doc); err != nil {
		return err
	}
	if err := applyOwnsAndPlays(g, v, doc); err != nil {
		return err
	}
	return nil
}

func applySupertypes(g *schema.Graph, v *schema.Validator, doc *Document) error {
	apply := func(encoding schema.Encoding, label, supertypeLabel string) error {
		if supertypeLabel == "" {
			return nil
		}
		vertex, err := g.GetType(encoding, label, "")
		if err != nil {
			return err
		}
		super, err := g.GetType(encoding, supertypeLabel, "")
		if err != nil {
			return fmt.Errorf("bootstrap: %s: unknown supertype %q", label, supertypeLabel)
		}
		if err := v.ValidateSetSupertype(vertex, super); err != nil {
			return err
		}
		return g.SetSupertype(vertex, super)
	}

	for _, a := range doc.Attributes {
		if err := apply(schema.AttributeType, a.Label, a.Supertype); err != nil {
			return err
		}
	}
	for _, e := range doc.Entities {
		if err := apply(schema.EntityType, e.Label, e.Supertype); err != nil {
			return err
		}
	}
	for _, r := range doc.Relations {
		if err := apply(schema.RelationType, r.Label, r.Supertype); err != nil {
			return err
		}
	}
	return nil
}

func applyRelates(g *schema.Graph, v *schema.Validator, doc *Document) error {
	for _, r := range doc.Relations {
		relation, err := g.GetType(schema.RelationType, r.Label, "")
		if err != nil {
			return err
		}
		for _, roleSpec := range r.Relates {
			roleLabel, overriddenLabel := splitRelatesSpec(roleSpec)
			role, err := g.GetType(schema.RoleType, roleLabel, r.Label)
			if err == schema.ErrNotFound {
				role, err = g.CreateType(schema.RoleType, roleLabel, r.Label)
			}
			if err != nil {
				return err
			}
			if err := v.ValidateSetRelates(relation, role, overriddenLabel); err != nil {
				return err
			}
			if _, err := g.SetRelates(relation, roleLabel, overriddenLabel); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyOwnsAndPlays(g *schema.Graph, v *schema.Validator, doc *Document) error {
	applyOwns := func(owner *schema.Vertex, labels []string, key bool) error {
		for _, label := range labels {
			attr, err := g.GetType(schema.AttributeType, label, "")
			if err != nil {
				return fmt.Errorf("bootstrap: unknown attribute %q", label)
			}
			if err := v.ValidateSetOwns(owner, attr, key, 0); err != nil {
				return err
			}
			if err := g.SetOwns(owner, attr, key, 0); err != nil {
				return err
			}
		}
		return nil
	}

	applyPlays := func(player *schema.Vertex, refs []string) error {
		for _, ref := range refs {
			relationLabel, roleLabel, ok := splitPlaysRef(ref)
			if !ok {
				return fmt.Errorf("bootstrap: malformed plays reference %q, want relation:role", ref)
			}
			role, err := g.GetType(schema.RoleType, roleLabel, relationLabel)
			if err != nil {
				return fmt.Errorf("bootstrap: unknown role %q", ref)
			}
			if err := v.ValidateSetPlays(player, role, 0); err != nil {
				return err
			}
			if err := g.SetPlays(player, role, 0); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range doc.Entities {
		vertex, err := g.GetType(schema.EntityType, e.Label, "")
		if err != nil {
			return err
		}
		if err := applyOwns(vertex, e.Owns, false); err != nil {
			return err
		}
		if err := applyOwns(vertex, e.OwnsKey, true); err != nil {
			return err
		}
		if err := applyPlays(vertex, e.Plays); err != nil {
			return err
		}
		if e.Abstract {
			if err := v.ValidateSetAbstract(vertex, true); err != nil {
				return err
			}
			if err := vertex.SetAbstract(true); err != nil {
				return err
			}
		}
	}

	for _, r := range doc.Relations {
		vertex, err := g.GetType(schema.RelationType, r.Label, "")
		if err != nil {
			return err
		}
		if err := applyOwns(vertex, r.Owns, false); err != nil {
			return err
		}
		if err := applyOwns(vertex, r.OwnsKey, true); err != nil {
			return err
		}
		if err := applyPlays(vertex, r.Plays); err != nil {
			return err
		}
		if r.Abstract {
			if err := v.ValidateSetAbstract(vertex, true); err != nil {
				return err
			}
			if err := vertex.SetAbstract(true); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitPlaysRef(ref string) (relation, role string, ok bool) {
	for i := 0; i < len(ref); i++ {
		if ref[i] == ':' {
			return ref[:i], ref[i+1:], true
		}
	}
	return "", "", false
}

// splitRelatesSpec splits a "role" or "role@overridden-role" relates
// entry into its role label and the (possibly empty) role it
// overrides.
func splitRelatesSpec(spec string) (roleLabel, overriddenLabel string) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '@' {
			return spec[:i], spec[i+1:]
		}
	}
	return spec, ""
}
