// Package main provides the schemagraph CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/latticedb/schemagraph/pkg/bootstrap"
	"github.com/latticedb/schemagraph/pkg/config"
	"github.com/latticedb/schemagraph/pkg/kv"
	"github.com/latticedb/schemagraph/pkg/kv/badgerstore"
	"github.com/latticedb/schemagraph/pkg/kv/memstore"
	"github.com/latticedb/schemagraph/pkg/schema"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schemagraph",
		Short: "schemagraph - a typed schema graph core",
		Long: `schemagraph is a transactional type system core written in Go,
modeled on TypeDB's schema graph: entities, relations, attributes, and
roles related by SUB, OWNS, OWNS_KEY, and PLAYS edges, with structural
validation enforced before every mutation commits.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("schemagraph v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new schema graph store",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "", "Data directory (overrides SCHEMAGRAPH_DATA_DIR)")
	initCmd.Flags().String("bootstrap-file", "", "YAML schema document to apply on creation")
	rootCmd.AddCommand(initCmd)

	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "List type vertices in the schema graph",
		RunE:  runTypes,
	}
	typesCmd.Flags().String("data-dir", "", "Data directory (overrides SCHEMAGRAPH_DATA_DIR)")
	typesCmd.Flags().String("encoding", "", "Restrict listing to one encoding (entity, relation, attribute, role)")
	rootCmd.AddCommand(typesCmd)

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Open the schema graph and confirm it loads cleanly",
		RunE:  runValidate,
	}
	validateCmd.Flags().String("data-dir", "", "Data directory (overrides SCHEMAGRAPH_DATA_DIR)")
	rootCmd.AddCommand(validateCmd)

	bootstrapCmd := &cobra.Command{
		Use:   "bootstrap [file]",
		Short: "Apply a declarative YAML schema document",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBootstrap,
	}
	bootstrapCmd.Flags().String("data-dir", "", "Data directory (overrides SCHEMAGRAPH_DATA_DIR)")
	rootCmd.AddCommand(bootstrapCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds a *config.Config from the environment, applying
// any --data-dir flag override, and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Store.DataDir = dataDir
		cfg.Store.InMemory = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the kv.Store named by cfg.Store: BadgerDB-backed
// when a data directory is in play, memstore when running in-memory.
func openStore(cfg *config.Config) (kv.Store, error) {
	if cfg.Store.InMemory {
		return memstore.New(), nil
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return badgerstore.Open(badgerstore.Options{
		DataDir:    cfg.Store.DataDir,
		InMemory:   false,
		SyncWrites: cfg.Store.SyncWrites,
	})
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if bootstrapFile, _ := cmd.Flags().GetString("bootstrap-file"); bootstrapFile != "" {
		cfg.Bootstrap.SchemaFile = bootstrapFile
	}

	fmt.Printf("Initializing schema graph in %s\n", describeStore(cfg))

	backing, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer backing.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.CommitTimeout)
	defer cancel()

	store, err := schema.Open(ctx, backing)
	if err != nil {
		return fmt.Errorf("opening schema graph: %w", err)
	}
	defer store.Close()

	fmt.Println("Root types created: entity, relation, attribute, role, thing")

	doc, err := bootstrap.LoadFileOrEnv(cfg.Bootstrap.SchemaFile)
	if err != nil {
		if cfg.Bootstrap.FailOnError {
			return fmt.Errorf("loading bootstrap file: %w", err)
		}
		fmt.Printf("warning: loading bootstrap file: %v\n", err)
		return nil
	}
	if doc == nil {
		return nil
	}

	if err := applyBootstrap(ctx, store, doc); err != nil {
		if cfg.Bootstrap.FailOnError {
			return err
		}
		fmt.Printf("warning: applying bootstrap file: %v\n", err)
		return nil
	}
	fmt.Println("Bootstrap schema applied")
	return nil
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cfg.Bootstrap.SchemaFile
	if len(args) == 1 {
		path = args[0]
	}
	doc, err := bootstrap.LoadFile(path)
	if err != nil {
		return err
	}

	backing, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer backing.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.CommitTimeout)
	defer cancel()

	store, err := schema.Open(ctx, backing)
	if err != nil {
		return fmt.Errorf("opening schema graph: %w", err)
	}
	defer store.Close()

	if err := applyBootstrap(ctx, store, doc); err != nil {
		return err
	}
	fmt.Printf("Bootstrap schema applied from %s\n", path)
	return nil
}

func applyBootstrap(ctx context.Context, store *schema.Store, doc *bootstrap.Document) error {
	g, err := store.Begin(true)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	v := schema.NewValidator(g, nil)
	if err := bootstrap.Apply(ctx, g, v, doc); err != nil {
		g.Rollback()
		return fmt.Errorf("applying bootstrap document: %w", err)
	}
	if err := g.Commit(ctx); err != nil {
		return fmt.Errorf("committing bootstrap document: %w", err)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	backing, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer backing.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.CommitTimeout)
	defer cancel()

	store, err := schema.Open(ctx, backing)
	if err != nil {
		return fmt.Errorf("opening schema graph: %w", err)
	}
	defer store.Close()

	g, err := store.Begin(false)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer g.Rollback()

	counts := map[schema.Encoding]int{}
	for _, enc := range []schema.Encoding{schema.EntityType, schema.RelationType, schema.AttributeType, schema.RoleType} {
		it := g.Types(enc)
		for it.Next() {
			counts[enc]++
		}
		if err := it.Err(); err != nil {
			it.Close()
			return fmt.Errorf("scanning %s types: %w", encodingName(enc), err)
		}
		it.Close()
	}

	fmt.Println("Schema graph loaded cleanly.")
	fmt.Printf("  entities:   %d\n", counts[schema.EntityType])
	fmt.Printf("  relations:  %d\n", counts[schema.RelationType])
	fmt.Printf("  attributes: %d\n", counts[schema.AttributeType])
	fmt.Printf("  roles:      %d\n", counts[schema.RoleType])
	return nil
}

func runTypes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	encodingFlag, _ := cmd.Flags().GetString("encoding")

	encodings := []schema.Encoding{schema.EntityType, schema.RelationType, schema.AttributeType, schema.RoleType}
	if encodingFlag != "" {
		enc, err := parseEncoding(encodingFlag)
		if err != nil {
			return err
		}
		encodings = []schema.Encoding{enc}
	}

	backing, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer backing.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.CommitTimeout)
	defer cancel()

	store, err := schema.Open(ctx, backing)
	if err != nil {
		return fmt.Errorf("opening schema graph: %w", err)
	}
	defer store.Close()

	g, err := store.Begin(false)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer g.Rollback()

	for _, enc := range encodings {
		fmt.Printf("%s:\n", encodingName(enc))
		if err := printTypes(g, enc); err != nil {
			return err
		}
	}
	return nil
}

func printTypes(g *schema.Graph, enc schema.Encoding) error {
	it := g.Types(enc)
	defer it.Close()

	printed := 0
	for it.Next() {
		v := it.Vertex()
		label, err := v.Label()
		if err != nil {
			return fmt.Errorf("reading label: %w", err)
		}
		scope, err := v.Scope()
		if err != nil {
			return fmt.Errorf("reading scope: %w", err)
		}
		abstract, err := v.Abstract()
		if err != nil {
			return fmt.Errorf("reading abstract flag: %w", err)
		}

		name := label
		if scope != "" {
			name = scope + ":" + label
		}
		marker := ""
		if abstract {
			marker = " (abstract)"
		}
		if v.IsRoot() {
			marker += " (root)"
		}
		fmt.Printf("  %d  %s%s\n", v.ID(), name, marker)
		printed++
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("scanning types: %w", err)
	}
	if printed == 0 {
		fmt.Println("  (none)")
	}
	return nil
}

func describeStore(cfg *config.Config) string {
	if cfg.Store.InMemory {
		return "memory"
	}
	return cfg.Store.DataDir
}

func encodingName(enc schema.Encoding) string {
	switch enc {
	case schema.EntityType:
		return "entity"
	case schema.RelationType:
		return "relation"
	case schema.AttributeType:
		return "attribute"
	case schema.RoleType:
		return "role"
	case schema.ThingRoot:
		return "thing"
	default:
		return "unknown"
	}
}

func parseEncoding(name string) (schema.Encoding, error) {
	switch strings.ToLower(name) {
	case "entity":
		return schema.EntityType, nil
	case "relation":
		return schema.RelationType, nil
	case "attribute":
		return schema.AttributeType, nil
	case "role":
		return schema.RoleType, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q, want entity, relation, attribute, or role", name)
	}
}
