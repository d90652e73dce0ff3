// Command seed creates the database schema and, unless told otherwise,
// a demo project with a starter document for local development.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"vellum/internal/config"
	"vellum/internal/domain/services"
	"vellum/internal/repository/postgres"
	"vellum/internal/service"
)

const demoContent = `Project Narrative

Our organization requests funding to expand the community literacy
program into three additional neighborhoods. The program pairs trained
volunteers with adult learners for weekly one-on-one sessions.

Statement of Need

One in five adults in the service area reads below a sixth-grade level.
Existing programs have waiting lists of six months or longer.`

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed demo data")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: no destructive operations against prod tables
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: cannot run --drop-tables in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	log.Println("Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		return
	}

	// Demo data goes through the service layer so word counts and
	// validation match what the API produces.
	seedUserID := os.Getenv("SEED_USER_ID")
	if seedUserID == "" {
		seedUserID = "00000000-0000-0000-0000-000000000001"
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	projectRepo := postgres.NewProjectRepository(repoConfig)
	docRepo := postgres.NewDocumentRepository(repoConfig)

	projectService := service.NewProjectService(projectRepo, logger)
	docService := service.NewDocumentService(docRepo, projectRepo, logger)

	project, err := projectService.CreateProject(ctx, &services.CreateProjectRequest{
		UserID: seedUserID,
		Name:   "Demo Grant Proposal",
	})
	if err != nil {
		log.Fatalf("Failed to create demo project: %v", err)
	}
	log.Printf("Created project %s", project.ID)

	doc, err := docService.CreateDocument(ctx, &services.CreateDocumentRequest{
		ProjectID: project.ID,
		UserID:    seedUserID,
		Title:     "Narrative Draft",
		Content:   demoContent,
	})
	if err != nil {
		log.Fatalf("Failed to create demo document: %v", err)
	}
	log.Printf("Created document %s (version %d, %d words)", doc.ID, doc.Version, doc.WordCount)

	log.Println("Seeding complete")
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, tablePrefix string) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return err
	}

	createProjects := `
		CREATE TABLE IF NOT EXISTS ` + tables.Projects + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createProjects); err != nil {
		return err
	}

	createDocuments := `
		CREATE TABLE IF NOT EXISTS ` + tables.Documents + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			project_id UUID NOT NULL REFERENCES ` + tables.Projects + `(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1,
			word_count INTEGER DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			UNIQUE(project_id, title)
		)
	`
	if _, err := pool.Exec(ctx, createDocuments); err != nil {
		return err
	}

	createOperations := `
		CREATE TABLE IF NOT EXISTS ` + tables.Operations + ` (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			project_id UUID NOT NULL REFERENCES ` + tables.Projects + `(id) ON DELETE CASCADE,
			document_id UUID NOT NULL REFERENCES ` + tables.Documents + `(id) ON DELETE CASCADE,
			scope TEXT NOT NULL,
			action TEXT NOT NULL,
			status TEXT NOT NULL,
			output_content TEXT NOT NULL DEFAULT '',
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createOperations); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `documents_project_id ON ` + tables.Documents + `(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `operations_document ON ` + tables.Operations + `(document_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `operations_user ON ` + tables.Operations + `(user_id)`,
	}
	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}

// dropAllTables drops all tables in reverse order (to respect foreign keys)
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	for _, table := range []string{tables.Operations, tables.Documents, tables.Projects} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
		log.Printf("  dropped %s", table)
	}
	return nil
}
