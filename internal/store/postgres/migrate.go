package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/uptrace/bun"
)

const migrationsTable = "schema_migrations"

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

type migration struct {
	version string
	upSQL   string
}

// Migrate applies every pending goose-style migration in fsys inside a single
// transaction and returns the versions it applied.
func Migrate(ctx context.Context, db *bun.DB, fsys fs.FS) ([]string, error) {
	var applied []string
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		applied, err = ApplyMigrations(ctx, tx, fsys)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func ApplyMigrations(ctx context.Context, exec rawExecutor, fsys fs.FS) ([]string, error) {
	migs, err := loadMigrations(fsys)
	if err != nil {
		return nil, err
	}

	if _, err := exec.NewRaw("CREATE TABLE IF NOT EXISTS " + migrationsTable + " (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())").Exec(ctx); err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	var done []string
	if err := exec.NewRaw("SELECT version FROM " + migrationsTable).Scan(ctx, &done); err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsTable, err)
	}
	seen := make(map[string]struct{}, len(done))
	for _, v := range done {
		seen[v] = struct{}{}
	}

	var applied []string
	for _, m := range migs {
		if _, ok := seen[m.version]; ok {
			continue
		}
		// The whole Up section goes out as one simple-protocol Exec, so
		// semicolons inside literals, function bodies and DO blocks are left
		// to Postgres. bun.Safe keeps bun from reading "?" as a placeholder.
		if _, err := exec.NewRaw("?", bun.Safe(m.upSQL)).Exec(ctx); err != nil {
			return nil, fmt.Errorf("migration %s: %w", m.version, err)
		}
		if _, err := exec.NewRaw("INSERT INTO "+migrationsTable+" (version) VALUES (?)", m.version).Exec(ctx); err != nil {
			return nil, fmt.Errorf("record migration %s: %w", m.version, err)
		}
		applied = append(applied, m.version)
	}
	return applied, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	migs := make([]migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		migs = append(migs, migration{
			version: strings.TrimSuffix(e.Name(), ".sql"),
			upSQL:   upSQL,
		})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })
	return migs, nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := strings.TrimLeft(sql[upIdx+len(upMarker):], "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}
