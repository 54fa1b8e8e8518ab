package accounts

import (
	"context"
	"database/sql"
	"io/fs"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Open builds a bun handle over the sqlite shim driver and registers
// the join models the relations need. Hosts with their own persistence
// layer can skip this and call RegisterModels on their handle instead.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	RegisterModels(db)

	return db, nil
}

// RegisterModels registers the m2m join models with the bun handle.
// Must run before any query that traverses the Groups relation.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*GroupMembership)(nil))
}

// Migrate applies the embedded migration files in lexical order.
// Statements are idempotent so re-running is safe.
func Migrate(ctx context.Context, db *bun.DB) error {
	root := "data/sql/migrations"

	entries, err := fs.ReadDir(migrationsFS, root)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrationsFS, root+"/"+name)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read migration "+name)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to apply migration "+name)
		}
	}

	return nil
}
