package business

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/XSAM/otelsql"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"github.com/samber/oops"

	// Register pgx driver
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/openkcm/addon-auth/internal/config"
	migrations "github.com/openkcm/addon-auth/sql"
)

const (
	migrateSourceEmbedded = "embedded"
	migrateSourceFile     = "file://"
)

// MigrateMain applies the pending database migrations.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	const driver = "pgx"
	dbSystemName := semconv.DBSystemNamePostgreSQL

	fsys, err := migrationsFS(cfg.Migrate.Source)
	if err != nil {
		return err
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	db, err := otelsql.Open(driver, connStr, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return oops.In("main").Wrapf(err, "opening DB connection")
	}
	defer db.Close()

	reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(dbSystemName))
	if err != nil {
		return fmt.Errorf("registering db stats metrics: %w", err)
	}

	defer func() {
		if err := reg.Unregister(); err != nil {
			slogctx.Error(ctx, "failed to unregister db stats metrics", "error", err)
		}
	}()

	provider, err := goose.NewProvider(database.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		slogctx.Info(ctx, "Migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	slogctx.Info(ctx, "Database is up to date", "applied", len(results))

	return nil
}

// migrationsFS picks the migration files. The embedded set is used unless a
// file:// directory is configured.
func migrationsFS(source string) (fs.FS, error) {
	switch {
	case source == "" || source == migrateSourceEmbedded:
		return migrations.FS, nil
	case strings.HasPrefix(source, migrateSourceFile):
		return os.DirFS(strings.TrimPrefix(source, migrateSourceFile)), nil
	default:
		return nil, fmt.Errorf("unsupported migration source %q", source)
	}
}
