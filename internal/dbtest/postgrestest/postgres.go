package postgrestest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"

	migrations "github.com/openkcm/addon-auth/sql"
)

const (
	DBHost     = "localhost"
	DBUser     = "postgres"
	DBPassword = "secret"
	DBName     = "addon_auth"
	DBSSLMode  = "disable"
)

// Seeded records, see prepareDB.
const (
	SubjectID        = "subject-one"
	SubjectEmail     = "one@example.com"
	AttachmentID     = "attachment-one"
	AttachmentFile   = "eiffel-tower.jpeg"
	SeedAccessToken  = "access-token-one"
	SeedRefreshToken = "refresh-token-one"
)

// ExpiryTime is the expiry of the seeded credential.
var ExpiryTime = time.Now().Add(30 * 24 * time.Hour).Truncate(time.Microsecond).UTC()

// Start initialises a database instance and returns a connection pool, database port, and termination function.
//
// The database is migrated and contains the records described by the exported constants.
func Start(ctx context.Context) (*pgxpool.Pool, nat.Port, func(ctx context.Context)) {
	pgContainer, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase(DBName),
		postgres.WithUsername(DBUser),
		postgres.WithPassword(DBPassword),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		slogctx.Error(ctx, "Failed to start PostgreSQL", slog.String("error", err.Error()))
		panic(err)
	}

	port, err := pgContainer.MappedPort(ctx, nat.Port("5432"))
	if err != nil {
		slogctx.Error(ctx, "Failed to get mapped port for the PostgreSQL container", slog.String("error", err.Error()))
		panic(err)
	}

	connStr := ConnStr(port)
	migrateDB(ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		panic(err)
	}

	prepareDB(ctx, pool)

	terminate := func(ctx context.Context) {
		pool.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate PostgreSQL container", slog.String("error", err.Error()))
			panic(err)
		}
	}

	return pool, port, terminate
}

func ConnStr(port nat.Port) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		DBHost, DBUser, DBPassword, DBName, port.Port(), DBSSLMode)
}

func migrateDB(ctx context.Context, connStr string) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		panic(err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		panic(err)
	}
}

func prepareDB(ctx context.Context, dbPool *pgxpool.Pool) {
	b := new(pgx.Batch)
	b.Queue(`INSERT INTO credentials (subject_id, access_token, refresh_token, token_type, expiry) VALUES ($1, $2, $3, 'Bearer', $4);`,
		SubjectID, SeedAccessToken, SeedRefreshToken, ExpiryTime)
	b.Queue(`INSERT INTO users (id, email) VALUES ($1, $2);`, SubjectID, SubjectEmail)
	b.Queue(`INSERT INTO attachments (id, image_filename) VALUES ($1, $2);`, AttachmentID, AttachmentFile)

	res := dbPool.SendBatch(ctx, b)
	if err := res.Close(); err != nil {
		panic(err)
	}
}
