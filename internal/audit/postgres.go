package audit

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	migrations "github.com/dropDatabas3/gatekeeper/migrations/postgres"

	"github.com/dropDatabas3/gatekeeper/internal/observability/logger"
)

// PostgresRecorder persiste eventos en auth_audit_log.
// Los inserts son best-effort con timeout corto: un Postgres lento no puede
// frenar el hot path de autenticación.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder conecta el pool y verifica la conexión.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: postgres ping: %w", err)
	}
	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresRecorder{pool: pool}, nil
}

// applyMigrations ejecuta las migraciones embebidas en orden de nombre.
// Son idempotentes (IF NOT EXISTS), así que correrlas en cada arranque
// es seguro.
func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("audit: migrations: %w", err)
	}
	sort.Strings(files)
	for _, name := range files {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("audit: leer %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("audit: aplicar %s: %w", name, err)
		}
	}
	return nil
}

const insertSQL = `
INSERT INTO auth_audit_log (event, outcome, user_id, client_ip, path, method, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (p *PostgresRecorder) Record(ctx context.Context, ev Event) {
	insCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	_, err := p.pool.Exec(insCtx, insertSQL,
		ev.Event, ev.Outcome, ev.UserID, ev.ClientIP, ev.Path, ev.Method, ev.Detail)
	if err != nil {
		logger.From(ctx).Warn("audit insert failed", logger.Err(err))
	}
}

// Close libera el pool.
func (p *PostgresRecorder) Close() {
	p.pool.Close()
}
