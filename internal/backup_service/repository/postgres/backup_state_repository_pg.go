package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tenacious-erp/integration_services/internal/backup_service/domain"
)

// DBTX is the subset of pgxpool.Pool used by the repository; pgxmock
// satisfies it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgBackupStateRepository struct {
	db DBTX
}

// NewPgBackupStateRepository creates a Postgres-backed backup state store.
// State is a single row keyed by a fixed id.
func NewPgBackupStateRepository(db DBTX) domain.StateRepository {
	return &pgBackupStateRepository{db: db}
}

func (r *pgBackupStateRepository) GetLastBackupOn(ctx context.Context) (*time.Time, error) {
	query := `SELECT last_backup_on FROM backup_state WHERE id = 1`

	var last *time.Time
	err := r.db.QueryRow(ctx, query).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup state: %w", err)
	}
	return last, nil
}

func (r *pgBackupStateRepository) SetLastBackupOn(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO backup_state (id, last_backup_on) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_backup_on = EXCLUDED.last_backup_on`

	_, err := r.db.Exec(ctx, query, t)
	if err != nil {
		return fmt.Errorf("failed to persist backup state: %w", err)
	}
	return nil
}
