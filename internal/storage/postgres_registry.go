package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pearmediallc/creative-library-analytics/internal/models"
	"github.com/pearmediallc/creative-library-analytics/internal/owners"
)

// PostgresRegistrySource loads the owner registry from the main
// application's user directory. Only editors and admins appear in ad
// labels, so only those roles are loaded.
type PostgresRegistrySource struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRegistrySource creates a registry source backed by the
// application database.
func NewPostgresRegistrySource(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRegistrySource {
	return &PostgresRegistrySource{pool: pool, logger: logger}
}

// LoadRegistry queries the current editor directory and builds a
// registry snapshot.
func (s *PostgresRegistrySource) LoadRegistry(ctx context.Context) (*owners.Registry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name
		FROM users
		WHERE role IN ('editor', 'admin')
		  AND deleted_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load owner registry: %w", err)
	}
	defer rows.Close()

	var list []models.Owner
	for rows.Next() {
		var o models.Owner
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("scan owner row: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner rows: %w", err)
	}

	s.logger.Debug("owner registry loaded", zap.Int("owners", len(list)))
	return owners.NewRegistry(list), nil
}
