package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/caja-pos/internal/domain/auth"
)

const (
	getOperatorByHashSQL = `SELECT id, name, key_hash, roles
		FROM operators WHERE key_hash = $1 AND active = TRUE`

	upsertOperatorSQL = `INSERT INTO operators (name, key_hash, roles)
		VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, roles = EXCLUDED.roles, active = TRUE
		RETURNING id`
)

var _ auth.Repository = (*OperatorRepository)(nil)

// OperatorRepository provides operator lookups backed by PostgreSQL.
type OperatorRepository struct {
	pool *pgxpool.Pool
}

// NewOperatorRepository returns an OperatorRepository that uses the given pool.
func NewOperatorRepository(pool *pgxpool.Pool) *OperatorRepository {
	return &OperatorRepository{pool: pool}
}

// FindByHash looks up an active operator by the HMAC-SHA256 of their key.
func (r *OperatorRepository) FindByHash(ctx context.Context, hash string) (*auth.Operator, error) {
	var op auth.Operator
	err := r.pool.QueryRow(ctx, getOperatorByHashSQL, hash).Scan(
		&op.ID, &op.Name, &op.KeyHash, &op.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("operator not found: %w", err)
		}
		return nil, fmt.Errorf("finding operator by hash: %w", err)
	}
	return &op, nil
}

// Upsert stores an operator by key hash and returns its id.
func (r *OperatorRepository) Upsert(ctx context.Context, op auth.Operator) (string, error) {
	roles := op.Roles
	if roles == nil {
		roles = []string{"cashier"}
	}
	var id string
	if err := r.pool.QueryRow(ctx, upsertOperatorSQL, op.Name, op.KeyHash, roles).Scan(&id); err != nil {
		return "", fmt.Errorf("upserting operator %q: %w", op.Name, err)
	}
	return id, nil
}
