package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/caja-pos/internal/domain/fiscal"
)

const (
	listActiveSequencesSQL = `SELECT id, document_type, prefix, last_number, range_from, range_to, alert_threshold, active
		FROM fiscal_sequences WHERE active ORDER BY document_type, range_from`

	checkSequenceAvailabilitySQL = `SELECT id, document_type, prefix, last_number, range_from, range_to, alert_threshold, active
		FROM check_sequence_availability($1)`
)

var _ fiscal.Repository = (*FiscalRepository)(nil)

// FiscalRepository implements fiscal.Repository backed by PostgreSQL.
type FiscalRepository struct {
	pool *pgxpool.Pool
}

// NewFiscalRepository returns a FiscalRepository that uses the given pool.
func NewFiscalRepository(pool *pgxpool.Pool) *FiscalRepository {
	return &FiscalRepository{pool: pool}
}

// ListActive returns every active numbering range.
func (r *FiscalRepository) ListActive(ctx context.Context) ([]fiscal.Sequence, error) {
	rows, err := r.pool.Query(ctx, listActiveSequencesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing fiscal sequences: %w", err)
	}
	return pgx.CollectRows(rows, scanSequence)
}

// GetByType returns the active range of t with the most numbers left.
func (r *FiscalRepository) GetByType(ctx context.Context, t fiscal.DocumentType) (*fiscal.Sequence, error) {
	rows, err := r.pool.Query(ctx, checkSequenceAvailabilitySQL, string(t))
	if err != nil {
		return nil, remote("check_sequence_availability", err)
	}
	seq, err := pgx.CollectExactlyOneRow(rows, scanSequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fiscal.ErrSequenceNotFound
		}
		return nil, remote("check_sequence_availability", err)
	}
	return &seq, nil
}

func scanSequence(row pgx.CollectableRow) (fiscal.Sequence, error) {
	var (
		s       fiscal.Sequence
		docType string
	)
	err := row.Scan(&s.ID, &docType, &s.Prefix, &s.LastNumber, &s.RangeFrom, &s.RangeTo, &s.AlertThreshold, &s.Active)
	s.DocumentType = fiscal.DocumentType(docType)
	return s, err
}
