package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/mintgate/internal/api/model"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

const recordColumns = `
	record_id, job_id, payment_reference, name, payment_tier, state, message,
	slot_index, payer_address, mint_tx_id, mint_address, asset_link, certificate_link,
	submitted_at, finished_at, created_at, updated_at`

// Storage reads the mint journal
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// RecordFilter selects journal rows. PageSize+1 rows are fetched so callers can detect a next page.
type RecordFilter struct {
	State        string
	PayerAddress string
	PageSize     int
	Cursor       *RecordCursor
}

// RecordCursor is the keyset position after the last row of a page
type RecordCursor struct {
	CreatedAt time.Time
	RecordID  string
}

// GetRecord returns the journal row of a payment reference
func (s *Storage) GetRecord(ctx context.Context, paymentReference string) (*model.MintRecord, error) {
	var rec model.MintRecord
	query := `SELECT ` + recordColumns + ` FROM mint_records WHERE payment_reference = $1`

	err := s.db.GetContext(ctx, &rec, query, paymentReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mint record: %w", err)
	}

	return &rec, nil
}

// ListRecords lists journal rows newest first
func (s *Storage) ListRecords(ctx context.Context, filter RecordFilter) ([]model.MintRecord, error) {
	query, args := buildListQuery(filter)

	var records []model.MintRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list mint records: %w", err)
	}

	return records, nil
}

func buildListQuery(filter RecordFilter) (string, []interface{}) {
	query := `SELECT ` + recordColumns + ` FROM mint_records WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, filter.State)
		argIdx++
	}

	if filter.PayerAddress != "" {
		query += fmt.Sprintf(" AND payer_address = $%d", argIdx)
		args = append(args, filter.PayerAddress)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, record_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.RecordID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, record_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}
