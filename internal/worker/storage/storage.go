package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// MintRecord is the journal row of a finished mint job
type MintRecord struct {
	RecordID         string    `db:"record_id"`
	JobID            string    `db:"job_id"`
	PaymentReference string    `db:"payment_reference"`
	Name             string    `db:"name"`
	PaymentTier      string    `db:"payment_tier"`
	State            string    `db:"state"`
	Message          string    `db:"message"`
	SlotIndex        int64     `db:"slot_index"`
	PayerAddress     string    `db:"payer_address"`
	MintTxID         string    `db:"mint_tx_id"`
	MintAddress      string    `db:"mint_address"`
	AssetLink        string    `db:"asset_link"`
	CertificateLink  string    `db:"certificate_link"`
	SubmittedAt      time.Time `db:"submitted_at"`
	FinishedAt       time.Time `db:"finished_at"`
}

// Storage writes mint outcomes to the journal
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// recordOutcomeQuery upserts by payment reference. A minted row is final.
const recordOutcomeQuery = `
	INSERT INTO mint_records (
		record_id, job_id, payment_reference, name, payment_tier, state, message,
		slot_index, payer_address, mint_tx_id, mint_address, asset_link, certificate_link,
		submitted_at, finished_at, created_at, updated_at
	) VALUES (
		:record_id, :job_id, :payment_reference, :name, :payment_tier, :state, :message,
		:slot_index, :payer_address, :mint_tx_id, :mint_address, :asset_link, :certificate_link,
		:submitted_at, :finished_at, NOW(), NOW()
	)
	ON CONFLICT (payment_reference) DO UPDATE SET
		job_id = EXCLUDED.job_id,
		name = EXCLUDED.name,
		payment_tier = EXCLUDED.payment_tier,
		state = EXCLUDED.state,
		message = EXCLUDED.message,
		slot_index = EXCLUDED.slot_index,
		payer_address = EXCLUDED.payer_address,
		mint_tx_id = EXCLUDED.mint_tx_id,
		mint_address = EXCLUDED.mint_address,
		asset_link = EXCLUDED.asset_link,
		certificate_link = EXCLUDED.certificate_link,
		submitted_at = EXCLUDED.submitted_at,
		finished_at = EXCLUDED.finished_at,
		updated_at = NOW()
	WHERE mint_records.state <> 'minted'
`

// RecordOutcome upserts the outcome of a job keyed by payment reference.
// A resubmitted reference overwrites its earlier failed attempt.
func (s *Storage) RecordOutcome(ctx context.Context, rec *MintRecord) error {
	result, err := s.db.NamedExecContext(ctx, recordOutcomeQuery, rec)
	if err != nil {
		return fmt.Errorf("failed to record mint outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Mint outcome not recorded - reference already minted",
			slog.String("payment_reference", rec.PaymentReference),
			slog.String("job_id", rec.JobID),
		)
		return nil
	}

	s.logger.Info("Mint outcome recorded",
		slog.String("job_id", rec.JobID),
		slog.String("payment_reference", rec.PaymentReference),
		slog.String("state", rec.State),
	)

	return nil
}
