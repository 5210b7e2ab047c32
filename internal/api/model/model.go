package model

import "time"

// MintRecord is a row of the mint journal as served by the API
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
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}
