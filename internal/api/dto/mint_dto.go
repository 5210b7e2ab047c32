package dto

import "github.com/cuongbtq/mintgate/internal/mint/domain"

// SubmitMintRequest is the multipart form of POST /api/v1/mints; files are read separately
type SubmitMintRequest struct {
	Name             string `form:"name" binding:"required"`
	PaymentReference string `form:"payment_reference" binding:"required"`
	PaymentTier      string `form:"payment_tier"`
}

type SubmitMintResponse struct {
	JobID            string           `json:"job_id"`
	PaymentReference string           `json:"payment_reference"`
	Status           domain.JobStatus `json:"status"`
}

type ListMintsRequest struct {
	State        string `form:"state"`
	PayerAddress string `form:"payer_address"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

type ListMintsResponse struct {
	Mints      []MintDTO `json:"mints"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

type MintDTO struct {
	JobID            string `json:"job_id"`
	PaymentReference string `json:"payment_reference"`
	Name             string `json:"name"`
	PaymentTier      string `json:"payment_tier"`
	State            string `json:"state"`
	Message          string `json:"message"`
	SlotIndex        int64  `json:"slot_index,omitempty"`
	PayerAddress     string `json:"payer_address,omitempty"`
	MintTxID         string `json:"mint_tx_id,omitempty"`
	MintAddress      string `json:"mint_address,omitempty"`
	AssetLink        string `json:"asset_link,omitempty"`
	CertificateLink  string `json:"certificate_link,omitempty"`
	SubmittedAt      string `json:"submitted_at"`
	FinishedAt       string `json:"finished_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
