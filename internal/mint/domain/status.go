package domain

import "time"

// JobState is the externally observable stage of a mint job
type JobState string

// Job state constants
const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateMinted     JobState = "minted"
	JobStateError      JobState = "error"
)

// IsTerminal reports whether no further transition can follow
func (s JobState) IsTerminal() bool {
	return s == JobStateMinted || s == JobStateError
}

// JobStatus is what a poller sees for a payment reference
type JobStatus struct {
	State           JobState  `json:"state"`
	Message         string    `json:"message"`
	SlotIndex       uint32    `json:"slot_index,omitempty"`
	PayerAddress    string    `json:"payer_address,omitempty"`
	MintTxID        string    `json:"mint_tx_id,omitempty"`
	MintAddress     string    `json:"mint_address,omitempty"`
	AssetLink       string    `json:"asset_link,omitempty"`
	CertificateLink string    `json:"certificate_link,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
