package domain

import (
	"fmt"
	"time"
)

// PaymentTier selects which beneficiary and price a payment is checked against
type PaymentTier string

const (
	// PaymentTierStandard is paid in native lamports
	PaymentTierStandard PaymentTier = "standard"
	// PaymentTierDay is paid with the DAY SPL token
	PaymentTierDay PaymentTier = "day"
)

// ParsePaymentTier converts the client supplied tier, empty meaning standard
func ParsePaymentTier(s string) (PaymentTier, error) {
	switch PaymentTier(s) {
	case "", PaymentTierStandard:
		return PaymentTierStandard, nil
	case PaymentTierDay:
		return PaymentTierDay, nil
	default:
		return "", NewValidationError("payment_tier", fmt.Sprintf("unknown payment tier %q", s))
	}
}

// MintJob is a submitted unit of work, owned by the worker until processed
type MintJob struct {
	JobID            string
	PaymentReference string
	Name             string
	PaymentTier      PaymentTier
	PrimaryImage     []byte
	CertificateImage []byte
	SubmittedAt      time.Time
}

// DecodedPayment holds the facts extracted from a verified payment transaction
type DecodedPayment struct {
	PayerAddress string
	SlotIndex    uint32
}
