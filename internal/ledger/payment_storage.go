package ledger

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
)

// anchorDiscriminatorSize is the account type prefix Anchor writes before the record
const anchorDiscriminatorSize = 8

// paymentStorageSize is the borsh encoded size of paymentStorageLayout
const paymentStorageSize = 32 + 32 + 8 + 8

// ErrMalformedAccount is returned when account bytes do not match the expected layout
var ErrMalformedAccount = errors.New("malformed account data")

type paymentStorageLayout struct {
	Beneficiary    [32]byte
	BeneficiaryDay [32]byte
	PriceLamports  uint64
	PriceDay       uint64
}

// DecodePaymentStorage decodes the payment program storage record
func DecodePaymentStorage(data []byte) (PaymentConfig, error) {
	if len(data) < anchorDiscriminatorSize+paymentStorageSize {
		return PaymentConfig{}, fmt.Errorf("%w: payment storage is %d bytes, want at least %d",
			ErrMalformedAccount, len(data), anchorDiscriminatorSize+paymentStorageSize)
	}

	var layout paymentStorageLayout
	body := data[anchorDiscriminatorSize : anchorDiscriminatorSize+paymentStorageSize]
	if err := borsh.Deserialize(&layout, body); err != nil {
		return PaymentConfig{}, fmt.Errorf("%w: %v", ErrMalformedAccount, err)
	}

	if layout.PriceLamports == 0 && layout.PriceDay == 0 {
		return PaymentConfig{}, fmt.Errorf("%w: no price configured", ErrMalformedAccount)
	}

	return PaymentConfig{
		Beneficiary:    base58.Encode(layout.Beneficiary[:]),
		PriceLamports:  layout.PriceLamports,
		BeneficiaryDay: base58.Encode(layout.BeneficiaryDay[:]),
		PriceDay:       layout.PriceDay,
	}, nil
}

// EncodePaymentStorage is the inverse of DecodePaymentStorage, used by tooling and tests
func EncodePaymentStorage(discriminator [8]byte, cfg PaymentConfig) ([]byte, error) {
	var layout paymentStorageLayout

	beneficiary, err := decodeAddress(cfg.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("beneficiary: %w", err)
	}
	beneficiaryDay, err := decodeAddress(cfg.BeneficiaryDay)
	if err != nil {
		return nil, fmt.Errorf("beneficiary day: %w", err)
	}

	layout.Beneficiary = beneficiary
	layout.BeneficiaryDay = beneficiaryDay
	layout.PriceLamports = cfg.PriceLamports
	layout.PriceDay = cfg.PriceDay

	body, err := borsh.Serialize(layout)
	if err != nil {
		return nil, fmt.Errorf("serialize payment storage: %w", err)
	}

	return append(discriminator[:], body...), nil
}

func decodeAddress(address string) ([32]byte, error) {
	var out [32]byte

	raw, err := base58.Decode(address)
	if err != nil {
		return out, fmt.Errorf("invalid base58 address %q: %w", address, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid address %q: %d bytes", address, len(raw))
	}

	copy(out[:], raw)
	return out, nil
}
