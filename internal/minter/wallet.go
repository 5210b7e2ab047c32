package minter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blocto/solana-go-sdk/types"
)

// ErrInvalidWallet is returned for keypairs that are not a 64 byte JSON array
var ErrInvalidWallet = errors.New("invalid wallet keypair")

// LoadWallet restores the signing account from a solana-keygen JSON byte array
func LoadWallet(keypairJSON string) (types.Account, error) {
	s := strings.TrimSpace(keypairJSON)
	if s == "" {
		return types.Account{}, fmt.Errorf("%w: empty", ErrInvalidWallet)
	}

	var ints []int
	if err := json.Unmarshal([]byte(s), &ints); err != nil {
		return types.Account{}, fmt.Errorf("%w: not a json int array: %v", ErrInvalidWallet, err)
	}
	if len(ints) != 64 {
		return types.Account{}, fmt.Errorf("%w: want 64 bytes, got %d", ErrInvalidWallet, len(ints))
	}

	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return types.Account{}, fmt.Errorf("%w: byte out of range at %d: %d", ErrInvalidWallet, i, v)
		}
		b[i] = byte(v)
	}

	acc, err := types.AccountFromBytes(b)
	if err != nil {
		return types.Account{}, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	return acc, nil
}
