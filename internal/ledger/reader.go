package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/rpc"

	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

// PaymentStorageSeed is the PDA seed of the payment program configuration account
const PaymentStorageSeed = "payment-storage"

var (
	// ErrTransactionNotFound is returned when the RPC node does not know the signature
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAccountNotFound is returned when an account holds no data
	ErrAccountNotFound = errors.New("account not found")
)

// readCommitment is the commitment every read is made at. Processed data can
// still be rolled back.
const readCommitment = rpc.CommitmentConfirmed

// rpcClient is the subset of the blocto RPC client the reader uses
type rpcClient interface {
	GetTransactionWithConfig(ctx context.Context, txhash string, cfg client.GetTransactionConfig) (*client.Transaction, error)
	GetAccountInfoWithConfig(ctx context.Context, base58Addr string, cfg client.GetAccountInfoConfig) (client.AccountInfo, error)
}

// Config holds reader configuration
type Config struct {
	Logger           *slog.Logger
	RPC              rpcClient
	PaymentProgramID string
}

// Reader is a read-only adapter over the chain
type Reader struct {
	logger           *slog.Logger
	rpc              rpcClient
	paymentProgramID string
}

// NewReader creates a new Reader
func NewReader(cfg *Config) *Reader {
	return &Reader{
		logger:           cfg.Logger,
		rpc:              cfg.RPC,
		paymentProgramID: cfg.PaymentProgramID,
	}
}

// NewRPCClient creates the blocto client the reader talks to
func NewRPCClient(endpoint string) *client.Client {
	return client.NewClient(endpoint)
}

// FetchTransaction fetches a confirmed transaction by signature.
// Versioned transactions are accepted.
func (r *Reader) FetchTransaction(ctx context.Context, signature string) (*Transaction, error) {
	tx, err := r.rpc.GetTransactionWithConfig(ctx, signature, client.GetTransactionConfig{
		Commitment: readCommitment,
	})
	if err != nil {
		return nil, domain.NewUpstreamError("fetch transaction", err)
	}
	if tx == nil || tx.Meta == nil {
		return nil, ErrTransactionNotFound
	}

	r.logger.Debug("Transaction fetched",
		slog.String("signature", signature),
		slog.Uint64("slot", tx.Slot),
		slog.Int("log_lines", len(tx.Meta.LogMessages)),
	)

	return convertTransaction(signature, tx), nil
}

// FetchAccountBytes fetches the raw data of an account at confirmed commitment
func (r *Reader) FetchAccountBytes(ctx context.Context, address string) ([]byte, error) {
	info, err := r.rpc.GetAccountInfoWithConfig(ctx, address, client.GetAccountInfoConfig{
		Commitment: readCommitment,
	})
	if err != nil {
		return nil, domain.NewUpstreamError("fetch account", err)
	}
	if len(info.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}

	return info.Data, nil
}

// FetchPaymentConfig reads and decodes the payment program storage account
func (r *Reader) FetchPaymentConfig(ctx context.Context) (PaymentConfig, error) {
	address, err := PaymentStorageAddress(r.paymentProgramID)
	if err != nil {
		return PaymentConfig{}, err
	}

	data, err := r.FetchAccountBytes(ctx, address)
	if err != nil {
		return PaymentConfig{}, err
	}

	cfg, err := DecodePaymentStorage(data)
	if err != nil {
		return PaymentConfig{}, fmt.Errorf("decode payment storage %s: %w", address, err)
	}

	return cfg, nil
}

// PaymentStorageAddress derives the payment storage PDA of a program
func PaymentStorageAddress(programID string) (string, error) {
	pda, _, err := common.FindProgramAddress(
		[][]byte{[]byte(PaymentStorageSeed)},
		common.PublicKeyFromString(programID),
	)
	if err != nil {
		return "", fmt.Errorf("derive payment storage address: %w", err)
	}

	return pda.ToBase58(), nil
}

func convertTransaction(signature string, tx *client.Transaction) *Transaction {
	// static keys first, then lookup table keys: writable before readonly
	loaded := tx.Meta.LoadedAddresses
	keys := make([]string, 0, len(tx.Transaction.Message.Accounts)+len(loaded.Writable)+len(loaded.Readonly))
	for _, k := range tx.Transaction.Message.Accounts {
		keys = append(keys, k.ToBase58())
	}
	keys = append(keys, loaded.Writable...)
	keys = append(keys, loaded.Readonly...)

	out := &Transaction{
		Signature:      signature,
		ExecutionError: tx.Meta.Err,
		AccountKeys:    keys,
		LogMessages:    tx.Meta.LogMessages,
		PreBalances:    tx.Meta.PreBalances,
		PostBalances:   tx.Meta.PostBalances,
	}

	for _, b := range tx.Meta.PreTokenBalances {
		out.PreTokenBalances = append(out.PreTokenBalances, TokenBalance{
			AccountIndex: int(b.AccountIndex),
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UITokenAmount.Amount,
		})
	}
	for _, b := range tx.Meta.PostTokenBalances {
		out.PostTokenBalances = append(out.PostTokenBalances, TokenBalance{
			AccountIndex: int(b.AccountIndex),
			Mint:         b.Mint,
			Owner:        b.Owner,
			Amount:       b.UITokenAmount.Amount,
		})
	}

	return out
}
