package minter

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/metaplex/token_metadata"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/near/borsh-go"
)

// Metaplex limits on metadata fields, in bytes
const (
	maxOnChainName   = 32
	maxOnChainSymbol = 10
	maxOnChainURI    = 200
)

// Confirmation polling defaults. A blockhash expires after roughly 150 slots.
const (
	DefaultConfirmInterval = 500 * time.Millisecond
	DefaultConfirmTimeout  = 90 * time.Second
)

var (
	// ErrTransactionFailed is returned when a sent transaction landed with an error
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrNotConfirmed is returned when a sent transaction was not confirmed in time
	ErrNotConfirmed = errors.New("transaction not confirmed")
)

// rpcSender is the subset of the blocto client needed to send transactions
type rpcSender interface {
	GetLatestBlockhash(ctx context.Context) (rpc.GetLatestBlockhashValue, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)
	SendTransaction(ctx context.Context, tx types.Transaction) (string, error)
	GetSignatureStatus(ctx context.Context, signature string) (*rpc.SignatureStatus, error)
}

// ChainConfig holds on-chain minting configuration
type ChainConfig struct {
	CandyProgramID  string
	ConfigAddress   string
	CreatorAddress  string
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

// ChainMinter writes collection config lines and mints items with the collection wallet
type ChainMinter struct {
	rpc             rpcSender
	wallet          types.Account
	candy           common.PublicKey
	config          common.PublicKey
	creator         common.PublicKey
	confirmInterval time.Duration
	confirmTimeout  time.Duration
	logger          *slog.Logger
}

// NewChainMinter creates a new chain minter
func NewChainMinter(c *client.Client, wallet types.Account, cfg *ChainConfig, logger *slog.Logger) *ChainMinter {
	creator := wallet.PublicKey
	if cfg.CreatorAddress != "" {
		creator = common.PublicKeyFromString(cfg.CreatorAddress)
	}

	confirmInterval := cfg.ConfirmInterval
	if confirmInterval <= 0 {
		confirmInterval = DefaultConfirmInterval
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}

	return &ChainMinter{
		rpc:             c,
		wallet:          wallet,
		candy:           common.PublicKeyFromString(cfg.CandyProgramID),
		config:          common.PublicKeyFromString(cfg.ConfigAddress),
		creator:         creator,
		confirmInterval: confirmInterval,
		confirmTimeout:  confirmTimeout,
		logger:          logger,
	}
}

type configLineArgs struct {
	Index uint32
	Lines []configLine
}

type configLine struct {
	Name string
	URI  string
}

// WriteConfigLine records name and uri in the collection config at slot and
// waits for confirmation. Once confirmed the slot counts as spent.
func (m *ChainMinter) WriteConfigLine(ctx context.Context, slot uint32, name, uri string) (string, error) {
	if slot == 0 {
		return "", fmt.Errorf("write config line: slot must be positive")
	}
	if len(uri) > maxOnChainURI {
		return "", fmt.Errorf("write config line: uri longer than %d bytes", maxOnChainURI)
	}

	args, err := borsh.Serialize(configLineArgs{
		Index: slot - 1,
		Lines: []configLine{{Name: truncateUTF8(name, maxOnChainName), URI: uri}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode config line: %w", err)
	}

	disc := anchorDiscriminator("add_config_lines")
	ix := types.Instruction{
		ProgramID: m.candy,
		Accounts: []types.AccountMeta{
			{PubKey: m.config, IsSigner: false, IsWritable: true},
			{PubKey: m.wallet.PublicKey, IsSigner: true, IsWritable: false},
		},
		Data: append(disc[:], args...),
	}

	sig, err := m.send(ctx, []types.Account{m.wallet}, ix)
	if err != nil {
		return "", fmt.Errorf("write config line: %w", err)
	}

	m.logger.Info("Config line written",
		slog.Uint64("slot", uint64(slot)),
		slog.String("tx_id", sig),
	)

	return sig, nil
}

// MintTo mints a 1/1 item described by manifest to owner and waits for confirmation.
// Returns the mint address and the transaction signature.
func (m *ChainMinter) MintTo(ctx context.Context, owner string, manifest Manifest, uri string) (string, string, error) {
	ownerKey := common.PublicKeyFromString(owner)
	mint := types.NewAccount()
	feePayer := m.wallet

	ata, _, err := common.FindAssociatedTokenAddress(ownerKey, mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive token account: %w", err)
	}
	metadataPubkey, err := token_metadata.GetTokenMetaPubkey(mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive metadata account: %w", err)
	}
	masterEditionPubkey, err := token_metadata.GetMasterEdition(mint.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive master edition: %w", err)
	}

	mintRent, err := m.rpc.GetMinimumBalanceForRentExemption(ctx, token.MintAccountSize)
	if err != nil {
		return "", "", fmt.Errorf("failed to get mint rent: %w", err)
	}

	maxSupply := uint64(0)

	sig, err := m.send(ctx, []types.Account{mint, feePayer},
		system.CreateAccount(system.CreateAccountParam{
			From:     feePayer.PublicKey,
			New:      mint.PublicKey,
			Owner:    common.TokenProgramID,
			Lamports: mintRent,
			Space:    token.MintAccountSize,
		}),
		token.InitializeMint(token.InitializeMintParam{
			Decimals:   0,
			Mint:       mint.PublicKey,
			MintAuth:   feePayer.PublicKey,
			FreezeAuth: &feePayer.PublicKey,
		}),
		token_metadata.CreateMetadataAccountV3(token_metadata.CreateMetadataAccountV3Param{
			Metadata:                metadataPubkey,
			Mint:                    mint.PublicKey,
			MintAuthority:           feePayer.PublicKey,
			UpdateAuthority:         feePayer.PublicKey,
			Payer:                   feePayer.PublicKey,
			UpdateAuthorityIsSigner: true,
			IsMutable:               true,
			Data: token_metadata.DataV2{
				Name:                 truncateUTF8(manifest.Name, maxOnChainName),
				Symbol:               truncateUTF8(manifest.Symbol, maxOnChainSymbol),
				Uri:                  uri,
				SellerFeeBasisPoints: manifest.SellerFeeBasisPoints,
				Creators: &[]token_metadata.Creator{
					{
						Address:  m.creator,
						Verified: m.creator == feePayer.PublicKey,
						Share:    100,
					},
				},
			},
		}),
		associated_token_account.CreateAssociatedTokenAccount(associated_token_account.CreateAssociatedTokenAccountParam{
			Funder:                 feePayer.PublicKey,
			Owner:                  ownerKey,
			Mint:                   mint.PublicKey,
			AssociatedTokenAccount: ata,
		}),
		token.MintTo(token.MintToParam{
			Mint:   mint.PublicKey,
			To:     ata,
			Auth:   feePayer.PublicKey,
			Amount: 1,
		}),
		token_metadata.CreateMasterEditionV3(token_metadata.CreateMasterEditionParam{
			Edition:         masterEditionPubkey,
			Mint:            mint.PublicKey,
			UpdateAuthority: feePayer.PublicKey,
			MintAuthority:   feePayer.PublicKey,
			Metadata:        metadataPubkey,
			Payer:           feePayer.PublicKey,
			MaxSupply:       &maxSupply,
		}),
	)
	if err != nil {
		return "", "", fmt.Errorf("mint: %w", err)
	}

	m.logger.Info("Item minted",
		slog.String("mint_address", mint.PublicKey.ToBase58()),
		slog.String("owner", owner),
		slog.String("tx_id", sig),
	)

	return mint.PublicKey.ToBase58(), sig, nil
}

func (m *ChainMinter) send(ctx context.Context, signers []types.Account, ixs ...types.Instruction) (string, error) {
	recent, err := m.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := types.NewTransaction(types.NewTransactionParam{
		Signers: signers,
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        m.wallet.PublicKey,
			RecentBlockhash: recent.Blockhash,
			Instructions:    ixs,
		}),
	})
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}

	sig, err := m.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	if err := m.waitConfirmed(ctx, sig); err != nil {
		return sig, err
	}

	return sig, nil
}

// waitConfirmed polls the signature until it reaches confirmed commitment
func (m *ChainMinter) waitConfirmed(ctx context.Context, sig string) error {
	ctx, cancel := context.WithTimeout(ctx, m.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(m.confirmInterval)
	defer ticker.Stop()

	for {
		st, err := m.rpc.GetSignatureStatus(ctx, sig)
		if err != nil {
			m.logger.Warn("Failed to get signature status",
				slog.String("tx_id", sig),
				slog.String("error", err.Error()),
			)
		} else if st != nil {
			if st.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, st.Err)
			}
			if isConfirmed(st) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrNotConfirmed, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isConfirmed(st *rpc.SignatureStatus) bool {
	if st.ConfirmationStatus == nil {
		// nodes omit the status for rooted transactions
		return st.Confirmations == nil
	}
	switch *st.ConfirmationStatus {
	case rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
		return true
	default:
		return false
	}
}

// anchorDiscriminator is the 8 byte instruction selector Anchor programs dispatch on
func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
