package minter

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/rpc"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/near/borsh-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	blockhashErr error
	sendErr      error
	sent         []types.Transaction

	// statuses are returned in order, the last one repeats; none means confirmed
	statuses    []*rpc.SignatureStatus
	statusErr   error
	statusCalls int
}

func (f *fakeSender) GetLatestBlockhash(_ context.Context) (rpc.GetLatestBlockhashValue, error) {
	return rpc.GetLatestBlockhashValue{Blockhash: "So11111111111111111111111111111111111111112"}, f.blockhashErr
}

func (f *fakeSender) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	return 1461600, nil
}

func (f *fakeSender) SendTransaction(_ context.Context, tx types.Transaction) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, tx)
	return "tx-signature", nil
}

func (f *fakeSender) GetSignatureStatus(_ context.Context, _ string) (*rpc.SignatureStatus, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return signatureStatus(rpc.CommitmentConfirmed, nil), nil
	}
	i := min(f.statusCalls, len(f.statuses)) - 1
	return f.statuses[i], nil
}

func signatureStatus(commitment rpc.Commitment, txErr any) *rpc.SignatureStatus {
	confirmations := uint64(1)
	return &rpc.SignatureStatus{
		Slot:               100,
		Confirmations:      &confirmations,
		ConfirmationStatus: &commitment,
		Err:                txErr,
	}
}

func newTestChainMinter(sender *fakeSender) *ChainMinter {
	wallet := types.NewAccount()
	return &ChainMinter{
		rpc:     sender,
		wallet:  wallet,
		candy:   common.PublicKeyFromString("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ"),
		config:  common.PublicKeyFromString("Vote111111111111111111111111111111111111111"),
		creator: wallet.PublicKey,

		confirmInterval: time.Millisecond,
		confirmTimeout:  time.Second,
		logger:          discardLogger(),
	}
}

func TestAnchorDiscriminator(t *testing.T) {
	sum := sha256.Sum256([]byte("global:add_config_lines"))
	got := anchorDiscriminator("add_config_lines")
	assert.Equal(t, sum[:8], got[:])
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "short", input: "abc", max: 10, want: "abc"},
		{name: "exact", input: "abcd", max: 4, want: "abcd"},
		{name: "ascii cut", input: "abcdef", max: 4, want: "abcd"},
		{name: "multibyte not split", input: "aé", max: 2, want: "a"},
		{name: "emoji", input: "ab😀", max: 5, want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateUTF8(tt.input, tt.max))
		})
	}
}

func TestChainMinter_WriteConfigLine(t *testing.T) {
	sender := &fakeSender{}
	m := newTestChainMinter(sender)

	sig, err := m.WriteConfigLine(context.Background(), 7, "Sunrise (#7)", "https://arweave.net/m")
	require.NoError(t, err)
	assert.Equal(t, "tx-signature", sig)

	require.Len(t, sender.sent, 1)
	ixs := sender.sent[0].Message.Instructions
	require.Len(t, ixs, 1)

	disc := anchorDiscriminator("add_config_lines")
	data := ixs[0].Data
	require.Greater(t, len(data), 8)
	assert.Equal(t, disc[:], data[:8])

	var args configLineArgs
	require.NoError(t, borsh.Deserialize(&args, data[8:]))
	assert.Equal(t, uint32(6), args.Index)
	require.Len(t, args.Lines, 1)
	assert.Equal(t, "Sunrise (#7)", args.Lines[0].Name)
	assert.Equal(t, "https://arweave.net/m", args.Lines[0].URI)
}

func TestChainMinter_WriteConfigLine_Errors(t *testing.T) {
	long := make([]byte, maxOnChainURI+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name   string
		slot   uint32
		uri    string
		sender *fakeSender
	}{
		{name: "slot zero", slot: 0, uri: "https://x", sender: &fakeSender{}},
		{name: "uri too long", slot: 1, uri: string(long), sender: &fakeSender{}},
		{name: "blockhash failure", slot: 1, uri: "https://x", sender: &fakeSender{blockhashErr: errors.New("rpc down")}},
		{name: "send failure", slot: 1, uri: "https://x", sender: &fakeSender{sendErr: errors.New("rejected")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestChainMinter(tt.sender).WriteConfigLine(context.Background(), tt.slot, "n", tt.uri)
			assert.Error(t, err)
			assert.Empty(t, tt.sender.sent)
		})
	}
}

func TestChainMinter_MintTo(t *testing.T) {
	sender := &fakeSender{}
	m := newTestChainMinter(sender)
	owner := types.NewAccount().PublicKey.ToBase58()

	manifest := NewManifest(testCollection(), "A name that is much longer than thirty two bytes", 3, false)

	mintAddress, sig, err := m.MintTo(context.Background(), owner, manifest, "https://arweave.net/m")
	require.NoError(t, err)
	assert.Equal(t, "tx-signature", sig)
	assert.NotEmpty(t, mintAddress)
	assert.NotEqual(t, owner, mintAddress)

	require.Len(t, sender.sent, 1)
	assert.Len(t, sender.sent[0].Message.Instructions, 6)
	// fee payer and the fresh mint account both sign
	assert.Len(t, sender.sent[0].Signatures, 2)
}

func TestChainMinter_WaitsForConfirmation(t *testing.T) {
	instructionErr := map[string]any{"InstructionError": []any{0, "Custom"}}

	tests := []struct {
		name      string
		sender    *fakeSender
		timeout   time.Duration
		wantErr   error
		wantCalls int
	}{
		{
			name:      "confirmed at once",
			sender:    &fakeSender{statuses: []*rpc.SignatureStatus{signatureStatus(rpc.CommitmentConfirmed, nil)}},
			wantCalls: 1,
		},
		{
			name: "not seen then processed then finalized",
			sender: &fakeSender{statuses: []*rpc.SignatureStatus{
				nil,
				signatureStatus(rpc.CommitmentProcessed, nil),
				signatureStatus(rpc.CommitmentFinalized, nil),
			}},
			wantCalls: 3,
		},
		{
			name:      "landed with error",
			sender:    &fakeSender{statuses: []*rpc.SignatureStatus{signatureStatus(rpc.CommitmentConfirmed, instructionErr)}},
			wantErr:   ErrTransactionFailed,
			wantCalls: 1,
		},
		{
			name:    "never seen",
			sender:  &fakeSender{statuses: []*rpc.SignatureStatus{nil}},
			timeout: 20 * time.Millisecond,
			wantErr: ErrNotConfirmed,
		},
		{
			name:    "status lookups keep failing",
			sender:  &fakeSender{statusErr: errors.New("rpc down")},
			timeout: 20 * time.Millisecond,
			wantErr: ErrNotConfirmed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/config line", func(t *testing.T) {
			sender := *tt.sender
			m := newTestChainMinter(&sender)
			if tt.timeout > 0 {
				m.confirmTimeout = tt.timeout
			}

			_, err := m.WriteConfigLine(context.Background(), 1, "n", "https://x")
			assertConfirmation(t, err, tt.wantErr, sender.statusCalls, tt.wantCalls)
			assert.Len(t, sender.sent, 1)
		})

		t.Run(tt.name+"/mint", func(t *testing.T) {
			sender := *tt.sender
			m := newTestChainMinter(&sender)
			if tt.timeout > 0 {
				m.confirmTimeout = tt.timeout
			}

			owner := types.NewAccount().PublicKey.ToBase58()
			_, _, err := m.MintTo(context.Background(), owner, NewManifest(testCollection(), "n", 1, false), "https://x")
			assertConfirmation(t, err, tt.wantErr, sender.statusCalls, tt.wantCalls)
			assert.Len(t, sender.sent, 1)
		})
	}
}

func assertConfirmation(t *testing.T, err, wantErr error, calls, wantCalls int) {
	t.Helper()

	if wantErr != nil {
		assert.ErrorIs(t, err, wantErr)
	} else {
		assert.NoError(t, err)
	}
	if wantCalls > 0 {
		assert.Equal(t, wantCalls, calls)
	} else {
		assert.Positive(t, calls)
	}
}

func TestChainMinter_ConfirmationHonoursContext(t *testing.T) {
	sender := &fakeSender{statuses: []*rpc.SignatureStatus{nil}}
	m := newTestChainMinter(sender)
	m.confirmTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.WriteConfigLine(ctx, 1, "n", "https://x")
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestIsConfirmed(t *testing.T) {
	confirmations := uint64(3)

	tests := []struct {
		name   string
		status *rpc.SignatureStatus
		want   bool
	}{
		{name: "processed", status: signatureStatus(rpc.CommitmentProcessed, nil), want: false},
		{name: "confirmed", status: signatureStatus(rpc.CommitmentConfirmed, nil), want: true},
		{name: "finalized", status: signatureStatus(rpc.CommitmentFinalized, nil), want: true},
		{name: "rooted without status", status: &rpc.SignatureStatus{}, want: true},
		{name: "counting without status", status: &rpc.SignatureStatus{Confirmations: &confirmations}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConfirmed(tt.status))
		})
	}
}
