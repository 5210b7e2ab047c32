package slot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

type fakeAccounts struct {
	data []byte
	err  error
	seen []string
}

func (f *fakeAccounts) FetchAccountBytes(_ context.Context, address string) ([]byte, error) {
	f.seen = append(f.seen, address)
	return f.data, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collectionWithMinted(t *testing.T, count uint32, minted map[uint32]string) []byte {
	t.Helper()
	data := NewConfigData(count)
	for slot, uri := range minted {
		require.NoError(t, EncodeLine(data, slot, "Day", uri))
	}
	return data
}

func TestDecodeLine(t *testing.T) {
	data := collectionWithMinted(t, 10, map[uint32]string{7: "https://arweave.net/abc"})

	line, err := DecodeLine(data, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), line.Slot)
	assert.Equal(t, "Day", line.Name)
	assert.Equal(t, "https://arweave.net/abc", line.URI)
	assert.True(t, line.Used())

	// slot 7 lives at line index 6
	offset := ConfigArrayStart + 4 + 6*ConfigLineSize
	assert.Equal(t, "https://arweave.net/abc", string(data[offset+uriStart:offset+uriStart+len("https://arweave.net/abc")]))

	line, err = DecodeLine(data, 6)
	require.NoError(t, err)
	assert.False(t, line.Used())
}

func TestDecodeLine_FailsClosed(t *testing.T) {
	full := NewConfigData(3)

	tests := []struct {
		name    string
		data    []byte
		slot    uint32
		wantErr error
	}{
		{name: "slot zero", data: full, slot: 0, wantErr: ErrSlotOutOfRange},
		{name: "slot past line count", data: full, slot: 4, wantErr: ErrSlotOutOfRange},
		{name: "account shorter than header", data: full[:ConfigArrayStart], slot: 1, wantErr: ErrMalformedConfig},
		{name: "line count larger than account", data: full[:len(full)-1], slot: 3, wantErr: ErrMalformedConfig},
		{name: "empty account", data: nil, slot: 1, wantErr: ErrMalformedConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLine(tt.data, tt.slot)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLine_Used(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{uri: "", want: false},
		{uri: "placeholder", want: false},
		{uri: "https://arweave.net/x", want: true},
		{uri: "ipfs://bafy", want: true},
		{uri: "://missing-scheme", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, Line{URI: tt.uri}.Used())
		})
	}
}

func TestEncodeLine_Bounds(t *testing.T) {
	data := NewConfigData(1)

	assert.ErrorIs(t, EncodeLine(data, 2, "x", "y"), ErrSlotOutOfRange)
	assert.ErrorIs(t, EncodeLine(data, 0, "x", "y"), ErrSlotOutOfRange)
	assert.ErrorIs(t, EncodeLine(data, 1, string(make([]byte, MaxNameLength+1)), "y"), ErrMalformedConfig)
}

func TestLedger_EnsureUnused(t *testing.T) {
	accounts := &fakeAccounts{data: collectionWithMinted(t, 10, map[uint32]string{7: "https://arweave.net/abc"})}
	ledger := NewLedger(testLogger(), accounts, "config-address")
	ctx := context.Background()

	err := ledger.EnsureUnused(ctx, 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSlotAlreadyUsed)
	assert.Contains(t, err.Error(), "slot 7 has already been spent")

	require.NoError(t, ledger.EnsureUnused(ctx, 8))
	assert.Equal(t, []string{"config-address", "config-address"}, accounts.seen)

	assert.ErrorIs(t, ledger.EnsureUnused(ctx, 11), ErrSlotOutOfRange)
}

func TestLedger_EnsureUnused_FetchError(t *testing.T) {
	fetchErr := errors.New("rpc down")
	ledger := NewLedger(testLogger(), &fakeAccounts{err: fetchErr}, "config-address")

	assert.ErrorIs(t, ledger.EnsureUnused(context.Background(), 1), fetchErr)
}

func TestLedger_Audit(t *testing.T) {
	accounts := &fakeAccounts{data: collectionWithMinted(t, 5, map[uint32]string{
		1: "https://arweave.net/one",
		4: "https://arweave.net/four",
	})}

	report, err := NewLedger(testLogger(), accounts, "config-address").Audit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 2, report.Minted)
	assert.Equal(t, 3, report.Available)
	require.Len(t, report.Used, 2)
	assert.Equal(t, uint32(1), report.Used[0].Slot)
	assert.Equal(t, uint32(4), report.Used[1].Slot)
}

func TestLedger_Audit_Truncated(t *testing.T) {
	data := NewConfigData(5)
	accounts := &fakeAccounts{data: data[:len(data)-ConfigLineSize]}

	_, err := NewLedger(testLogger(), accounts, "config-address").Audit(context.Background())
	assert.ErrorIs(t, err, ErrMalformedConfig)
}
