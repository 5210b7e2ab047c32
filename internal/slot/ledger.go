package slot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

// AccountFetcher fetches raw account data
type AccountFetcher interface {
	FetchAccountBytes(ctx context.Context, address string) ([]byte, error)
}

// Ledger answers whether a slot of the collection has been consumed
type Ledger struct {
	logger        *slog.Logger
	accounts      AccountFetcher
	configAddress string
}

// NewLedger creates a slot ledger over the collection config account
func NewLedger(logger *slog.Logger, accounts AccountFetcher, configAddress string) *Ledger {
	return &Ledger{
		logger:        logger,
		accounts:      accounts,
		configAddress: configAddress,
	}
}

// Line reads the current on-chain line of a slot
func (l *Ledger) Line(ctx context.Context, slot uint32) (Line, error) {
	data, err := l.accounts.FetchAccountBytes(ctx, l.configAddress)
	if err != nil {
		return Line{}, err
	}
	return DecodeLine(data, slot)
}

// EnsureUnused fails with domain.ErrSlotAlreadyUsed if the slot has been minted
func (l *Ledger) EnsureUnused(ctx context.Context, slot uint32) error {
	line, err := l.Line(ctx, slot)
	if err != nil {
		return err
	}

	if line.Used() {
		l.logger.Warn("Slot already used",
			slog.Uint64("slot", uint64(slot)),
			slog.String("uri", line.URI),
		)
		return fmt.Errorf("%w: slot %d has already been spent", domain.ErrSlotAlreadyUsed, slot)
	}

	return nil
}

// AuditReport summarizes the usage of every slot
type AuditReport struct {
	Total     int
	Minted    int
	Available int
	Used      []Line
}

// Audit walks every line of the collection
func (l *Ledger) Audit(ctx context.Context) (*AuditReport, error) {
	data, err := l.accounts.FetchAccountBytes(ctx, l.configAddress)
	if err != nil {
		return nil, err
	}

	count, err := LineCount(data)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Total: int(count)}
	for slot := uint32(1); slot <= count; slot++ {
		line, err := DecodeLine(data, slot)
		if err != nil {
			return nil, err
		}
		if line.Used() {
			report.Minted++
			report.Used = append(report.Used, line)
		} else {
			report.Available++
		}
	}

	return report, nil
}
