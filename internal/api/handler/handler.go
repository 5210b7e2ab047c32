package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/mintgate/internal/api/model"
	"github.com/cuongbtq/mintgate/internal/api/storage"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

// MintSubmitter accepts jobs for the mint queue
type MintSubmitter interface {
	Submit(job *domain.MintJob) (domain.JobStatus, error)
}

// StatusReader reads job statuses
type StatusReader interface {
	Get(key string) (domain.JobStatus, error)
}

// RecordReader reads the mint journal
type RecordReader interface {
	GetRecord(ctx context.Context, paymentReference string) (*model.MintRecord, error)
	ListRecords(ctx context.Context, filter storage.RecordFilter) ([]model.MintRecord, error)
}

// Dependencies holds all dependencies needed by handlers.
// Journal and Certificates are nil when disabled.
type Dependencies struct {
	Logger         *slog.Logger
	Worker         MintSubmitter
	Statuses       StatusReader
	Journal        RecordReader
	MaxUploadBytes int64
	Certificates   *CertificateConfig
}

// MintHandler handles mint-related HTTP requests
type MintHandler struct {
	logger         *slog.Logger
	worker         MintSubmitter
	statuses       StatusReader
	journal        RecordReader
	maxUploadBytes int64
}

// NewMintHandler creates a new MintHandler instance
func NewMintHandler(deps *Dependencies) *MintHandler {
	return &MintHandler{
		logger:         deps.Logger,
		worker:         deps.Worker,
		statuses:       deps.Statuses,
		journal:        deps.Journal,
		maxUploadBytes: deps.MaxUploadBytes,
	}
}
