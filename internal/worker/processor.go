package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/minter"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
	"github.com/cuongbtq/mintgate/internal/worker/storage"
)

const (
	processingMessage = "Processing..."
	mintedMessage     = "Success!"

	outcomeTimeout   = 10 * time.Second
	outcomeEventType = "mint.outcome"
)

// outcomeEvent is published once per terminal job
type outcomeEvent struct {
	Type             string           `json:"type"`
	JobID            string           `json:"job_id"`
	PaymentReference string           `json:"payment_reference"`
	Status           domain.JobStatus `json:"status"`
}

// processJob runs one job to a terminal state. It never returns early on error.
func (w *Worker) processJob(ctx context.Context, job *domain.MintJob) {
	start := time.Now()
	logger := w.logger.With(
		slog.String("job_id", job.JobID),
		slog.String("payment_reference", job.PaymentReference),
	)

	w.statuses.Put(job.PaymentReference, domain.JobStatus{
		State:     domain.JobStateProcessing,
		Message:   processingMessage,
		UpdatedAt: time.Now().UTC(),
	})
	logger.Info("Processing mint job")

	// a dequeued job is never cancelled by shutdown, only by its own deadline
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	status := w.runJob(jobCtx, logger, job)
	status.UpdatedAt = time.Now().UTC()

	// release first: a poller that sees the terminal state may resubmit at once
	w.release(job.PaymentReference)
	w.statuses.Put(job.PaymentReference, status)
	w.metrics.RecordFinished(string(status.State), time.Since(start))

	if status.State == domain.JobStateMinted {
		logger.Info("Mint job completed successfully",
			slog.Uint64("slot", uint64(status.SlotIndex)),
			slog.String("mint_tx_id", status.MintTxID),
			slog.Duration("elapsed", time.Since(start)),
		)
	} else {
		logger.Error("Mint job failed",
			slog.String("error", status.Message),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	w.reportOutcome(context.WithoutCancel(ctx), logger, job, status)
}

// runJob turns every failure, panics included, into an error status
func (w *Worker) runJob(ctx context.Context, logger *slog.Logger, job *domain.MintJob) (status domain.JobStatus) {
	var payment domain.DecodedPayment

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Mint job panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			status = errorStatus(payment, fmt.Errorf("internal error: %v", r))
		}
	}()

	result, err := w.executeJob(ctx, logger, job, &payment)
	if err != nil {
		return errorStatus(payment, err)
	}

	return domain.JobStatus{
		State:           domain.JobStateMinted,
		Message:         mintedMessage,
		SlotIndex:       payment.SlotIndex,
		PayerAddress:    payment.PayerAddress,
		MintTxID:        result.MintTxID,
		MintAddress:     result.MintAddress,
		AssetLink:       result.AssetLink,
		CertificateLink: result.CertificateLink,
	}
}

// executeJob verifies the payment, re-checks the slot and mints.
// payment is filled in as soon as it is known.
func (w *Worker) executeJob(ctx context.Context, logger *slog.Logger, job *domain.MintJob, payment *domain.DecodedPayment) (*minter.Result, error) {
	logger.Debug("Validating payment transaction")
	tx, err := w.chain.FetchTransaction(ctx, job.PaymentReference)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return nil, domain.NewPaymentRejected(domain.RejectTxNotFound, "tx not found")
		}
		return nil, err
	}

	cfg, err := w.chain.FetchPaymentConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment config: %w", err)
	}

	decoded, err := w.verifier.Verify(tx, cfg, job.PaymentTier)
	if err != nil {
		return nil, err
	}
	*payment = decoded

	logger.Debug("Verifying slot is unused",
		slog.Uint64("slot", uint64(decoded.SlotIndex)),
	)
	if err := w.slots.EnsureUnused(ctx, decoded.SlotIndex); err != nil {
		return nil, err
	}

	logger.Info("Minting",
		slog.Uint64("slot", uint64(decoded.SlotIndex)),
		slog.String("payer_address", decoded.PayerAddress),
	)

	manifest := minter.NewManifest(w.collection, job.Name, decoded.SlotIndex, len(job.CertificateImage) > 0)
	result, err := w.minter.UploadAndMint(ctx, minter.Request{
		Asset:            job.PrimaryImage,
		Certificate:      job.CertificateImage,
		SlotIndex:        decoded.SlotIndex,
		Manifest:         manifest,
		RecipientAddress: decoded.PayerAddress,
	})
	if err != nil {
		return nil, domain.NewUpstreamError("upload and mint", err)
	}

	return result, nil
}

func errorStatus(payment domain.DecodedPayment, err error) domain.JobStatus {
	return domain.JobStatus{
		State:        domain.JobStateError,
		Message:      err.Error(),
		SlotIndex:    payment.SlotIndex,
		PayerAddress: payment.PayerAddress,
	}
}

// reportOutcome writes the journal and publishes the outcome event.
// Failures are logged only; the job status is already final.
func (w *Worker) reportOutcome(ctx context.Context, logger *slog.Logger, job *domain.MintJob, status domain.JobStatus) {
	ctx, cancel := context.WithTimeout(ctx, outcomeTimeout)
	defer cancel()

	if w.journal != nil {
		rec := &storage.MintRecord{
			RecordID:         uuid.New().String(),
			JobID:            job.JobID,
			PaymentReference: job.PaymentReference,
			Name:             job.Name,
			PaymentTier:      string(job.PaymentTier),
			State:            string(status.State),
			Message:          status.Message,
			SlotIndex:        int64(status.SlotIndex),
			PayerAddress:     status.PayerAddress,
			MintTxID:         status.MintTxID,
			MintAddress:      status.MintAddress,
			AssetLink:        status.AssetLink,
			CertificateLink:  status.CertificateLink,
			SubmittedAt:      job.SubmittedAt,
			FinishedAt:       status.UpdatedAt,
		}
		if err := w.journal.RecordOutcome(ctx, rec); err != nil {
			logger.Warn("Failed to record mint outcome",
				slog.String("error", err.Error()),
			)
		}
	}

	if w.events != nil {
		body, err := json.Marshal(outcomeEvent{
			Type:             outcomeEventType,
			JobID:            job.JobID,
			PaymentReference: job.PaymentReference,
			Status:           status,
		})
		if err != nil {
			logger.Warn("Failed to encode outcome event",
				slog.String("error", err.Error()),
			)
			return
		}
		if err := w.events.PublishWithRetry(ctx, body, "application/json"); err != nil {
			logger.Warn("Failed to publish outcome event",
				slog.String("error", err.Error()),
			)
		}
	}
}
