package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/metrics"
	"github.com/cuongbtq/mintgate/internal/minter"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
	"github.com/cuongbtq/mintgate/internal/worker/storage"
)

// Defaults applied when the config leaves a limit unset
const (
	DefaultQueueCapacity = 100
	DefaultJobTimeout    = 5 * time.Minute
	DefaultMaxNameLength = 24
	DefaultMaxFileSize   = 1024 * 1024
)

// ErrWorkerStopped is returned by Submit once Stop has been called
var ErrWorkerStopped = errors.New("mint worker stopped")

type chainReader interface {
	FetchTransaction(ctx context.Context, signature string) (*ledger.Transaction, error)
	FetchPaymentConfig(ctx context.Context) (ledger.PaymentConfig, error)
}

type paymentVerifier interface {
	Verify(tx *ledger.Transaction, cfg ledger.PaymentConfig, tier domain.PaymentTier) (domain.DecodedPayment, error)
}

type slotChecker interface {
	EnsureUnused(ctx context.Context, slot uint32) error
}

type assetMinter interface {
	UploadAndMint(ctx context.Context, req minter.Request) (*minter.Result, error)
}

type statusStore interface {
	Put(key string, status domain.JobStatus)
	Get(key string) (domain.JobStatus, error)
}

type journal interface {
	RecordOutcome(ctx context.Context, rec *storage.MintRecord) error
}

type eventPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Config holds worker configuration. Journal, Events and Metrics are optional.
type Config struct {
	Logger        *slog.Logger
	Chain         chainReader
	Verifier      paymentVerifier
	Slots         slotChecker
	Minter        assetMinter
	Statuses      statusStore
	Journal       journal
	Events        eventPublisher
	Metrics       *metrics.MintMetrics
	Collection    minter.Collection
	QueueCapacity int
	JobTimeout    time.Duration
	MaxNameLength int
	MaxFileSize   int64
}

// Worker runs mint jobs one at a time in submission order
type Worker struct {
	logger        *slog.Logger
	chain         chainReader
	verifier      paymentVerifier
	slots         slotChecker
	minter        assetMinter
	statuses      statusStore
	journal       journal
	events        eventPublisher
	metrics       *metrics.MintMetrics
	collection    minter.Collection
	jobTimeout    time.Duration
	maxNameLength int
	maxFileSize   int64

	jobsChan chan *domain.MintJob
	mu       sync.Mutex
	inflight map[string]struct{}
	started  bool
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	maxNameLength := cfg.MaxNameLength
	if maxNameLength <= 0 {
		maxNameLength = DefaultMaxNameLength
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	return &Worker{
		logger:        cfg.Logger,
		chain:         cfg.Chain,
		verifier:      cfg.Verifier,
		slots:         cfg.Slots,
		minter:        cfg.Minter,
		statuses:      cfg.Statuses,
		journal:       cfg.Journal,
		events:        cfg.Events,
		metrics:       cfg.Metrics,
		collection:    cfg.Collection,
		jobTimeout:    jobTimeout,
		maxNameLength: maxNameLength,
		maxFileSize:   maxFileSize,
		jobsChan:      make(chan *domain.MintJob, capacity),
		inflight:      make(map[string]struct{}),
		stopChan:      make(chan struct{}),
	}
}

// Start launches the processing loop. It returns immediately.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	w.logger.Info("Starting mint worker",
		slog.Int("queue_capacity", cap(w.jobsChan)),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	w.wg.Add(1)
	go w.processLoop(ctx)
}

// Stop waits for the job in flight, then fails every job still waiting
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.stopChan)
	w.mu.Unlock()

	w.logger.Info("Stopping mint worker...")
	w.wg.Wait()

	abandoned := w.abandonQueued()
	w.logger.Info("Mint worker stopped",
		slog.Int("abandoned_jobs", abandoned),
	)
}

// Submit validates a job and appends it to the queue. The returned status is
// already readable from the status store when Submit returns.
func (w *Worker) Submit(job *domain.MintJob) (domain.JobStatus, error) {
	if err := w.validate(job); err != nil {
		w.metrics.RecordSubmission(metrics.OutcomeInvalid)
		return domain.JobStatus{}, err
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return domain.JobStatus{}, ErrWorkerStopped
	}

	if err := w.checkDuplicate(job.PaymentReference); err != nil {
		w.metrics.RecordSubmission(metrics.OutcomeDuplicate)
		return domain.JobStatus{}, err
	}

	if len(w.jobsChan) >= cap(w.jobsChan) {
		w.metrics.RecordSubmission(metrics.OutcomeQueueFull)
		w.logger.Warn("Mint queue is full",
			slog.String("payment_reference", job.PaymentReference),
			slog.Int("queue_capacity", cap(w.jobsChan)),
		)
		return domain.JobStatus{}, domain.ErrQueueFull
	}

	status := domain.JobStatus{
		State:     domain.JobStateQueued,
		Message:   fmt.Sprintf("place in line: %d", len(w.jobsChan)),
		UpdatedAt: time.Now().UTC(),
	}

	// status first, so a poller never misses the queued state
	w.statuses.Put(job.PaymentReference, status)
	w.inflight[job.PaymentReference] = struct{}{}
	w.jobsChan <- job

	w.metrics.RecordSubmission(metrics.OutcomeAccepted)
	w.metrics.SetQueueDepth(len(w.jobsChan))

	w.logger.Info("Mint job queued",
		slog.String("job_id", job.JobID),
		slog.String("payment_reference", job.PaymentReference),
		slog.String("payment_tier", string(job.PaymentTier)),
		slog.Int("queue_depth", len(w.jobsChan)),
	)

	return status, nil
}

// QueueDepth returns the number of jobs waiting to start
func (w *Worker) QueueDepth() int {
	return len(w.jobsChan)
}

// checkDuplicate must be called with mu held
func (w *Worker) checkDuplicate(reference string) error {
	if _, ok := w.inflight[reference]; ok {
		return domain.ErrDuplicateSubmission
	}

	existing, err := w.statuses.Get(reference)
	if err != nil {
		return nil
	}
	if existing.State != domain.JobStateError {
		return domain.ErrDuplicateSubmission
	}

	return nil
}

func (w *Worker) validate(job *domain.MintJob) error {
	if job == nil {
		return domain.NewValidationError("job", "job is required")
	}

	sig, err := base58.Decode(job.PaymentReference)
	if err != nil || len(sig) != 64 {
		return domain.NewValidationError("payment_reference", "payment reference must be a base58 transaction signature")
	}

	n := utf8.RuneCountInString(job.Name)
	if n == 0 {
		return domain.NewValidationError("name", "name is required")
	}
	if n > w.maxNameLength {
		return domain.NewValidationError("name", fmt.Sprintf("Name can be at most %d chars long", w.maxNameLength))
	}

	tier, err := domain.ParsePaymentTier(string(job.PaymentTier))
	if err != nil {
		return err
	}
	job.PaymentTier = tier

	if len(job.PrimaryImage) == 0 {
		return domain.NewValidationError("image", "image is required")
	}
	if int64(len(job.PrimaryImage)) > w.maxFileSize {
		return domain.NewValidationError("image", fmt.Sprintf("Max allowed file size is %dkB", w.maxFileSize/1024))
	}
	if int64(len(job.CertificateImage)) > w.maxFileSize {
		return domain.NewValidationError("certificate", fmt.Sprintf("Max allowed file size is %dkB", w.maxFileSize/1024))
	}

	return nil
}

// abandonQueued marks jobs that never started as failed. Called after the loop exits.
func (w *Worker) abandonQueued() int {
	n := 0
	for {
		select {
		case job := <-w.jobsChan:
			status := domain.JobStatus{
				State:     domain.JobStateError,
				Message:   "service stopped before the job started; resubmit",
				UpdatedAt: time.Now().UTC(),
			}
			w.release(job.PaymentReference)
			w.statuses.Put(job.PaymentReference, status)
			w.metrics.RecordFinished(string(domain.JobStateError), 0)
			n++
		default:
			w.metrics.SetQueueDepth(0)
			return n
		}
	}
}

func (w *Worker) release(reference string) {
	w.mu.Lock()
	delete(w.inflight, reference)
	w.mu.Unlock()
}
