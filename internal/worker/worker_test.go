package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/minter"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
	"github.com/cuongbtq/mintgate/internal/status"
	"github.com/cuongbtq/mintgate/internal/worker/storage"
)

const testPayer = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

func testReference(i int) string {
	sig := make([]byte, 64)
	for j := range sig {
		sig[j] = byte(7 * (j + 1))
	}
	sig[0] = byte(i + 1)
	return base58.Encode(sig)
}

type fakeChain struct {
	txErr error
}

func (f *fakeChain) FetchTransaction(_ context.Context, signature string) (*ledger.Transaction, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	return &ledger.Transaction{Signature: signature}, nil
}

func (f *fakeChain) FetchPaymentConfig(_ context.Context) (ledger.PaymentConfig, error) {
	return ledger.PaymentConfig{PriceLamports: 1}, nil
}

type fakeVerifier struct {
	slot uint32
	err  error
}

func (f *fakeVerifier) Verify(_ *ledger.Transaction, _ ledger.PaymentConfig, _ domain.PaymentTier) (domain.DecodedPayment, error) {
	if f.err != nil {
		return domain.DecodedPayment{}, f.err
	}
	return domain.DecodedPayment{PayerAddress: testPayer, SlotIndex: f.slot}, nil
}

type fakeSlots struct {
	mu   sync.Mutex
	used map[uint32]bool
}

func (f *fakeSlots) EnsureUnused(_ context.Context, slot uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used[slot] {
		return fmt.Errorf("%w: slot %d has already been spent", domain.ErrSlotAlreadyUsed, slot)
	}
	return nil
}

type fakeMinter struct {
	mu       sync.Mutex
	mint     func(req minter.Request) (*minter.Result, error)
	requests []minter.Request
	active   atomic.Int32
	peak     atomic.Int32
}

func (f *fakeMinter) UploadAndMint(_ context.Context, req minter.Request) (*minter.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.mint != nil {
		return f.mint(req)
	}
	return &minter.Result{MintTxID: "mint-tx", MintAddress: "mint-address", AssetLink: "https://arweave.net/m"}, nil
}

func (f *fakeMinter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeJournal struct {
	mu      sync.Mutex
	records []*storage.MintRecord
	err     error
}

func (f *fakeJournal) RecordOutcome(_ context.Context, rec *storage.MintRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeJournal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeEvents struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeEvents) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))
	return errors.New("broker unavailable")
}

type fixture struct {
	worker   *Worker
	statuses *status.Cache
	chain    *fakeChain
	verifier *fakeVerifier
	slots    *fakeSlots
	minter   *fakeMinter
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	statuses, err := status.NewCache(time.Minute)
	require.NoError(t, err)

	f := &fixture{
		statuses: statuses,
		chain:    &fakeChain{},
		verifier: &fakeVerifier{slot: 7},
		slots:    &fakeSlots{used: map[uint32]bool{}},
		minter:   &fakeMinter{},
	}
	f.worker = NewWorker(&Config{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Chain:         f.chain,
		Verifier:      f.verifier,
		Slots:         f.slots,
		Minter:        f.minter,
		Statuses:      statuses,
		Collection:    minter.Collection{Symbol: "DWF", Family: "Day"},
		QueueCapacity: capacity,
		JobTimeout:    time.Minute,
		MaxNameLength: 24,
		MaxFileSize:   16,
	})
	return f
}

func testJob(i int) *domain.MintJob {
	return &domain.MintJob{
		PaymentReference: testReference(i),
		Name:             fmt.Sprintf("Item %d", i),
		PrimaryImage:     []byte("png"),
	}
}

func (f *fixture) waitForState(t *testing.T, reference string, want domain.JobState) domain.JobStatus {
	t.Helper()
	var got domain.JobStatus
	require.Eventually(t, func() bool {
		s, err := f.statuses.Get(reference)
		if err != nil {
			return false
		}
		got = s
		return s.State == want
	}, 5*time.Second, 5*time.Millisecond, "reference never reached %s", want)
	return got
}

func TestWorker_Submit_QueuedImmediately(t *testing.T) {
	f := newFixture(t, 10)

	for i := 0; i < 3; i++ {
		job := testJob(i)
		st, err := f.worker.Submit(job)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStateQueued, st.State)
		assert.Equal(t, fmt.Sprintf("place in line: %d", i), st.Message)
		assert.NotEmpty(t, job.JobID)
		assert.Equal(t, domain.PaymentTierStandard, job.PaymentTier)

		cached, err := f.statuses.Get(job.PaymentReference)
		require.NoError(t, err)
		assert.Equal(t, st, cached)
	}

	assert.Equal(t, 3, f.worker.QueueDepth())
}

func TestWorker_Submit_Validation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(j *domain.MintJob)
		wantField string
		wantMsg   string
	}{
		{name: "empty reference", mutate: func(j *domain.MintJob) { j.PaymentReference = "" }, wantField: "payment_reference"},
		{name: "reference not base58", mutate: func(j *domain.MintJob) { j.PaymentReference = "0OIl" }, wantField: "payment_reference"},
		{name: "reference wrong length", mutate: func(j *domain.MintJob) { j.PaymentReference = base58.Encode([]byte("short")) }, wantField: "payment_reference"},
		{name: "empty name", mutate: func(j *domain.MintJob) { j.Name = "" }, wantField: "name"},
		{
			name:      "name too long",
			mutate:    func(j *domain.MintJob) { j.Name = strings.Repeat("a", 25) },
			wantField: "name",
			wantMsg:   "Name can be at most 24 chars long",
		},
		{name: "unknown tier", mutate: func(j *domain.MintJob) { j.PaymentTier = "gold" }, wantField: "payment_tier"},
		{name: "missing image", mutate: func(j *domain.MintJob) { j.PrimaryImage = nil }, wantField: "image"},
		{name: "image too large", mutate: func(j *domain.MintJob) { j.PrimaryImage = make([]byte, 17) }, wantField: "image"},
		{name: "certificate too large", mutate: func(j *domain.MintJob) { j.CertificateImage = make([]byte, 17) }, wantField: "certificate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			job := testJob(1)
			tt.mutate(job)

			_, err := f.worker.Submit(job)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, verr.Reason)
			}

			assert.Equal(t, 0, f.worker.QueueDepth())
			_, err = f.statuses.Get(job.PaymentReference)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestWorker_Submit_NameCountsRunes(t *testing.T) {
	f := newFixture(t, 10)
	job := testJob(1)
	job.Name = strings.Repeat("é", 24)

	_, err := f.worker.Submit(job)
	assert.NoError(t, err)
}

func TestWorker_Submit_QueueFull(t *testing.T) {
	f := newFixture(t, 2)

	for i := 0; i < 2; i++ {
		_, err := f.worker.Submit(testJob(i))
		require.NoError(t, err)
	}

	job := testJob(2)
	_, err := f.worker.Submit(job)
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	_, err = f.statuses.Get(job.PaymentReference)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWorker_Submit_Duplicate(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)

	_, err = f.worker.Submit(testJob(1))
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
	assert.Equal(t, 1, f.worker.QueueDepth())
}

func TestWorker_ProcessesToMinted(t *testing.T) {
	f := newFixture(t, 10)
	journal := &fakeJournal{}
	events := &fakeEvents{}
	f.worker.journal = journal
	f.worker.events = events

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	job := testJob(1)
	job.CertificateImage = []byte("cert")
	_, err := f.worker.Submit(job)
	require.NoError(t, err)

	st := f.waitForState(t, job.PaymentReference, domain.JobStateMinted)
	assert.Equal(t, "Success!", st.Message)
	assert.Equal(t, uint32(7), st.SlotIndex)
	assert.Equal(t, testPayer, st.PayerAddress)
	assert.Equal(t, "mint-tx", st.MintTxID)
	assert.Equal(t, "mint-address", st.MintAddress)
	assert.Equal(t, "https://arweave.net/m", st.AssetLink)

	require.Equal(t, 1, f.minter.calls())
	req := f.minter.requests[0]
	assert.Equal(t, uint32(7), req.SlotIndex)
	assert.Equal(t, testPayer, req.RecipientAddress)
	assert.Equal(t, "Item 1 (#7)", req.Manifest.Name)
	assert.Equal(t, []byte("cert"), req.Certificate)

	// journal and events are best effort; a failing broker leaves the status alone
	require.Eventually(t, func() bool { return journal.count() == 1 }, time.Second, 5*time.Millisecond)
	rec := journal.records[0]
	assert.Equal(t, "minted", rec.State)
	assert.Equal(t, int64(7), rec.SlotIndex)
	assert.Equal(t, job.JobID, rec.JobID)

	events.mu.Lock()
	require.Len(t, events.bodies, 1)
	assert.Contains(t, events.bodies[0], `"type":"mint.outcome"`)
	events.mu.Unlock()

	st, err = f.statuses.Get(job.PaymentReference)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateMinted, st.State)

	// minted references can never be resubmitted
	_, err = f.worker.Submit(testJob(1))
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)
}

func TestWorker_SlotAlreadySpent(t *testing.T) {
	f := newFixture(t, 10)
	f.slots.used[7] = true

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	job := testJob(1)
	_, err := f.worker.Submit(job)
	require.NoError(t, err)

	st := f.waitForState(t, job.PaymentReference, domain.JobStateError)
	assert.Contains(t, st.Message, "slot 7 has already been spent")
	assert.Equal(t, uint32(7), st.SlotIndex)
	assert.Equal(t, 0, f.minter.calls())
}

func TestWorker_FailureMessages(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		wantMsg  string
		wantMint int
	}{
		{
			name:    "transaction not found",
			setup:   func(f *fixture) { f.chain.txErr = ledger.ErrTransactionNotFound },
			wantMsg: "invalid payment tx: tx not found",
		},
		{
			name:    "payment rejected",
			setup:   func(f *fixture) { f.verifier.err = domain.NewPaymentRejected(domain.RejectInsufficientAmount, "invalid payment amount") },
			wantMsg: "invalid payment tx: invalid payment amount",
		},
		{
			name: "minter failure",
			setup: func(f *fixture) {
				f.minter.mint = func(minter.Request) (*minter.Result, error) { return nil, errors.New("gateway down") }
			},
			wantMsg:  "upload and mint: gateway down",
			wantMint: 1,
		},
		{
			name: "minter panic",
			setup: func(f *fixture) {
				f.minter.mint = func(minter.Request) (*minter.Result, error) { panic("nil manifest") }
			},
			wantMsg:  "internal error: nil manifest",
			wantMint: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			tt.setup(f)

			f.worker.Start(context.Background())
			defer f.worker.Stop()

			job := testJob(1)
			_, err := f.worker.Submit(job)
			require.NoError(t, err)

			st := f.waitForState(t, job.PaymentReference, domain.JobStateError)
			assert.Equal(t, tt.wantMsg, st.Message)
			assert.Equal(t, tt.wantMint, f.minter.calls())

			// the loop keeps going after a failure
			f.minter.mint = nil
			f.chain.txErr = nil
			f.verifier.err = nil
			next := testJob(2)
			_, err = f.worker.Submit(next)
			require.NoError(t, err)
			f.waitForState(t, next.PaymentReference, domain.JobStateMinted)
		})
	}
}

func TestWorker_ResubmitAfterError(t *testing.T) {
	f := newFixture(t, 10)
	f.chain.txErr = ledger.ErrTransactionNotFound

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	_, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)
	f.waitForState(t, testReference(1), domain.JobStateError)

	f.chain.txErr = nil
	st, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateQueued, st.State)

	f.waitForState(t, testReference(1), domain.JobStateMinted)
}

// resubmitOnError resubmits a job from inside the Put that publishes its error,
// the earliest moment a poller could see it
type resubmitOnError struct {
	*status.Cache
	worker *Worker
	job    func() *domain.MintJob
	once   sync.Once
	err    error
	done   chan struct{}
}

func (r *resubmitOnError) Put(key string, st domain.JobStatus) {
	r.Cache.Put(key, st)
	if st.State != domain.JobStateError {
		return
	}
	r.once.Do(func() {
		_, r.err = r.worker.Submit(r.job())
		close(r.done)
	})
}

func TestWorker_ResubmitAsSoonAsErrorVisible(t *testing.T) {
	f := newFixture(t, 10)
	f.chain.txErr = ledger.ErrTransactionNotFound

	store := &resubmitOnError{
		Cache:  f.statuses,
		worker: f.worker,
		job:    func() *domain.MintJob { return testJob(1) },
		done:   make(chan struct{}),
	}
	f.worker.statuses = store

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	_, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)

	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never failed")
	}
	assert.NoError(t, store.err)
}

func TestWorker_DuplicateWhileFinishing(t *testing.T) {
	f := newFixture(t, 10)
	started := make(chan struct{})
	release := make(chan struct{})
	f.minter.mint = func(minter.Request) (*minter.Result, error) {
		close(started)
		<-release
		return nil, errors.New("gateway down")
	}

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	_, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)
	<-started

	// processing jobs stay duplicates even without the in-flight entry
	f.worker.release(testReference(1))
	_, err = f.worker.Submit(testJob(1))
	assert.ErrorIs(t, err, domain.ErrDuplicateSubmission)

	close(release)
	f.waitForState(t, testReference(1), domain.JobStateError)
}

func TestWorker_SingleJobInFlight(t *testing.T) {
	f := newFixture(t, 10)
	release := make(chan struct{})
	f.minter.mint = func(minter.Request) (*minter.Result, error) {
		<-release
		return &minter.Result{MintTxID: "tx"}, nil
	}

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.worker.Submit(testJob(i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		require.Eventually(t, func() bool { return f.minter.calls() == i+1 }, 5*time.Second, 5*time.Millisecond)
		release <- struct{}{}
	}

	for i := 0; i < 5; i++ {
		f.waitForState(t, testReference(i), domain.JobStateMinted)
	}
	assert.Equal(t, int32(1), f.minter.peak.Load())
}

func TestWorker_FIFOOrder(t *testing.T) {
	f := newFixture(t, 10)

	for i := 0; i < 4; i++ {
		_, err := f.worker.Submit(testJob(i))
		require.NoError(t, err)
	}

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	f.waitForState(t, testReference(3), domain.JobStateMinted)

	f.minter.mu.Lock()
	defer f.minter.mu.Unlock()
	require.Len(t, f.minter.requests, 4)
	for i, req := range f.minter.requests {
		assert.Equal(t, fmt.Sprintf("Item %d (#7)", i), req.Manifest.Name)
	}
}

func TestWorker_StopAbandonsQueuedJobs(t *testing.T) {
	f := newFixture(t, 10)
	started := make(chan struct{})
	release := make(chan struct{})
	f.minter.mint = func(minter.Request) (*minter.Result, error) {
		close(started)
		<-release
		return &minter.Result{MintTxID: "tx"}, nil
	}

	f.worker.Start(context.Background())

	for i := 0; i < 3; i++ {
		_, err := f.worker.Submit(testJob(i))
		require.NoError(t, err)
	}
	<-started

	stopped := make(chan struct{})
	go func() {
		f.worker.Stop()
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		_, err := f.worker.Submit(testJob(9))
		return errors.Is(err, ErrWorkerStopped)
	}, time.Second, 5*time.Millisecond)

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// the job in flight finishes, the waiting ones fail with a resubmit hint
	st, err := f.statuses.Get(testReference(0))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateMinted, st.State)

	for i := 1; i < 3; i++ {
		st, err := f.statuses.Get(testReference(i))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateError, st.State)
		assert.Equal(t, "service stopped before the job started; resubmit", st.Message)
	}
	assert.Equal(t, 1, f.minter.calls())
}

func TestWorker_JobSurvivesContextCancel(t *testing.T) {
	f := newFixture(t, 10)
	started := make(chan struct{})
	release := make(chan struct{})
	f.minter.mint = func(minter.Request) (*minter.Result, error) {
		close(started)
		<-release
		return &minter.Result{MintTxID: "tx"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)
	defer f.worker.Stop()

	_, err := f.worker.Submit(testJob(1))
	require.NoError(t, err)
	<-started

	cancel()
	close(release)

	f.waitForState(t, testReference(1), domain.JobStateMinted)
}
