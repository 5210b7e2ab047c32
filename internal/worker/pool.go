package worker

import (
	"context"
	"log/slog"
)

// processLoop drains the queue one job at a time until stopped
func (w *Worker) processLoop(ctx context.Context) {
	defer w.wg.Done()

	w.logger.Info("Mint loop started")

	for {
		// a pending stop wins over a ready job
		select {
		case <-w.stopChan:
			w.logger.Info("Mint loop stopping - stopChan closed")
			return
		case <-ctx.Done():
			w.logger.Info("Mint loop stopping - context canceled")
			return
		default:
		}

		select {
		case <-w.stopChan:
			w.logger.Info("Mint loop stopping - stopChan closed")
			return

		case <-ctx.Done():
			w.logger.Info("Mint loop stopping - context canceled")
			return

		case job := <-w.jobsChan:
			w.metrics.SetQueueDepth(len(w.jobsChan))
			w.logger.Info("Mint job dequeued",
				slog.String("job_id", job.JobID),
				slog.String("payment_reference", job.PaymentReference),
				slog.Int("queue_depth", len(w.jobsChan)),
			)

			w.processJob(ctx, job)
		}
	}
}
