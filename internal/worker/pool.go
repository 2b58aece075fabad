package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case batch, ok := <-w.batchChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - batchChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received batch",
				slog.String("worker_name", workerName),
				slog.String("action_id", batch.msg.ActionID),
				slog.Int("records", len(batch.msg.Records)),
				slog.Uint64("delivery_tag", batch.deliveryTag),
			)

			err := w.processor.ProcessBatch(ctx, batch.msg)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("action_id", batch.msg.ActionID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Batch processing failed",
					slog.String("worker_name", workerName),
					slog.String("action_id", batch.msg.ActionID),
					slog.String("error", err.Error()),
				)

				requeue := w.shouldRequeueBatch(err)

				if nackErr := channel.Nack(batch.deliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("action_id", batch.msg.ActionID),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("worker_name", workerName),
						slog.String("action_id", batch.msg.ActionID),
						slog.Bool("requeue", requeue),
					)
				}
			} else {
				if ackErr := channel.Ack(batch.deliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("action_id", batch.msg.ActionID),
						slog.String("error", ackErr.Error()),
					)
				} else {
					w.logger.Info("Batch completed",
						slog.String("worker_name", workerName),
						slog.String("action_id", batch.msg.ActionID),
					)
				}
			}
		}
	}
}

// shouldRequeueBatch decides whether a failed batch goes back on the queue.
// Critical errors already forced the action to FAILED and permanent errors
// cannot succeed on redelivery; everything else is transient and the dedup
// markers make redelivery safe.
func (w *Worker) shouldRequeueBatch(err error) bool {
	if domain.IsCritical(err) {
		return false
	}
	if domain.IsPermanent(err) {
		return false
	}
	return true
}
