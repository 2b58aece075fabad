package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Processor     *Processor
	Concurrency   int
	PrefetchCount int
}

// Worker consumes batch messages from RabbitMQ and processes them through a
// pool of goroutines.
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	processor     *Processor
	concurrency   int
	prefetchCount int
	workerID      string
	batchChan     chan *batchDelivery
	wg            sync.WaitGroup
	stopChan      chan struct{}
}

// batchDelivery pairs a parsed batch message with its delivery tag so the
// pool can ack or nack it after processing.
type batchDelivery struct {
	msg         *domain.BatchMessage
	deliveryTag uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetchCount := cfg.PrefetchCount
	if prefetchCount <= 0 {
		prefetchCount = concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		processor:     cfg.Processor,
		concurrency:   concurrency,
		prefetchCount: prefetchCount,
		workerID:      "worker-" + uuid.New().String()[:8],
		batchChan:     make(chan *batchDelivery),
		stopChan:      make(chan struct{}),
	}
}

// Start begins consuming and processing batches. It blocks until the context
// is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}
