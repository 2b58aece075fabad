package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tamnbq/bulkops-be/internal/domain"
)

// setupConsumer sets up RabbitMQ consumer with QoS and returns delivery channel
func (w *Worker) setupConsumer(ctx context.Context) (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// prefetch_count caps unacknowledged messages per consumer; prefetch_size 0
	// means no byte limit, global false keeps the cap per-consumer.
	err := channel.Qos(
		w.prefetchCount,
		0,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	// auto-ack is off: a batch is only acknowledged after its outcome is
	// durably recorded.
	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.rabbitClient.QueueName()),
	)

	return deliveries, nil
}

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches parsed
// batch messages to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			var msg domain.BatchMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse batch message JSON",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages go to the dead letter path, never back
				// on the queue.
				w.nack(delivery.DeliveryTag, false)
				continue
			}

			if _, err := uuid.Parse(msg.ActionID); err != nil {
				w.logger.Error("Invalid action_id format - not a UUID",
					slog.String("action_id", msg.ActionID),
					slog.String("error", err.Error()),
				)
				w.nack(delivery.DeliveryTag, false)
				continue
			}

			batch := &batchDelivery{
				msg:         &msg,
				deliveryTag: delivery.DeliveryTag,
			}

			select {
			case w.batchChan <- batch:
				w.logger.Debug("Batch dispatched to worker pool",
					slog.String("action_id", msg.ActionID),
					slog.Int("records", len(msg.Records)),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching batch")
				// Requeue so another worker picks the batch up.
				w.nack(delivery.DeliveryTag, true)
				return
			}
		}
	}
}

func (w *Worker) nack(deliveryTag uint64, requeue bool) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		w.logger.Error("Failed to get RabbitMQ channel for NACK",
			slog.Uint64("delivery_tag", deliveryTag),
		)
		return
	}
	if err := channel.Nack(deliveryTag, false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", deliveryTag),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}
