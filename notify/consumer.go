package notify

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/makeit-app/render-orchestrator/infra"
	"github.com/makeit-app/render-orchestrator/infra/produce"
)

// StartConsumer binds a private auto-delete queue to the job event exchange and
// feeds every received event into the registry. Runs until ctx is cancelled or
// the channel closes.
func StartConsumer(ctx context.Context, channel *amqp.Channel, registry *Registry, logger *infra.LoggerClient) error {
	queue, err := channel.QueueDeclare(
		"",    // broker-assigned name, one queue per instance
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	if err := channel.QueueBind(queue.Name, "", produce.JobEventExchange, false, nil); err != nil {
		return err
	}

	msgs, err := channel.Consume(
		queue.Name,
		"",    // consumer tag
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	logger.InfoWithContextf(ctx, "Job event consumer started on queue %s", queue.Name)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.InfoWithContextf(ctx, "Job event consumer stopping")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.WarningWithContextf(ctx, "Job event channel closed")
					return
				}

				var event produce.JobEventMessage
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					logger.ErrorWithContextf(ctx, err, "Failed to decode job event")
					_ = msg.Nack(false, false)
					continue
				}

				registry.Broadcast(event)
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}
