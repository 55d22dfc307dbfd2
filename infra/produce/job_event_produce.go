package produce

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// JobEventExchange fans job lifecycle events out to every running HTTP
	// instance so each can push them to its own subscribed clients. Instances
	// bind their own auto-delete queues; there is no shared work queue here.
	JobEventExchange = "render.job.events"
)

// JobEventMessage announces that a generation job reached a terminal state.
type JobEventMessage struct {
	OwnerID        string `json:"owner_id"`
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	OutputImageURL string `json:"output_image_url,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// JobEventService publishes job lifecycle events
type JobEventService struct {
	channel *amqp.Channel
}

func InitJobEventService(channel *amqp.Channel) *JobEventService {
	service := &JobEventService{
		channel: channel,
	}

	err := channel.ExchangeDeclare(
		JobEventExchange,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Job Event exchange: " + err.Error())
	}

	return service
}

// PublishJobEvent broadcasts a terminal job transition.
func (s *JobEventService) PublishJobEvent(ctx context.Context, msg JobEventMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(ctx,
		JobEventExchange,
		"", // fanout ignores routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)
}
