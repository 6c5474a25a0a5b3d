package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

// AMQPPublisher publishes lifecycle events onto a durable RabbitMQ queue
// named after the topic. The worker process consumes the same queue.
type AMQPPublisher struct {
	ch *amqp.Channel
}

// NewAMQPPublisher opens a channel on conn and returns a publisher.
func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch}, nil
}

// Publish declares the topic queue (idempotent) and sends the event as JSON.
func (p *AMQPPublisher) Publish(topic string, event Event) error {
	q, err := p.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.ch.Publish(
		"",
		q.Name,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Close releases the underlying channel.
func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
