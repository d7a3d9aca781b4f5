package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

var ErrNotConfirmed = errors.New("broker did not confirm notification")

// Message is the body published for every appointment notification.
type Message struct {
	appointment.Notification
	PublishedAt time.Time `json:"published_at"`
}

// confirmation is the broker's answer to one publish, matched by delivery tag.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// publishChannel is the part of *amqp.Channel the publisher needs.
type publishChannel interface {
	publish(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) publish(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, "", key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

// Publisher sends notifications to a durable RabbitMQ queue and waits for the
// broker's confirm of each message.
type Publisher struct {
	ch    publishChannel
	queue string
	log   zerolog.Logger
	now   func() time.Time
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return conn, nil
}

// NewPublisher opens a channel on conn, declares queue as durable and enables
// publisher confirms.
func NewPublisher(conn *amqp.Connection, queue string, log zerolog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return newPublisher(amqpChannel{ch}, queue, log), nil
}

func newPublisher(ch publishChannel, queue string, log zerolog.Logger) *Publisher {
	return &Publisher{
		ch:    ch,
		queue: queue,
		log:   log.With().Str("component", "notify").Str("queue", queue).Logger(),
		now:   time.Now,
	}
}

// Notify implements appointment.Notifier.
func (p *Publisher) Notify(ctx context.Context, n appointment.Notification) error {
	body, err := json.Marshal(Message{Notification: n, PublishedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         n.EventType,
		MessageId:    n.AppointmentID.String() + ":" + n.EventType + ":" + n.RecipientID.String(),
		Timestamp:    p.now(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	confirm, err := p.ch.publish(ctx, p.queue, msg)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return ErrNotConfirmed
	}

	p.log.Debug().
		Str("appointment_id", n.AppointmentID.String()).
		Str("event_type", n.EventType).
		Msg("notification published")
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
