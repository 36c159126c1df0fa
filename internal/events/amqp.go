// Package events dispatches session lifecycle events to downstream consumers
// (summary generation, CRM) over AMQP.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// SessionEnded is published once per finalized session.
type SessionEnded struct {
	SessionID       string    `json:"session_id"`
	SessionType     string    `json:"session_type"`
	FinalStatus     string    `json:"final_status"`
	DurationSeconds int64     `json:"duration_seconds"`
	CustomerID      string    `json:"customer_id"`
	MechanicID      string    `json:"mechanic_id,omitempty"`
	EndedBy         string    `json:"ended_by"`
	EndedAt         time.Time `json:"ended_at"`
}

// Dispatcher sends SessionEnded events. Implementations must be safe for
// concurrent use.
type Dispatcher interface {
	SessionEnded(ctx context.Context, evt SessionEnded) error
}

type AMQPPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the fanout exchange.
func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{exchange: exchange, conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) SessionEnded(ctx context.Context, evt SessionEnded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := encode(evt)
	if err != nil {
		return err
	}
	// amqp.Channel is not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return errors.New("events: publisher closed")
	}
	return p.channel.Publish(p.exchange, "", false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func encode(evt SessionEnded) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.SessionID,
		Type:         "session.ended",
		Timestamp:    evt.EndedAt,
		Body:         body,
	}, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) SessionEnded(context.Context, SessionEnded) error { return nil }
