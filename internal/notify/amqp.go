// Package notify publishes order decisions to an AMQP exchange.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wellywell/orderdesk/internal/types"
)

const (
	exchangeKind   = "topic"
	contentType    = "application/json"
	publishTimeout = 5 * time.Second
)

var ErrNacked = errors.New("publish nacked by broker")

// AMQPPublisher sends one persistent message per decision and waits for the
// broker's confirm. Publishes are serialised so confirms line up with
// messages.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	mu       sync.Mutex
}

func Dial(url string, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	err = ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("enabling confirms: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		ch:       ch,
		acks:     ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		exchange: exchange,
	}, nil
}

// RoutingKey is order.<status>, e.g. order.approved.
func RoutingKey(decision types.Decision) string {
	return "order." + string(decision.Status)
}

func Message(decision types.Decision) (amqp.Publishing, error) {
	body, err := json.Marshal(decision)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentType,
		MessageId:    decision.OrderID + "-" + string(decision.Status),
		Timestamp:    decision.DecidedAt,
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, decision types.Decision) error {
	msg, err := Message(decision)
	if err != nil {
		return fmt.Errorf("encoding decision: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(decision), false, false, msg)
	if err != nil {
		return fmt.Errorf("publishing decision for %s: %w", decision.OrderID, err)
	}

	select {
	case conf, ok := <-p.acks:
		if !ok {
			return fmt.Errorf("%w: confirm channel closed", ErrNacked)
		}
		if !conf.Ack {
			return ErrNacked
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AMQPPublisher) Ping() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("broker connection is closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}
