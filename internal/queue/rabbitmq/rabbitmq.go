package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"queue-purger/internal/config"
	"queue-purger/internal/models"
	"queue-purger/internal/queue"
)

const (
	connectionName     = "queue-purger"
	connectionTimeout  = 30 * time.Second
	defaultContentType = "application/json"

	headerRequeued     = "x-requeued"
	headerRequeuedFrom = "x-requeued-from"
)

type Provider struct {
	url    string
	config amqp.Config
	conn   *amqp.Connection
}

var _ queue.Provider = (*Provider)(nil)

func New(cfg config.Config) *Provider {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	return &Provider{
		url: cfg.AMQPURL(),
		config: amqp.Config{
			SASL:       []amqp.Authentication{&amqp.PlainAuth{Username: cfg.Username, Password: cfg.Password}},
			Vhost:      cfg.VirtualHost,
			Heartbeat:  10 * time.Second,
			Locale:     "en_US",
			Properties: props,
		},
	}
}

func (p *Provider) Connect(ctx context.Context) error {
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	cfg := p.config
	cfg.Dial = dialContext(ctx)

	conn, err := amqp.DialConfig(p.url, cfg)
	if err != nil {
		return classify(err)
	}
	p.conn = conn
	log.Debug().Str("component", "rabbitmq").Str("url", p.url).Str("vhost", p.config.Vhost).Msg("connected")
	return nil
}

// dialContext mirrors amqp.DefaultDial but honours ctx while dialing. The
// deadline covers the handshake and is cleared by the client once it is open.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: connectionTimeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(connectionTimeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Provider) Close() error {
	if p.conn == nil {
		return nil
	}
	conn := p.conn
	p.conn = nil
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	log.Debug().Str("component", "rabbitmq").Msg("connection closed")
	return nil
}

// channel opens a fresh channel. The broker closes a channel on any
// channel-level exception, so callers use one channel per operation.
func (p *Provider) channel() (*amqp.Channel, error) {
	if p.conn == nil || p.conn.IsClosed() {
		return nil, queue.ErrNotConnected
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, classify(err)
	}
	return ch, nil
}

func (p *Provider) Inspect(name string) (queue.State, error) {
	ch, err := p.channel()
	if err != nil {
		return queue.State{}, err
	}
	defer ch.Close()

	q, err := ch.QueueDeclarePassive(name, false, false, false, false, nil)
	if err != nil {
		return queue.State{}, classify(err)
	}
	return queue.State{Name: q.Name, Messages: q.Messages, Consumers: q.Consumers}, nil
}

func (p *Provider) PurgeQueue(name string) (int, error) {
	ch, err := p.channel()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	n, err := ch.QueuePurge(name, false)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Requeue moves messages from one queue to another through the default
// exchange.
func (p *Provider) Requeue(ctx context.Context, from, to string, limit int) (int, error) {
	if _, err := p.Inspect(to); err != nil {
		return 0, fmt.Errorf("target %s: %w", to, err)
	}

	ch, err := p.channel()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return 0, fmt.Errorf("enable publisher confirms: %w", classify(err))
	}
	return requeueMessages(ctx, confirmChannel{ch}, from, to, limit, time.Now)
}

// Peek gets up to limit messages without acking them and puts every one back
// when done, so the queue keeps its contents.
func (p *Provider) Peek(ctx context.Context, name string, limit int) ([]models.PeekedMessage, error) {
	ch, err := p.channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	return peekMessages(ctx, ch, name, limit)
}

// getter is the part of a channel the peek loop needs.
type getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

// confirmingChannel is the part of a channel the requeue loop needs.
// PublishConfirmed reports whether the broker acked the publish.
type confirmingChannel interface {
	getter
	PublishConfirmed(ctx context.Context, key string, msg amqp.Publishing) (bool, error)
}

// confirmChannel adapts a channel in confirm mode.
type confirmChannel struct {
	*amqp.Channel
}

func (c confirmChannel) PublishConfirmed(ctx context.Context, key string, msg amqp.Publishing) (bool, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, "", key, false, false, msg)
	if err != nil {
		return false, classify(err)
	}
	return dc.WaitContext(ctx)
}

// requeueMessages acks a source message only after the broker confirms the
// republished copy. An unconfirmed publish puts the message back and stops
// the loop.
func requeueMessages(ctx context.Context, ch confirmingChannel, from, to string, limit int, now func() time.Time) (int, error) {
	moved := 0
	for moved < limit {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		d, ok, err := ch.Get(from, false)
		if err != nil {
			return moved, classify(err)
		}
		if !ok {
			break
		}

		msg := requeuedPublishing(d, from, now().UTC())
		confirmed, err := ch.PublishConfirmed(ctx, to, msg)
		if err != nil || !confirmed {
			if nackErr := d.Nack(false, true); nackErr != nil {
				log.Warn().Err(nackErr).Str("component", "rabbitmq").Str("queue", from).Msg("nack failed")
			}
			if err == nil {
				err = fmt.Errorf("broker did not confirm message %s", msg.MessageId)
			}
			return moved, fmt.Errorf("publish to %s: %w", to, err)
		}
		if err := d.Ack(false); err != nil {
			return moved, fmt.Errorf("ack %s: %w", from, classify(err))
		}
		moved++
		log.Debug().Str("component", "rabbitmq").Str("message_id", msg.MessageId).
			Int("moved", moved).Int("limit", limit).Msg("message requeued")
	}
	return moved, nil
}

// peekMessages holds every delivery unacked until the loop ends so the broker
// hands out the next message, then nacks them all with requeue.
func peekMessages(ctx context.Context, ch getter, name string, limit int) ([]models.PeekedMessage, error) {
	var held []amqp.Delivery
	defer func() {
		for _, d := range held {
			if err := d.Nack(false, true); err != nil {
				log.Warn().Err(err).Str("component", "rabbitmq").Str("queue", name).Msg("nack failed")
			}
		}
	}()

	var out []models.PeekedMessage
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, ok, err := ch.Get(name, false)
		if err != nil {
			return out, classify(err)
		}
		if !ok {
			break
		}
		held = append(held, d)
		out = append(out, peeked(d))
	}
	return out, nil
}

func peeked(d amqp.Delivery) models.PeekedMessage {
	var headers map[string]interface{}
	if len(d.Headers) > 0 {
		headers = make(map[string]interface{}, len(d.Headers))
		for k, v := range d.Headers {
			headers[k] = v
		}
	}
	return models.PeekedMessage{
		MessageID:   d.MessageId,
		ContentType: d.ContentType,
		Headers:     headers,
		BodySize:    len(d.Body),
		Redelivered: d.Redelivered,
	}
}

// requeuedPublishing copies a delivery into a persistent publishing stamped
// with where and when it was requeued.
func requeuedPublishing(d amqp.Delivery, from string, now time.Time) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[headerRequeued] = now.Format(time.RFC3339)
	headers[headerRequeuedFrom] = from

	contentType := d.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	messageID := d.MessageId
	if messageID == "" {
		messageID = uuid.NewString()
	}

	return amqp.Publishing{
		Headers:         headers,
		ContentType:     contentType,
		ContentEncoding: d.ContentEncoding,
		DeliveryMode:    amqp.Persistent,
		CorrelationId:   d.CorrelationId,
		MessageId:       messageID,
		Timestamp:       now,
		Type:            d.Type,
		Body:            d.Body,
	}
}

// classify maps broker exceptions onto the queue package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %s", queue.ErrNotConnected, err.Error())
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.NotFound:
			return fmt.Errorf("%w: %s", queue.ErrQueueNotFound, amqpErr.Reason)
		case amqp.AccessRefused:
			return fmt.Errorf("%w: %s", queue.ErrAccessRefused, amqpErr.Reason)
		}
	}
	return err
}
