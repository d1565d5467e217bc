// Package feed publishes audit records to an AMQP activity feed so CRM
// dashboards and downstream consumers can follow rule activity live.
package feed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/streadway/amqp"

	"github.com/outreachlab/leadpulse/internal/models"
)

// Opts holds configuration options for the AMQP publisher.
type Opts struct {
	URL   string
	Queue string
}

// Option defines a configuration option for the AMQP publisher.
type Option func(*Opts)

// WithURL sets the AMQP broker URL, overriding $AMQP_URL.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithQueue sets the queue name, overriding $AMQP_QUEUE_NAME.
func WithQueue(queue string) Option {
	return func(o *Opts) { o.Queue = queue }
}

// AMQPPublisher forwards audit records to a durable AMQP queue.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPPublisher connects to the broker and declares the queue. The URL and
// queue name fall back to the AMQP_URL / AMQP_QUEUE_NAME environment
// variables.
func NewAMQPPublisher(opts ...Option) (*AMQPPublisher, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("AMQP_URL")
	}
	if cfg.Queue == "" {
		cfg.Queue = os.Getenv("AMQP_QUEUE_NAME")
	}
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, fmt.Errorf("amqp feed not configured: URL and queue name required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	queue, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare AMQP queue %s: %w", cfg.Queue, err)
	}

	slog.Info("Feed connected to AMQP queue", "queue", queue.Name, "pending", queue.Messages, "consumers", queue.Consumers)
	return &AMQPPublisher{conn: conn, channel: channel, queue: cfg.Queue}, nil
}

// PublishAudit sends one audit record as a JSON message.
func (p *AMQPPublisher) PublishAudit(rec models.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record %s: %w", rec.ID, err)
	}

	err = p.channel.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish audit record %s: %w", rec.ID, err)
	}
	slog.Debug("Feed published audit record", "auditID", rec.ID, "leadID", rec.LeadID, "queue", p.queue)
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
