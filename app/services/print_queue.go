package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/covxx/pelattahub-sub002/app/dto"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// PrintQueue hands label print jobs to the printer transport
type PrintQueue interface {
	Publish(ctx context.Context, job dto.LabelPrintJob) error
	Close() error
}

// AMQPPrintQueueConfig names the broker objects print jobs are routed through
type AMQPPrintQueueConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
}

// AMQPPrintQueue publishes print jobs as persistent JSON messages. The connection is
// opened lazily and reopened on the next publish after the broker drops it.
type AMQPPrintQueue struct {
	cfg    AMQPPrintQueueConfig
	logger logrus.FieldLogger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPrintQueue(cfg AMQPPrintQueueConfig, logger logrus.FieldLogger) (*AMQPPrintQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	if cfg.Queue == "" {
		cfg.Queue = "label.print"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = cfg.Queue
	}
	return &AMQPPrintQueue{cfg: cfg, logger: logger}, nil
}

func (q *AMQPPrintQueue) Publish(ctx context.Context, job dto.LabelPrintJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal print job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     job.JobID,
		CorrelationId: job.RequestID,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	}
	if err := ch.PublishWithContext(ctx, q.cfg.Exchange, q.cfg.RoutingKey, false, false, msg); err != nil {
		q.resetLocked()
		return fmt.Errorf("failed to publish print job: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing and declaring the topology when needed.
// Caller holds q.mu.
func (q *AMQPPrintQueue) channel() (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() && q.conn != nil && !q.conn.IsClosed() {
		return q.ch, nil
	}
	q.resetLocked()

	conn, err := amqp.Dial(q.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial print queue broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open print queue channel: %w", err)
	}

	if q.cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(q.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", q.cfg.Exchange, err)
		}
	}
	if _, err := ch.QueueDeclare(q.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", q.cfg.Queue, err)
	}
	if q.cfg.Exchange != "" {
		if err := ch.QueueBind(q.cfg.Queue, q.cfg.RoutingKey, q.cfg.Exchange, false, nil); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bind queue %s: %w", q.cfg.Queue, err)
		}
	}

	if q.logger != nil {
		q.logger.WithFields(logrus.Fields{
			"exchange": q.cfg.Exchange,
			"queue":    q.cfg.Queue,
		}).Info("print queue connected")
	}
	q.conn, q.ch = conn, ch
	return ch, nil
}

func (q *AMQPPrintQueue) resetLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		_ = q.conn.Close()
		q.conn = nil
	}
}

func (q *AMQPPrintQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetLocked()
	return nil
}

// JobIDGenerator produces time ordered identifiers for print jobs
type JobIDGenerator interface {
	NextID() string
}

type SnowflakeJobIDGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeJobIDGenerator creates a generator for nodeID, which must be unique per
// running instance.
func NewSnowflakeJobIDGenerator(nodeID int64) (*SnowflakeJobIDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeJobIDGenerator{node: node}, nil
}

func (g *SnowflakeJobIDGenerator) NextID() string {
	return g.node.Generate().String()
}
