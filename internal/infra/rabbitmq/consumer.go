package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Balaji-Ram-R/Squats-Analyzer/internal/infra/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	AnalysisRoutingKey = "squat.analysis"
	StatusRoutingKey   = "squat.status"

	maxBackoff = 60 * time.Second
)

type MessageHandler func(ctx context.Context, body []byte) error

// Consumer feeds analysis requests to a fixed pool of workers. A failed
// delivery is held for an exponential backoff and then requeued.
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	workers   int
	baseDelay time.Duration
	handler   MessageHandler
	logger    *zap.Logger
	wg        sync.WaitGroup
}

type ConsumerConfig struct {
	URL         string
	Queue       string
	Exchange    string
	DLQ         string
	StatusQueue string
	Prefetch    int
	WorkerCount int
	BaseDelayMs int
}

func NewConsumer(cfg ConsumerConfig, handler MessageHandler, logger *zap.Logger) (*Consumer, error) {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Prefetch < cfg.WorkerCount {
		cfg.Prefetch = cfg.WorkerCount
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:      conn,
		channel:   ch,
		queue:     cfg.Queue,
		workers:   cfg.WorkerCount,
		baseDelay: time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		handler:   handler,
		logger:    logger.With(zap.String("queue", cfg.Queue)),
	}, nil
}

// declareTopology creates the exchange and the analysis, status and dead
// letter queues. Requests and status updates are routed by key; the DLQ is
// published to directly.
func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	bindings := []struct{ queue, key string }{
		{cfg.Queue, AnalysisRoutingKey},
		{cfg.StatusQueue, StatusRoutingKey},
	}
	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.key, err)
		}
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Start consumes until ctx is cancelled, then waits for in-flight analyses.
func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool", zap.Int("workers", c.workers))

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.handle(ctx, d, log)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	log = log.With(zap.Uint64("delivery_tag", d.DeliveryTag))
	if d.MessageId != "" {
		log = log.With(zap.String("message_id", d.MessageId))
	}

	err := c.handler(ctx, d.Body)
	if err == nil {
		settle(log, "ack", d.Ack(false))
		return
	}

	attempt := deliveryAttempt(d)
	delay := backoff(c.baseDelay, attempt)
	log.Warn("analysis failed, requeueing after backoff",
		zap.Error(err),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		settle(log, "requeue", d.Nack(false, true))
	case <-ctx.Done():
		// Shutting down: hand the message back to the broker untouched.
		settle(log, "released", d.Nack(false, true))
	}
}

func settle(log *zap.Logger, outcome string, err error) {
	if err != nil {
		log.Error("settle delivery", zap.String("outcome", outcome), zap.Error(err))
		outcome = "settle_error"
	}
	metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
}

// deliveryAttempt estimates how many times the broker has handed out this
// message. Dead-lettered copies carry x-death counts; a plain requeue only sets
// the redelivered flag.
func deliveryAttempt(d amqp.Delivery) int {
	if n := deathCount(d.Headers); n > 0 {
		return n + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

func deathCount(headers amqp.Table) int {
	deaths, ok := headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	total := 0
	for _, entry := range deaths {
		table, ok := entry.(amqp.Table)
		if !ok {
			total++
			continue
		}
		switch n := table["count"].(type) {
		case int64:
			total += int(n)
		case int32:
			total += int(n)
		case int:
			total += n
		default:
			total++
		}
	}
	return total
}

// backoff doubles base per attempt, capped at a minute.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return maxBackoff
	}
	delay := base << (attempt - 1)
	if delay > maxBackoff || delay < base {
		return maxBackoff
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
