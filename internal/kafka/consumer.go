package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/metrics"
)

// RegistrationHandler applies registration events
type RegistrationHandler interface {
	Register(ctx context.Context, discordID, handle string) (domain.User, error)
	Unregister(ctx context.Context, discordID string) error
}

// Consumer consumes registration events from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       RegistrationHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler RegistrationHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	c := newConsumer(cfg, handler, logger)
	c.consumerGroup = consumerGroup
	return c, nil
}

func newConsumer(cfg *config.KafkaConfig, handler RegistrationHandler, logger *slog.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:  cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan bool),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.RegistrationTopic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.RegistrationTopic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("kafka consumer ready")
	case <-c.ctx.Done():
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// apply runs a batch of events in order. Repeated events for the same user
// within the batch collapse to the last one
func (c *Consumer) apply(ctx context.Context, batch []RegistrationEvent) {
	last := make(map[string]int, len(batch))
	for i, ev := range batch {
		last[ev.DiscordID] = i
	}

	for i, ev := range batch {
		if last[ev.DiscordID] != i {
			metrics.RegistrationEvents.WithLabelValues(ev.Action, "superseded").Inc()
			continue
		}

		err := c.applyWithRetry(ctx, ev)
		metrics.RegistrationEvents.WithLabelValues(ev.Action, metrics.ResultLabel(err)).Inc()
		if err != nil {
			c.logger.Error("failed to apply registration event",
				"id", ev.ID,
				"action", ev.Action,
				"discord_id", ev.DiscordID,
				"error", err,
			)
		}
	}
}

func (c *Consumer) applyOne(ctx context.Context, ev RegistrationEvent) error {
	switch ev.Action {
	case ActionRegister:
		_, err := c.handler.Register(ctx, ev.DiscordID, ev.Handle)
		return err
	case ActionUnregister:
		err := c.handler.Unregister(ctx, ev.DiscordID)
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// applyWithRetry retries failures that are not the event's fault
func (c *Consumer) applyWithRetry(ctx context.Context, ev RegistrationEvent) error {
	var err error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		err = c.applyOne(ctx, ev)
		if err == nil || permanent(err) {
			return err
		}
		c.logger.Warn("registration event failed, retrying", "discord_id", ev.DiscordID, "attempt", attempt+1, "error", err)
	}
	return err
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidHandle) || errors.Is(err, domain.ErrInvalidRequest)
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.consumer.config
	batch := make([]RegistrationEvent, 0, cfg.BatchSize)
	pending := make([]*sarama.ConsumerMessage, 0, cfg.BatchSize)
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			h.consumer.apply(ctx, batch)
			cancel()
			h.consumer.logger.Debug("processed batch", "batch_size", len(batch))
		}
		for _, m := range pending {
			session.MarkMessage(m, "")
		}
		batch = batch[:0]
		pending = pending[:0]
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}
			pending = append(pending, message)

			var ev RegistrationEvent
			if err := json.Unmarshal(message.Value, &ev); err != nil {
				h.consumer.logger.Warn("failed to unmarshal message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				metrics.RegistrationEvents.WithLabelValues("unknown", "invalid").Inc()
				continue
			}
			if err := ev.Validate(); err != nil {
				h.consumer.logger.Warn("invalid registration event",
					"discord_id", ev.DiscordID,
					"action", ev.Action,
					"error", err,
				)
				metrics.RegistrationEvents.WithLabelValues(ev.Action, "invalid").Inc()
				continue
			}

			batch = append(batch, ev)
			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
