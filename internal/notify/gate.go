package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/metrics"
)

type message struct {
	target Target
	text   string
}

// Gate queues messages and delivers them through a sink from a single
// goroutine, no faster than the configured rate. Failed deliveries are
// retried a bounded number of times and then dropped
type Gate struct {
	sink       Sink
	limiter    *rate.Limiter
	queue      chan message
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
	stopped    bool
}

// NewGate creates a gate in front of sink
func NewGate(sink Sink, cfg *config.DiscordConfig, logger *slog.Logger) *Gate {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &Gate{
		sink:       sink,
		limiter:    rate.NewLimiter(limit, burst),
		queue:      make(chan message, size),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins delivering queued messages
func (g *Gate) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running || g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.running = true
	g.mu.Unlock()

	g.logger.Info("notification gate started", "queue_size", cap(g.queue))

	go g.run(ctx)
	return nil
}

// Stop delivers what is already queued, one attempt each, and returns once
// the delivery goroutine has exited
func (g *Gate) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = false
	g.stopped = true
	g.mu.Unlock()

	close(g.stopCh)
	<-g.doneCh

	g.logger.Info("notification gate stopped")
	return nil
}

// Send queues a message. It blocks while the queue is full
func (g *Gate) Send(ctx context.Context, target Target, text string) error {
	g.mu.Lock()
	stopped := g.stopped
	g.mu.Unlock()
	if stopped {
		return ErrGateStopped
	}

	select {
	case g.queue <- message{target: target, text: text}:
		metrics.NotificationQueueDepth.Set(float64(len(g.queue)))
		return nil
	case <-g.stopCh:
		return ErrGateStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) run(ctx context.Context) {
	defer close(g.doneCh)

	for {
		select {
		case <-g.stopCh:
			g.drain(ctx)
			return
		case <-ctx.Done():
			g.drain(ctx)
			return
		case msg := <-g.queue:
			metrics.NotificationQueueDepth.Set(float64(len(g.queue)))
			g.deliver(ctx, msg)
		}
	}
}

func (g *Gate) drain(ctx context.Context) {
	for {
		select {
		case msg := <-g.queue:
			g.deliver(ctx, msg)
		default:
			metrics.NotificationQueueDepth.Set(0)
			return
		}
	}
}

func (g *Gate) deliver(ctx context.Context, msg message) {
	for attempt := 0; ; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			g.drop(msg, attempt, err)
			return
		}

		err := g.sink.Send(ctx, msg.target, msg.text)
		if err == nil {
			metrics.NotificationsSent.WithLabelValues(msg.target.Kind.String()).Inc()
			return
		}
		if attempt >= g.maxRetries {
			g.drop(msg, attempt+1, err)
			return
		}

		wait := g.backoff * time.Duration(attempt+1)
		reason := "error"
		var rl *RateLimitError
		if errors.As(err, &rl) {
			reason = "rate_limited"
			if rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
		}
		metrics.NotificationsRetried.WithLabelValues(reason).Inc()
		g.logger.Warn("notification delivery failed, retrying",
			"target", msg.target.String(),
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
		)

		if !g.sleep(ctx, wait) {
			g.drop(msg, attempt+1, err)
			return
		}
	}
}

// sleep waits d, returning false if the gate is stopping
func (g *Gate) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-g.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (g *Gate) drop(msg message, attempts int, err error) {
	metrics.NotificationsDropped.Inc()
	g.logger.Error("notification dropped",
		"target", msg.target.String(),
		"attempts", attempts,
		"error", err,
	)
}
