package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/store"
)

// ErrNoChannel is returned when no announcement channel is configured
var ErrNoChannel = errors.New("no announcement channel configured")

// Publisher receives every event the notifier sends, for live feeds and
// event streams
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Settings reads runtime settings
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// Notifier turns events into channel posts and direct messages and mirrors
// them to publishers
type Notifier struct {
	sink       Sink
	settings   Settings
	fallback   string
	publishers []Publisher
	logger     *slog.Logger
}

// NewNotifier creates a Notifier. fallbackChannel is used when no
// announcement channel has been stored in settings
func NewNotifier(sink Sink, settings Settings, fallbackChannel string, logger *slog.Logger, publishers ...Publisher) *Notifier {
	return &Notifier{
		sink:       sink,
		settings:   settings,
		fallback:   fallbackChannel,
		publishers: publishers,
		logger:     logger,
	}
}

// AddPublisher registers another event receiver. It must be called before
// the notifier is used
func (n *Notifier) AddPublisher(p Publisher) {
	n.publishers = append(n.publishers, p)
}

// Channel returns the announcement channel id
func (n *Notifier) Channel(ctx context.Context) (string, error) {
	if n.settings != nil {
		id, ok, err := n.settings.GetSetting(ctx, store.SettingAnnouncementChannel)
		if err != nil {
			return "", err
		}
		if ok && id != "" {
			return id, nil
		}
	}
	if n.fallback == "" {
		return "", ErrNoChannel
	}
	return n.fallback, nil
}

// Announce posts the event text to the announcement channel
func (n *Notifier) Announce(ctx context.Context, ev domain.Event) error {
	ev = n.stamp(ev)
	n.publish(ctx, ev)

	channel, err := n.Channel(ctx)
	if err != nil {
		return err
	}
	return n.sink.Send(ctx, Channel(channel), ev.Text)
}

// Direct sends the event text to the user's direct messages
func (n *Notifier) Direct(ctx context.Context, discordID string, ev domain.Event) error {
	ev = n.stamp(ev)
	n.publish(ctx, ev)
	return n.sink.Send(ctx, User(discordID), ev.Text)
}

// Publish mirrors an event to publishers without posting it
func (n *Notifier) Publish(ctx context.Context, ev domain.Event) {
	n.publish(ctx, n.stamp(ev))
}

func (n *Notifier) stamp(ev domain.Event) domain.Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

func (n *Notifier) publish(ctx context.Context, ev domain.Event) {
	for _, p := range n.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			n.logger.Warn("event publish failed", "type", ev.Type, "error", err)
		}
	}
}
