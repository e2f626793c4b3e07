// Package notify delivers bot messages. A Sink sends text to a Discord
// channel or to a user's direct messages; the Gate in front of it spaces
// deliveries out and retries rate-limited ones
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
)

// TargetKind says where a message goes
type TargetKind int

const (
	// TargetChannel is a guild text channel
	TargetChannel TargetKind = iota
	// TargetUser is a user's direct message channel
	TargetUser
)

func (k TargetKind) String() string {
	if k == TargetUser {
		return "user"
	}
	return "channel"
}

// Target is a message destination
type Target struct {
	Kind TargetKind
	ID   string
}

// Channel targets a text channel
func Channel(id string) Target {
	return Target{Kind: TargetChannel, ID: id}
}

// User targets a user's direct messages
func User(id string) Target {
	return Target{Kind: TargetUser, ID: id}
}

func (t Target) String() string {
	return t.Kind.String() + ":" + t.ID
}

// Sink delivers a text message
type Sink interface {
	Send(ctx context.Context, target Target, text string) error
}

// ErrGateStopped is returned when sending through a stopped gate
var ErrGateStopped = errors.New("notification gate stopped")

// RateLimitError is returned by a sink when the remote side asked us to
// slow down
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return domain.ErrRateLimited
}

// LogSink writes messages to the log instead of delivering them. It is
// used when Discord delivery is disabled
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, target Target, text string) error {
	s.logger.Info("notification", "target", target.String(), "text", text)
	return nil
}
