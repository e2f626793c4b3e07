package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leettogether/leetstreak/internal/config"
)

// DiscordSink posts messages through the Discord REST API
type DiscordSink struct {
	base       string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	dms map[string]string
}

// NewDiscordSink creates a sink using the bot token from cfg
func NewDiscordSink(cfg *config.DiscordConfig, logger *slog.Logger) *DiscordSink {
	return &DiscordSink{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		dms:        make(map[string]string),
	}
}

type createMessage struct {
	Content string `json:"content"`
}

type createDM struct {
	RecipientID string `json:"recipient_id"`
}

type channelResponse struct {
	ID string `json:"id"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Send posts text to the target channel, opening a DM channel first when
// the target is a user
func (d *DiscordSink) Send(ctx context.Context, target Target, text string) error {
	channelID := target.ID
	if target.Kind == TargetUser {
		id, err := d.dmChannel(ctx, target.ID)
		if err != nil {
			return fmt.Errorf("opening dm with %s: %w", target.ID, err)
		}
		channelID = id
	}
	if err := d.post(ctx, "/channels/"+channelID+"/messages", createMessage{Content: text}, nil); err != nil {
		return fmt.Errorf("posting to %s: %w", target, err)
	}
	return nil
}

func (d *DiscordSink) dmChannel(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	id, ok := d.dms[userID]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	var ch channelResponse
	if err := d.post(ctx, "/users/@me/channels", createDM{RecipientID: userID}, &ch); err != nil {
		return "", err
	}
	if ch.ID == "" {
		return "", fmt.Errorf("empty dm channel id")
	}

	d.mu.Lock()
	d.dms[userID] = ch.ID
	d.mu.Unlock()
	return ch.ID, nil
}

func (d *DiscordSink) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.token)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(resp.Header, data)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("discord returned status %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding discord response: %w", err)
		}
	}
	return nil
}

// retryAfter reads the wait hint from a 429 body, falling back to the
// Retry-After header. Both are in seconds
func retryAfter(h http.Header, body []byte) time.Duration {
	var rl rateLimitBody
	if err := json.Unmarshal(body, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
