package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
)

// Registration actions
const (
	ActionRegister   = "register"
	ActionUnregister = "unregister"
)

// RegistrationEvent asks the daemon to register or unregister a user
type RegistrationEvent struct {
	ID        string    `json:"id,omitempty"`
	Action    string    `json:"action"`
	DiscordID string    `json:"discord_id"`
	Handle    string    `json:"handle,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Validate checks the event is actionable
func (e RegistrationEvent) Validate() error {
	var errs []error
	switch e.Action {
	case ActionRegister:
		if strings.TrimSpace(e.Handle) == "" {
			errs = append(errs, errors.New("handle is required to register"))
		}
	case ActionUnregister:
	default:
		errs = append(errs, fmt.Errorf("unknown action %q", e.Action))
	}
	if strings.TrimSpace(e.DiscordID) == "" {
		errs = append(errs, errors.New("discord_id is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}
