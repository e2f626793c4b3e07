// Package streak applies the once-per-day streak transition
package streak

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/ledger"
)

// Snapshotter reads a user's solve ledger
type Snapshotter interface {
	Snapshot(ctx context.Context, user domain.User) (*ledger.Snapshot, error)
}

// Store persists streak state
type Store interface {
	GetStreak(ctx context.Context, discordID string) (domain.StreakState, error)
	PutStreak(ctx context.Context, discordID string, s domain.StreakState) error
}

// Outcome describes what an evaluation did
type Outcome string

const (
	OutcomeExtended         Outcome = "extended"
	OutcomeReset            Outcome = "reset"
	OutcomeAlreadyEvaluated Outcome = "already_evaluated"
	OutcomeDeferred         Outcome = "deferred"
)

// Result is the outcome of one evaluation
type Result struct {
	Outcome   Outcome
	Previous  domain.StreakState
	State     domain.StreakState
	NewSolves []ledger.Solve
	// CaughtUp is the number of skipped days evaluated before the
	// requested one
	CaughtUp int
}

// Changed reports whether the evaluation wrote new state
func (r Result) Changed() bool {
	return r.Outcome == OutcomeExtended || r.Outcome == OutcomeReset
}

// Engine evaluates streaks
type Engine struct {
	ledger     Snapshotter
	store      Store
	maxCatchUp int
	logger     *slog.Logger
}

// NewEngine creates an Engine. Gaps of up to maxCatchUp unevaluated days
// are replayed from ledger data; longer gaps reset the current streak
func NewEngine(l Snapshotter, s Store, maxCatchUp int, logger *slog.Logger) *Engine {
	return &Engine{
		ledger:     l,
		store:      s,
		maxCatchUp: maxCatchUp,
		logger:     logger,
	}
}

// Apply is the pure day transition
func Apply(s domain.StreakState, day domain.Date, solved bool) domain.StreakState {
	if solved {
		s.CurrentStreak++
		s.TotalDaysSolved++
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
		}
	} else {
		s.CurrentStreak = 0
	}
	d := day
	s.LastEvaluatedDate = &d
	return s
}

// Evaluate advances the user's streak to asOf. Evaluating a day that is
// not after the last evaluated day is a no-op, as is any evaluation while
// the submission feed is unavailable
func (e *Engine) Evaluate(ctx context.Context, user domain.User, asOf domain.Date) (Result, error) {
	state, err := e.store.GetStreak(ctx, user.DiscordID)
	if err != nil {
		return Result{}, fmt.Errorf("loading streak: %w", err)
	}
	res := Result{Previous: state, State: state}

	if last := state.LastEvaluatedDate; last != nil && !asOf.After(*last) {
		res.Outcome = OutcomeAlreadyEvaluated
		return res, nil
	}

	snap, err := e.ledger.Snapshot(ctx, user)
	if domain.IsNoData(err) {
		e.logger.Warn("deferring streak evaluation",
			"discord_id", user.DiscordID,
			"date", asOf.String(),
		)
		res.Outcome = OutcomeDeferred
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}

	next := state
	if last := state.LastEvaluatedDate; last != nil {
		gap := asOf.DaysSince(*last) - 1
		switch {
		case gap > e.maxCatchUp:
			e.logger.Info("streak gap exceeds catch-up window, resetting",
				"discord_id", user.DiscordID,
				"last_evaluated", last.String(),
				"gap_days", gap,
			)
			next.CurrentStreak = 0
		case gap > 0:
			for d := last.AddDays(1); d.Before(asOf); d = d.AddDays(1) {
				next = Apply(next, d, snap.SolvedOn(d))
				res.CaughtUp++
			}
		}
	}

	res.NewSolves = snap.NewSolvesOn(asOf)
	next = Apply(next, asOf, len(res.NewSolves) > 0)
	if len(res.NewSolves) > 0 {
		res.Outcome = OutcomeExtended
	} else {
		res.Outcome = OutcomeReset
	}

	if err := e.store.PutStreak(ctx, user.DiscordID, next); err != nil {
		return Result{}, fmt.Errorf("saving streak: %w", err)
	}
	res.State = next

	e.logger.Debug("streak evaluated",
		"discord_id", user.DiscordID,
		"date", asOf.String(),
		"outcome", string(res.Outcome),
		"streak", next.CurrentStreak,
		"caught_up", res.CaughtUp,
	)
	return res, nil
}
