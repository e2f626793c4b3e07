// Package service runs the tracker's jobs over every registered user
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leettogether/leetstreak/internal/announce"
	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/ledger"
	"github.com/leettogether/leetstreak/internal/metrics"
	"github.com/leettogether/leetstreak/internal/store"
	"github.com/leettogether/leetstreak/internal/streak"
	"github.com/leettogether/leetstreak/internal/timepolicy"
	"github.com/leettogether/leetstreak/internal/weekly"
)

// Source is the LeetCode surface the tracker needs
type Source interface {
	ledger.SubmissionSource
	weekly.Metadata
	UserExists(ctx context.Context, handle string) (bool, error)
}

// Notifier delivers bot messages
type Notifier interface {
	Announce(ctx context.Context, ev domain.Event) error
	Direct(ctx context.Context, discordID string, ev domain.Event) error
	Publish(ctx context.Context, ev domain.Event)
}

// Tracker owns the accounting components and applies them to users
type Tracker struct {
	repo      *store.Repository
	source    Source
	ledger    *ledger.Ledger
	engine    *streak.Engine
	weekly    *weekly.Aggregator
	announcer *announce.Announcer
	notifier  Notifier
	policy    *timepolicy.Policy
	config    *config.TrackerConfig
	locks     *keyedMutex
	logger    *slog.Logger
}

// NewTracker wires a Tracker. historyLimit is how many recent accepted
// submissions are read per user
func NewTracker(
	repo *store.Repository,
	source Source,
	notifier Notifier,
	policy *timepolicy.Policy,
	cfg *config.TrackerConfig,
	historyLimit int,
	logger *slog.Logger,
) *Tracker {
	l := ledger.New(source, repo, policy, historyLimit, logger)
	agg := weekly.NewAggregator(l, source, repo, policy, logger)
	t := &Tracker{
		repo:      repo,
		source:    source,
		ledger:    l,
		engine:    streak.NewEngine(l, repo, cfg.MaxCatchUpDays, logger),
		weekly:    agg,
		announcer: announce.NewAnnouncer(l, repo, agg, notifier, policy, logger),
		notifier:  notifier,
		policy:    policy,
		config:    cfg,
		locks:     newKeyedMutex(),
		logger:    logger,
	}
	agg.SetRecap(t.postWeekClosed)
	return t
}

// Policy returns the tracker's time policy
func (t *Tracker) Policy() *timepolicy.Policy {
	return t.policy
}

// Register links a Discord user to a LeetCode handle. Registering again
// with a different handle discards the derived state of the old one
func (t *Tracker) Register(ctx context.Context, discordID, handle string) (domain.User, error) {
	discordID = strings.TrimSpace(discordID)
	handle = strings.TrimSpace(handle)
	if discordID == "" {
		return domain.User{}, fmt.Errorf("%w: discord id is required", domain.ErrInvalidRequest)
	}
	if handle == "" {
		return domain.User{}, domain.ErrInvalidHandle
	}

	exists, err := t.source.UserExists(ctx, handle)
	if err != nil {
		return domain.User{}, fmt.Errorf("checking handle %s: %w", handle, err)
	}
	if !exists {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrInvalidHandle, handle)
	}

	unlock := t.locks.Lock(discordID)
	defer unlock()

	prev, err := t.repo.GetUser(ctx, discordID)
	switch {
	case err == nil && prev.Handle == handle:
		return prev, nil
	case err == nil:
		if err := t.repo.RemoveUser(ctx, discordID); err != nil {
			return domain.User{}, fmt.Errorf("clearing previous registration: %w", err)
		}
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, err
	}

	user := domain.User{DiscordID: discordID, Handle: handle, RegisteredAt: t.policy.Now().UTC()}
	if err := t.repo.PutUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("saving user: %w", err)
	}

	t.logger.Info("user registered", "discord_id", discordID, "handle", handle)
	t.notifier.Publish(ctx, domain.Event{
		Type:      domain.EventRegister,
		DiscordID: discordID,
		Handle:    handle,
		Text:      fmt.Sprintf("✅ Registered %s as **%s**", mention(discordID), handle),
	})
	t.refreshUserGauge(ctx)
	return user, nil
}

// Unregister removes a user and all of their data
func (t *Tracker) Unregister(ctx context.Context, discordID string) error {
	unlock := t.locks.Lock(discordID)
	defer unlock()

	user, err := t.repo.GetUser(ctx, discordID)
	if err != nil {
		return err
	}
	if err := t.repo.RemoveUser(ctx, discordID); err != nil {
		return fmt.Errorf("removing user: %w", err)
	}

	t.logger.Info("user unregistered", "discord_id", discordID, "handle", user.Handle)
	t.notifier.Publish(ctx, domain.Event{
		Type:      domain.EventUnregister,
		DiscordID: discordID,
		Handle:    user.Handle,
		Text:      fmt.Sprintf("Unregistered **%s**", user.Handle),
	})
	t.refreshUserGauge(ctx)
	return nil
}

// SetAnnouncementChannel stores the channel announcements go to
func (t *Tracker) SetAnnouncementChannel(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("%w: channel id is required", domain.ErrInvalidRequest)
	}
	return t.repo.PutSetting(ctx, store.SettingAnnouncementChannel, channelID)
}

func (t *Tracker) refreshUserGauge(ctx context.Context) {
	users, err := t.repo.ListUsers(ctx)
	if err == nil {
		metrics.UsersRegistered.Set(float64(len(users)))
	}
}

// forEachUser runs fn for every registered user with bounded parallelism,
// holding the user's lock. A failing user is logged and skipped
func (t *Tracker) forEachUser(ctx context.Context, op string, fn func(ctx context.Context, i int, user domain.User) error) ([]domain.User, error) {
	users, err := t.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	metrics.UsersRegistered.Set(float64(len(users)))

	var g errgroup.Group
	if t.config.Concurrency > 0 {
		g.SetLimit(t.config.Concurrency)
	}
	for i, u := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			unlock := t.locks.Lock(u.DiscordID)
			defer unlock()

			if err := fn(ctx, i, u); err != nil {
				if domain.IsNoData(err) {
					t.logger.Debug("skipping user without data", "operation", op, "discord_id", u.DiscordID)
					return nil
				}
				metrics.UserErrors.WithLabelValues(op).Inc()
				t.logger.Error("user operation failed",
					"operation", op,
					"discord_id", u.DiscordID,
					"handle", u.Handle,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return users, ctx.Err()
}

// PollSubmissions announces new accepted submissions for every user
func (t *Tracker) PollSubmissions(ctx context.Context) error {
	_, err := t.forEachUser(ctx, "poll_submissions", func(ctx context.Context, _ int, u domain.User) error {
		_, err := t.announcer.Check(ctx, u)
		return err
	})
	return err
}

// EvaluateStreaks applies today's streak transition to every user and
// posts the result for those whose state changed
func (t *Tracker) EvaluateStreaks(ctx context.Context) error {
	return t.EvaluateStreaksOn(ctx, t.policy.CurrentDate())
}

// EvaluateStreaksOn is EvaluateStreaks for an explicit day
func (t *Tracker) EvaluateStreaksOn(ctx context.Context, day domain.Date) error {
	var (
		mu      sync.Mutex
		results = make(map[int]streak.Result)
	)
	users, err := t.forEachUser(ctx, "evaluate_streak", func(ctx context.Context, i int, u domain.User) error {
		res, err := t.engine.Evaluate(ctx, u, day)
		if err != nil {
			return err
		}
		metrics.StreakEvaluations.WithLabelValues(string(res.Outcome)).Inc()
		mu.Lock()
		results[i] = res
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	for i, u := range users {
		res, ok := results[i]
		if !ok || !res.Changed() {
			continue
		}
		ev := domain.Event{
			Type:      domain.EventStreak,
			DiscordID: u.DiscordID,
			Handle:    u.Handle,
			Text:      formatStreak(u.DiscordID, res.State),
			Data:      res.State,
		}
		if err := t.notifier.Announce(ctx, ev); err != nil {
			t.logger.Error("posting streak failed", "discord_id", u.DiscordID, "error", err)
		}
	}
	return nil
}

type dayStatus int

const (
	statusUnknown dayStatus = iota
	statusSolved
	statusMissed
)

// statuses reports for every user whether they solved a new problem today
func (t *Tracker) statuses(ctx context.Context, op string) ([]domain.User, map[int]dayStatus, error) {
	var (
		mu  sync.Mutex
		out = make(map[int]dayStatus)
	)
	users, err := t.forEachUser(ctx, op, func(ctx context.Context, i int, u domain.User) error {
		solves, err := t.ledger.TodaysNewSolves(ctx, u)
		if err != nil {
			return err
		}
		st := statusMissed
		if len(solves) > 0 {
			st = statusSolved
		}
		mu.Lock()
		out[i] = st
		mu.Unlock()
		return nil
	})
	return users, out, err
}

// DailyStatusCheck posts whether each user is safe today
func (t *Tracker) DailyStatusCheck(ctx context.Context) error {
	users, statuses, err := t.statuses(ctx, "daily_status")
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	if err := t.notifier.Announce(ctx, domain.Event{Type: domain.EventDaily, Text: dailyHeaderText}); err != nil {
		return fmt.Errorf("posting daily status: %w", err)
	}
	for i, u := range users {
		var text string
		switch statuses[i] {
		case statusSolved:
			text = formatDailyStatus(u.DiscordID, true)
		case statusMissed:
			text = formatDailyStatus(u.DiscordID, false)
		default:
			text = formatNoData(u.DiscordID)
		}
		ev := domain.Event{Type: domain.EventDaily, DiscordID: u.DiscordID, Handle: u.Handle, Text: text}
		if err := t.notifier.Announce(ctx, ev); err != nil {
			t.logger.Error("posting daily status failed", "discord_id", u.DiscordID, "error", err)
		}
	}
	return nil
}

// Nudge sends a reminder DM to every user with no new solve today. Users
// whose data could not be read are left alone
func (t *Tracker) Nudge(ctx context.Context) error {
	users, statuses, err := t.statuses(ctx, "nudge")
	if err != nil {
		return err
	}
	for i, u := range users {
		if statuses[i] != statusMissed {
			continue
		}
		ev := domain.Event{Type: domain.EventNudge, DiscordID: u.DiscordID, Handle: u.Handle, Text: nudgeText}
		if err := t.notifier.Direct(ctx, u.DiscordID, ev); err != nil {
			t.logger.Warn("could not send nudge", "discord_id", u.DiscordID, "error", err)
		}
	}
	return nil
}

// SyncWeekly brings every user's weekly record up to date
func (t *Tracker) SyncWeekly(ctx context.Context) error {
	today := t.policy.CurrentDate()
	ws := t.policy.WeekStart(today)
	_, err := t.forEachUser(ctx, "weekly_sync", func(ctx context.Context, _ int, u domain.User) error {
		_, err := t.weekly.Sync(ctx, u, ws, today)
		return err
	})
	return err
}

// WeeklyRecap posts the streak leaderboard and this week's problem counts
func (t *Tracker) WeeklyRecap(ctx context.Context) error {
	if _, err := t.weekly.Rollover(ctx); err != nil {
		return err
	}
	streaks, err := t.Streakboard(ctx, t.config.LeaderboardTop)
	if err != nil {
		return err
	}
	week, err := t.weekly.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if len(week) > t.config.LeaderboardTop && t.config.LeaderboardTop > 0 {
		week = week[:t.config.LeaderboardTop]
	}

	ev := domain.Event{Type: domain.EventWeekly, Text: formatWeeklyRecap(streaks, week), Data: week}
	return t.notifier.Announce(ctx, ev)
}

// postWeekClosed receives each finished week from the aggregator
func (t *Tracker) postWeekClosed(ctx context.Context, doc domain.WeeklyDocument) error {
	entries := weekly.Rank(doc.Data, doc.WeekStart)
	if len(entries) > t.config.LeaderboardTop && t.config.LeaderboardTop > 0 {
		entries = entries[:t.config.LeaderboardTop]
	}
	ev := domain.Event{
		Type:      domain.EventWeekly,
		Text:      formatWeekClosed(doc, entries),
		Data:      doc,
		Timestamp: time.Now().UTC(),
	}
	return t.notifier.Announce(ctx, ev)
}
