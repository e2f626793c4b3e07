// Package announce posts each user's new accepted submissions to the
// announcement channel exactly once and feeds them to the weekly counts
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/ledger"
	"github.com/leettogether/leetstreak/internal/metrics"
	"github.com/leettogether/leetstreak/internal/timepolicy"
	"github.com/leettogether/leetstreak/internal/weekly"
)

// Snapshotter reads a user's solve ledger
type Snapshotter interface {
	Snapshot(ctx context.Context, user domain.User) (*ledger.Snapshot, error)
}

// Store persists announcement logs
type Store interface {
	GetAnnouncements(ctx context.Context, discordID string) (domain.AnnouncementLog, error)
	PutAnnouncements(ctx context.Context, discordID string, l domain.AnnouncementLog) error
}

// Weekly receives announced submissions
type Weekly interface {
	Rollover(ctx context.Context) (bool, error)
	Describe(ctx context.Context, slug, title string) domain.WeeklyProblem
	RecordSubmission(ctx context.Context, discordID string, sub weekly.Submission) error
}

// Poster delivers an announcement
type Poster interface {
	Announce(ctx context.Context, ev domain.Event) error
}

// Result summarizes one check of a user
type Result struct {
	Logged    int `json:"logged"`
	Announced int `json:"announced"`
}

// Announcer checks users for unannounced submissions
type Announcer struct {
	ledger Snapshotter
	store  Store
	weekly Weekly
	poster Poster
	policy *timepolicy.Policy
	logger *slog.Logger
}

// NewAnnouncer creates an Announcer
func NewAnnouncer(l Snapshotter, s Store, w Weekly, p Poster, policy *timepolicy.Policy, logger *slog.Logger) *Announcer {
	return &Announcer{
		ledger: l,
		store:  s,
		weekly: w,
		poster: p,
		policy: policy,
		logger: logger,
	}
}

// Scan appends to log every accepted submission not logged yet;
// submissions made before the user registered are logged as already
// announced
func Scan(log *domain.AnnouncementLog, user domain.User, subs []ledger.Classified) int {
	added := 0
	for _, c := range subs {
		if c.Kind == ledger.NotAccepted {
			continue
		}
		e := domain.AnnouncementEntry{
			ProblemID:  c.ProblemID,
			Title:      c.Title,
			Timestamp:  c.Timestamp,
			IsResubmit: c.Kind != ledger.NewProblem,
			Announced:  !user.RegisteredAt.IsZero() && c.Timestamp.Before(user.RegisteredAt),
		}
		if log.Append(e) {
			added++
		}
	}
	return added
}

// Check logs the user's submissions from the current week and announces
// the pending ones in a single message. Announced entries are marked
// before they are counted into the weekly record, so a failure between
// the two steps loses a count rather than doubling one
func (a *Announcer) Check(ctx context.Context, user domain.User) (Result, error) {
	if _, err := a.weekly.Rollover(ctx); err != nil {
		return Result{}, err
	}

	snap, err := a.ledger.Snapshot(ctx, user)
	if err != nil {
		return Result{}, err
	}

	today := a.policy.CurrentDate()
	log, err := a.store.GetAnnouncements(ctx, user.DiscordID)
	if err != nil {
		return Result{}, fmt.Errorf("loading announcements: %w", err)
	}

	res := Result{Logged: Scan(&log, user, snap.Classify(a.policy.WeekStart(today), today))}
	pending := log.Pending()
	if len(pending) == 0 {
		if res.Logged > 0 {
			if err := a.store.PutAnnouncements(ctx, user.DiscordID, log); err != nil {
				return res, fmt.Errorf("saving announcements: %w", err)
			}
		}
		return res, nil
	}

	problems := make([]domain.WeeklyProblem, len(pending))
	keys := make([]string, len(pending))
	for i, e := range pending {
		problems[i] = a.weekly.Describe(ctx, e.ProblemID, e.Title)
		keys[i] = e.Key()
	}

	ev := domain.Event{
		Type:      domain.EventSolve,
		DiscordID: user.DiscordID,
		Handle:    user.Handle,
		Text:      FormatSolves(user.DiscordID, problems),
		Data:      problems,
	}
	if err := a.poster.Announce(ctx, ev); err != nil {
		return res, fmt.Errorf("announcing solves: %w", err)
	}

	log.MarkAnnounced(keys...)
	if err := a.store.PutAnnouncements(ctx, user.DiscordID, log); err != nil {
		return res, fmt.Errorf("saving announcements: %w", err)
	}
	res.Announced = len(pending)

	for i, e := range pending {
		kind := "new"
		if e.IsResubmit {
			kind = "resubmission"
		}
		metrics.SolvesAnnounced.WithLabelValues(kind).Inc()

		sub := weekly.Submission{Problem: problems[i], Key: keys[i], IsNew: !e.IsResubmit}
		if err := a.weekly.RecordSubmission(ctx, user.DiscordID, sub); err != nil {
			a.logger.Error("weekly count failed",
				"discord_id", user.DiscordID,
				"problem", e.ProblemID,
				"error", err,
			)
		}
	}

	a.logger.Info("announced solves", "discord_id", user.DiscordID, "count", res.Announced)
	return res, nil
}

// FormatSolves renders the announcement for a batch of solves
func FormatSolves(discordID string, problems []domain.WeeklyProblem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 <@%s> solved %d problem(s)!", discordID, len(problems))
	for _, p := range problems {
		b.WriteString("\n")
		b.WriteString(FormatProblem(p))
	}
	return b.String()
}

// FormatProblem renders one problem line. Problems whose metadata could
// not be loaded get a plain bullet
func FormatProblem(p domain.WeeklyProblem) string {
	title := p.Title
	if title == "" {
		title = p.Slug
	}
	if p.Difficulty == domain.DifficultyUnknown && (p.QuestionNumber == "" || p.QuestionNumber == "?") {
		return "- " + title
	}
	no := p.QuestionNumber
	if no == "" {
		no = "?"
	}
	return fmt.Sprintf("%s #%s. %s (%s)", DifficultyEmoji(p.Difficulty), no, title, p.Difficulty)
}

// DifficultyEmoji returns the colored marker for a difficulty
func DifficultyEmoji(d domain.Difficulty) string {
	switch d {
	case domain.DifficultyEasy:
		return "🟢"
	case domain.DifficultyMedium:
		return "🟡"
	case domain.DifficultyHard:
		return "🔴"
	default:
		return "⚪"
	}
}
