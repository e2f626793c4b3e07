// Package weekly keeps per-user counts for the running week and rolls them
// over at the week boundary
package weekly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/ledger"
	"github.com/leettogether/leetstreak/internal/metrics"
	"github.com/leettogether/leetstreak/internal/timepolicy"
)

// Snapshotter reads a user's solve ledger
type Snapshotter interface {
	Snapshot(ctx context.Context, user domain.User) (*ledger.Snapshot, error)
}

// Metadata looks up problem difficulty and number
type Metadata interface {
	FetchProblem(ctx context.Context, slug string) (domain.Problem, error)
}

// Store persists weekly state
type Store interface {
	GetWeekly(ctx context.Context, discordID string) (domain.WeeklyRecord, bool, error)
	PutWeekly(ctx context.Context, discordID string, rec domain.WeeklyRecord) error
	ListWeekly(ctx context.Context) (map[string]domain.WeeklyRecord, error)
	ClearWeekly(ctx context.Context) error
	ClearAnnouncements(ctx context.Context) error
	GetWeekStart(ctx context.Context) (domain.Date, bool, error)
	PutWeekStart(ctx context.Context, d domain.Date) error
}

// RecapFunc receives the finished week before it is cleared
type RecapFunc func(ctx context.Context, doc domain.WeeklyDocument) error

// Submission is a counted submission event
type Submission struct {
	Problem domain.WeeklyProblem
	Key     string
	IsNew   bool
}

// Entry is one row of the weekly leaderboard
type Entry struct {
	Rank      int                 `json:"rank"`
	DiscordID string              `json:"discord_id"`
	Record    domain.WeeklyRecord `json:"record"`
}

// Aggregator maintains WeeklyRecords
type Aggregator struct {
	ledger Snapshotter
	meta   Metadata
	store  Store
	policy *timepolicy.Policy
	logger *slog.Logger

	mu    sync.Mutex
	recap RecapFunc
}

// NewAggregator creates an Aggregator
func NewAggregator(l Snapshotter, meta Metadata, s Store, policy *timepolicy.Policy, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		ledger: l,
		meta:   meta,
		store:  s,
		policy: policy,
		logger: logger,
	}
}

// SetRecap installs the function that receives each finished week
func (a *Aggregator) SetRecap(fn RecapFunc) {
	a.mu.Lock()
	a.recap = fn
	a.mu.Unlock()
}

// Rollover archives and clears the stored week if it is older than the
// current one. It reports whether a rollover happened. The first call on
// an empty store only records the current week
func (a *Aggregator) Rollover(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current := a.policy.CurrentWeekStart()
	stored, ok, err := a.store.GetWeekStart(ctx)
	if err != nil {
		return false, fmt.Errorf("loading week start: %w", err)
	}
	if ok && !stored.Before(current) {
		return false, nil
	}
	if !ok {
		if err := a.store.PutWeekStart(ctx, current); err != nil {
			return false, fmt.Errorf("saving week start: %w", err)
		}
		return false, nil
	}

	records, err := a.store.ListWeekly(ctx)
	if err != nil {
		return false, fmt.Errorf("loading finished week: %w", err)
	}
	if a.recap != nil {
		doc := domain.WeeklyDocument{WeekStart: stored, Data: records}
		if err := a.recap(ctx, doc); err != nil {
			a.logger.Error("weekly recap failed", "week_start", stored.String(), "error", err)
		}
	}
	a.logger.Info("rolling over week",
		"previous_week", stored.String(),
		"current_week", current.String(),
		"users", len(records),
	)

	if err := a.store.ClearWeekly(ctx); err != nil {
		return false, err
	}
	if err := a.store.ClearAnnouncements(ctx); err != nil {
		return false, err
	}
	if err := a.store.PutWeekStart(ctx, current); err != nil {
		return false, fmt.Errorf("saving week start: %w", err)
	}
	metrics.WeeklyRollovers.Inc()
	return true, nil
}

// load returns the user's record for week ws, starting a fresh one when
// none exists or the stored one belongs to another week
func (a *Aggregator) load(ctx context.Context, discordID string, ws domain.Date) (domain.WeeklyRecord, error) {
	rec, ok, err := a.store.GetWeekly(ctx, discordID)
	if err != nil {
		return domain.WeeklyRecord{}, err
	}
	if !ok || rec.WeekStart != ws {
		return domain.NewWeeklyRecord(ws), nil
	}
	return rec, nil
}

// Sync adds every problem first solved within [weekStart, today] that the
// record does not hold yet. It returns the number of problems added
func (a *Aggregator) Sync(ctx context.Context, user domain.User, weekStart, today domain.Date) (int, error) {
	if _, err := a.Rollover(ctx); err != nil {
		return 0, err
	}

	snap, err := a.ledger.Snapshot(ctx, user)
	if err != nil {
		return 0, err
	}

	rec, err := a.load(ctx, user.DiscordID, weekStart)
	if err != nil {
		return 0, err
	}

	titles := make(map[string]string)
	for _, s := range snap.Submissions() {
		titles[s.ProblemID] = s.Title
	}

	type first struct {
		id   string
		date domain.Date
	}
	var window []first
	for id, d := range snap.EarliestDates() {
		if d.Within(weekStart, today) && !rec.Has(id) {
			window = append(window, first{id, d})
		}
	}
	sort.Slice(window, func(i, j int) bool {
		if window[i].date != window[j].date {
			return window[i].date.Before(window[j].date)
		}
		return window[i].id < window[j].id
	})

	earliest := snap.Record().Earliest
	for _, f := range window {
		p := a.describe(ctx, f.id, titles[f.id])
		rec.AddProblem(p)
		rec.Submissions++
		rec.MarkCounted(domain.SubmissionKey(f.id, earliest[f.id]))
	}

	if len(window) == 0 {
		return 0, nil
	}
	if err := a.store.PutWeekly(ctx, user.DiscordID, rec); err != nil {
		return 0, fmt.Errorf("saving weekly record: %w", err)
	}
	a.logger.Debug("weekly sync added problems", "discord_id", user.DiscordID, "added", len(window))
	return len(window), nil
}

// RecordSubmission counts one submission event. Submissions always count;
// the unique and difficulty counters move only for a new problem not yet
// in the record. Replaying an event with the same key changes nothing
func (a *Aggregator) RecordSubmission(ctx context.Context, discordID string, sub Submission) error {
	if _, err := a.Rollover(ctx); err != nil {
		return err
	}

	rec, err := a.load(ctx, discordID, a.policy.CurrentWeekStart())
	if err != nil {
		return err
	}
	if sub.Key != "" && rec.HasCounted(sub.Key) {
		return nil
	}

	rec.Submissions++
	if sub.IsNew {
		rec.AddProblem(sub.Problem)
	}
	if sub.Key != "" {
		rec.MarkCounted(sub.Key)
	}

	if err := a.store.PutWeekly(ctx, discordID, rec); err != nil {
		return fmt.Errorf("saving weekly record: %w", err)
	}
	return nil
}

// describe returns the weekly entry for a problem. Lookup failures tag the
// problem Unknown rather than skipping it
func (a *Aggregator) describe(ctx context.Context, slug, title string) domain.WeeklyProblem {
	p := domain.WeeklyProblem{Slug: slug, Title: title, QuestionNumber: "?", Difficulty: domain.DifficultyUnknown}
	if a.meta == nil {
		return p
	}
	meta, err := a.meta.FetchProblem(ctx, slug)
	if err != nil {
		a.logger.Warn("problem metadata unavailable", "slug", slug, "error", err)
		return p
	}
	p.Difficulty = meta.Difficulty
	if meta.QuestionNumber != "" {
		p.QuestionNumber = meta.QuestionNumber
	}
	if p.Title == "" {
		p.Title = meta.Title
	}
	return p
}

// Describe is describe for callers outside the package
func (a *Aggregator) Describe(ctx context.Context, slug, title string) domain.WeeklyProblem {
	return a.describe(ctx, slug, title)
}

// Leaderboard ranks the current week by unique problems, then submissions
func (a *Aggregator) Leaderboard(ctx context.Context) ([]Entry, error) {
	records, err := a.store.ListWeekly(ctx)
	if err != nil {
		return nil, err
	}
	current := a.policy.CurrentWeekStart()
	return Rank(records, current), nil
}

// Rank orders the records of week ws
func Rank(records map[string]domain.WeeklyRecord, ws domain.Date) []Entry {
	entries := make([]Entry, 0, len(records))
	for id, rec := range records {
		if rec.WeekStart != ws {
			continue
		}
		entries = append(entries, Entry{DiscordID: id, Record: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Record, entries[j].Record
		if a.UniqueProblems != b.UniqueProblems {
			return a.UniqueProblems > b.UniqueProblems
		}
		if a.Submissions != b.Submissions {
			return a.Submissions > b.Submissions
		}
		return entries[i].DiscordID < entries[j].DiscordID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
