package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/weekly"
)

// defaultAttemptLimit matches the feed's own page size
const defaultAttemptLimit = 20

// Profile is a user's tracked state
type Profile struct {
	User   domain.User          `json:"user"`
	Streak domain.StreakState   `json:"streak"`
	Weekly *domain.WeeklyRecord `json:"weekly,omitempty"`
	Stats  *domain.UserStats    `json:"stats,omitempty"`
}

// StreakEntry is one row of the streak leaderboard
type StreakEntry struct {
	Rank      int                `json:"rank"`
	DiscordID string             `json:"discord_id"`
	Handle    string             `json:"leetcode_username"`
	State     domain.StreakState `json:"state"`
}

// SolveView is a problem solved today
type SolveView struct {
	Problem   domain.WeeklyProblem `json:"problem"`
	Timestamp time.Time            `json:"timestamp"`
}

// TodayReport lists a user's new solves for the current day
type TodayReport struct {
	DiscordID string      `json:"discord_id"`
	Date      domain.Date `json:"date"`
	Solves    []SolveView `json:"solves"`
}

// ProgressEntry is one user's count of new solves today
type ProgressEntry struct {
	Rank      int         `json:"rank"`
	DiscordID string      `json:"discord_id"`
	Handle    string      `json:"leetcode_username"`
	Count     int         `json:"count"`
	Solves    []SolveView `json:"solves"`
	NoData    bool        `json:"no_data,omitempty"`
}

// Users lists registered users
func (t *Tracker) Users(ctx context.Context) ([]domain.User, error) {
	return t.repo.ListUsers(ctx)
}

// StatsSource reports a user's all-time solved counts
type StatsSource interface {
	FetchUserStats(ctx context.Context, handle string) (domain.UserStats, error)
}

// Profile returns the user's streak, current weekly record and, when the
// source can be read, their all-time stats
func (t *Tracker) Profile(ctx context.Context, discordID string) (*Profile, error) {
	user, err := t.repo.GetUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	st, err := t.repo.GetStreak(ctx, discordID)
	if err != nil {
		return nil, err
	}
	p := &Profile{User: user, Streak: st}

	rec, ok, err := t.repo.GetWeekly(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if ok && rec.WeekStart == t.policy.CurrentWeekStart() {
		p.Weekly = &rec
	}

	if src, ok := t.source.(StatsSource); ok {
		stats, err := src.FetchUserStats(ctx, user.Handle)
		if err != nil {
			t.logger.Warn("profile stats unavailable",
				"discord_id", discordID,
				"handle", user.Handle,
				"error", err,
			)
		} else {
			p.Stats = &stats
		}
	}
	return p, nil
}

// Streakboard ranks registered users by current streak, then longest;
// limit <= 0 returns everyone
func (t *Tracker) Streakboard(ctx context.Context, limit int) ([]StreakEntry, error) {
	users, err := t.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	states, err := t.repo.ListStreaks(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]StreakEntry, 0, len(users))
	for _, u := range users {
		st := states[u.DiscordID]
		st.Normalize()
		entries = append(entries, StreakEntry{DiscordID: u.DiscordID, Handle: u.Handle, State: st})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].State, entries[j].State
		if a.CurrentStreak != b.CurrentStreak {
			return a.CurrentStreak > b.CurrentStreak
		}
		return a.LongestStreak > b.LongestStreak
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// WeeklyLeaderboard ranks the current week by unique problems
func (t *Tracker) WeeklyLeaderboard(ctx context.Context) ([]weekly.Entry, error) {
	if _, err := t.weekly.Rollover(ctx); err != nil {
		return nil, err
	}
	return t.weekly.Leaderboard(ctx)
}

// Today returns the user's new solves for the current day. It returns
// domain.ErrNoData when LeetCode cannot be read
func (t *Tracker) Today(ctx context.Context, discordID string) (*TodayReport, error) {
	user, err := t.repo.GetUser(ctx, discordID)
	if err != nil {
		return nil, err
	}

	unlock := t.locks.Lock(discordID)
	defer unlock()

	views, err := t.todayViews(ctx, user)
	if err != nil {
		return nil, err
	}
	return &TodayReport{DiscordID: discordID, Date: t.policy.CurrentDate(), Solves: views}, nil
}

func (t *Tracker) todayViews(ctx context.Context, user domain.User) ([]SolveView, error) {
	solves, err := t.ledger.TodaysNewSolves(ctx, user)
	if err != nil {
		return nil, err
	}
	views := make([]SolveView, 0, len(solves))
	for _, s := range solves {
		views = append(views, SolveView{
			Problem:   t.weekly.Describe(ctx, s.ProblemID, s.Title),
			Timestamp: s.Timestamp,
		})
	}
	return views, nil
}

// Progress ranks every user by the number of new problems solved today
func (t *Tracker) Progress(ctx context.Context) ([]ProgressEntry, error) {
	var (
		mu  sync.Mutex
		got = make(map[int][]SolveView)
	)
	users, err := t.forEachUser(ctx, "progress", func(ctx context.Context, i int, u domain.User) error {
		views, err := t.todayViews(ctx, u)
		if err != nil {
			return err
		}
		mu.Lock()
		got[i] = views
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]ProgressEntry, 0, len(users))
	for i, u := range users {
		views, ok := got[i]
		entries = append(entries, ProgressEntry{
			DiscordID: u.DiscordID,
			Handle:    u.Handle,
			Count:     len(views),
			Solves:    views,
			NoData:    !ok,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// AttemptSource lists recent submissions of any verdict
type AttemptSource interface {
	FetchRecentSubmissions(ctx context.Context, handle string, limit int) ([]domain.Submission, error)
}

// Attempts returns the user's latest submissions, accepted or not, newest
// first. It returns domain.ErrNoData when the feed cannot be read
func (t *Tracker) Attempts(ctx context.Context, discordID string, limit int) ([]domain.Submission, error) {
	user, err := t.repo.GetUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	src, ok := t.source.(AttemptSource)
	if !ok {
		return nil, fmt.Errorf("%w: attempt history not available", domain.ErrNoData)
	}
	if limit <= 0 {
		limit = defaultAttemptLimit
	}

	subs, err := src.FetchRecentSubmissions(ctx, user.Handle, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNoData, err)
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Timestamp.After(subs[j].Timestamp) })
	return subs, nil
}
