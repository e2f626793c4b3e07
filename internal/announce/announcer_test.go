package announce

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/ledger"
	"github.com/leettogether/leetstreak/internal/store"
	"github.com/leettogether/leetstreak/internal/timepolicy"
	"github.com/leettogether/leetstreak/internal/weekly"
)

type fakeSource struct {
	subs []domain.Submission
	err  error
}

func (f *fakeSource) FetchAcceptedSubmissions(context.Context, string, int) ([]domain.Submission, error) {
	return f.subs, f.err
}

type fakeMeta map[string]domain.Problem

func (f fakeMeta) FetchProblem(_ context.Context, slug string) (domain.Problem, error) {
	p, ok := f[slug]
	if !ok {
		return domain.Problem{}, domain.ErrNotFound
	}
	return p, nil
}

type fakePoster struct {
	events []domain.Event
	err    error
}

func (p *fakePoster) Announce(_ context.Context, ev domain.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type harness struct {
	now    time.Time
	policy *timepolicy.Policy
	source *fakeSource
	poster *fakePoster
	repo   *store.Repository
	agg    *weekly.Aggregator
	ann    *Announcer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base, err := timepolicy.New("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{source: &fakeSource{}, poster: &fakePoster{}}
	h.repo = store.NewRepository(store.NewMemory(), slog.Default())
	h.policy = base.WithClock(func() time.Time { return h.now })
	meta := fakeMeta{
		"trapping-rain-water": {Slug: "trapping-rain-water", Title: "Trapping Rain Water", QuestionNumber: "42", Difficulty: domain.DifficultyHard},
		"two-sum":             {Slug: "two-sum", Title: "Two Sum", QuestionNumber: "1", Difficulty: domain.DifficultyEasy},
	}
	l := ledger.New(h.source, h.repo, h.policy, 500, slog.Default())
	h.agg = weekly.NewAggregator(l, meta, h.repo, h.policy, slog.Default())
	h.ann = NewAnnouncer(l, h.repo, h.agg, h.poster, h.policy, slog.Default())
	return h
}

// at returns the instant hour:00 on day in the policy zone
func (h *harness) at(day string, hour int) time.Time {
	return h.policy.StartOf(domain.MustParseDate(day)).Add(time.Duration(hour) * time.Hour)
}

func (h *harness) solve(slug, title string, at time.Time) {
	h.source.subs = append(h.source.subs, domain.Submission{ProblemID: slug, Title: title, Timestamp: at, Status: domain.StatusAccepted})
}

var dave = domain.User{DiscordID: "55", Handle: "dave"}

func TestCheckAnnouncesOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.now = h.at("2025-01-08", 20)
	h.solve("two-sum", "Two Sum", h.at("2025-01-08", 9))
	h.solve("unknown-slug", "Mystery", h.at("2025-01-08", 10))

	res, err := h.ann.Check(ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, Result{Logged: 2, Announced: 2}, res)
	require.Len(t, h.poster.events, 1)
	assert.Equal(t, "🔥 <@55> solved 2 problem(s)!\n🟢 #1. Two Sum (Easy)\n- Mystery", h.poster.events[0].Text)
	assert.Equal(t, domain.EventSolve, h.poster.events[0].Type)

	res, err = h.ann.Check(ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Len(t, h.poster.events, 1)

	rec, ok, err := h.repo.GetWeekly(ctx, dave.DiscordID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.UniqueProblems)
	assert.Equal(t, 2, rec.Submissions)
	assert.Equal(t, 1, rec.Easy)
}

func TestCheckSkipsSolvesBeforeRegistration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.now = h.at("2025-01-08", 20)
	h.solve("two-sum", "Two Sum", h.at("2025-01-07", 9))

	user := dave
	user.RegisteredAt = h.at("2025-01-08", 12)

	res, err := h.ann.Check(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Logged)
	assert.Equal(t, 0, res.Announced)
	assert.Empty(t, h.poster.events)

	log, err := h.repo.GetAnnouncements(ctx, user.DiscordID)
	require.NoError(t, err)
	require.Len(t, log.Entries, 1)
	assert.True(t, log.Entries[0].Announced)
}

func TestCheckPosterFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.now = h.at("2025-01-08", 20)
	h.solve("two-sum", "Two Sum", h.at("2025-01-08", 9))
	h.poster.err = errors.New("discord down")

	_, err := h.ann.Check(ctx, dave)
	require.Error(t, err)

	h.poster.err = nil
	res, err := h.ann.Check(ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Announced)
}

func TestCheckSourceFailure(t *testing.T) {
	h := newHarness(t)
	h.now = h.at("2025-01-08", 20)
	h.source.err = errors.New("timeout")

	_, err := h.ann.Check(context.Background(), dave)
	assert.True(t, domain.IsNoData(err))
}

// Monday the user solves #42; Tuesday they resubmit it. The weekly record
// ends with one unique problem and two submissions
func TestCheckResubmissionScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.now = h.at("2025-01-06", 18)
	h.solve("trapping-rain-water", "Trapping Rain Water", h.at("2025-01-06", 9))
	_, err := h.ann.Check(ctx, dave)
	require.NoError(t, err)

	h.now = h.at("2025-01-07", 18)
	h.solve("trapping-rain-water", "Trapping Rain Water", h.at("2025-01-07", 9))
	_, err = h.ann.Check(ctx, dave)
	require.NoError(t, err)

	today := h.policy.CurrentDate()
	_, err = h.agg.Sync(ctx, dave, h.policy.WeekStart(today), today)
	require.NoError(t, err)

	rec, ok, err := h.repo.GetWeekly(ctx, dave.DiscordID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.UniqueProblems)
	assert.Equal(t, 2, rec.Submissions)
	assert.Equal(t, 1, rec.Hard)

	log, err := h.repo.GetAnnouncements(ctx, dave.DiscordID)
	require.NoError(t, err)
	require.Len(t, log.Entries, 2)
	assert.False(t, log.Entries[0].IsResubmit)
	assert.True(t, log.Entries[1].IsResubmit)
}

func TestFormatProblem(t *testing.T) {
	tests := []struct {
		name string
		p    domain.WeeklyProblem
		want string
	}{
		{"medium", domain.WeeklyProblem{Title: "LRU Cache", QuestionNumber: "146", Difficulty: domain.DifficultyMedium}, "🟡 #146. LRU Cache (Medium)"},
		{"hard", domain.WeeklyProblem{Title: "Median", QuestionNumber: "4", Difficulty: domain.DifficultyHard}, "🔴 #4. Median (Hard)"},
		{"no metadata", domain.WeeklyProblem{Title: "Mystery", QuestionNumber: "?", Difficulty: domain.DifficultyUnknown}, "- Mystery"},
		{"number only", domain.WeeklyProblem{Slug: "x", QuestionNumber: "9", Difficulty: domain.DifficultyUnknown}, "⚪ #9. x (Unknown)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProblem(tt.p))
		})
	}
}
