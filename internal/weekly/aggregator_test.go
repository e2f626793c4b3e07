package weekly

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
)

type fakeSource struct {
	subs []domain.Submission
	err  error
}

func (f *fakeSource) FetchAcceptedSubmissions(context.Context, string, int) ([]domain.Submission, error) {
	return f.subs, f.err
}

type fakeMeta struct {
	problems map[string]domain.Problem
	calls    int
}

func (f *fakeMeta) FetchProblem(_ context.Context, slug string) (domain.Problem, error) {
	f.calls++
	p, ok := f.problems[slug]
	if !ok {
		return domain.Problem{}, domain.ErrSourceFailure
	}
	return p, nil
}

type harness struct {
	now    time.Time
	policy *timepolicy.Policy
	source *fakeSource
	meta   *fakeMeta
	repo   *store.Repository
	agg    *Aggregator
}

var carol = domain.User{DiscordID: "9", Handle: "carol"}

// newHarness builds an aggregator whose clock reads the given local time
func newHarness(t *testing.T, day string, hour int) *harness {
	t.Helper()
	base, err := timepolicy.New("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{
		source: &fakeSource{},
		meta: &fakeMeta{problems: map[string]domain.Problem{
			"two-sum":  {Slug: "two-sum", Title: "Two Sum", QuestionNumber: "1", Difficulty: domain.DifficultyEasy},
			"lru":      {Slug: "lru", Title: "LRU Cache", QuestionNumber: "146", Difficulty: domain.DifficultyMedium},
			"median":   {Slug: "median", Title: "Median", QuestionNumber: "4", Difficulty: domain.DifficultyHard},
			"trapping": {Slug: "trapping", QuestionNumber: "42", Difficulty: domain.DifficultyHard},
		}},
		repo: store.NewRepository(store.NewMemory(), slog.Default()),
	}
	h.setNow(base, day, hour)
	h.policy = base.WithClock(func() time.Time { return h.now })
	l := ledger.New(h.source, h.repo, h.policy, 500, slog.Default())
	h.agg = NewAggregator(l, h.meta, h.repo, h.policy, slog.Default())
	return h
}

func (h *harness) setNow(p *timepolicy.Policy, day string, hour int) {
	h.now = p.StartOf(domain.MustParseDate(day)).Add(time.Duration(hour) * time.Hour)
}

func (h *harness) solve(id, day string, hour int) {
	ts := h.policy.StartOf(domain.MustParseDate(day)).Add(time.Duration(hour) * time.Hour)
	h.source.subs = append(h.source.subs, domain.Submission{ProblemID: id, Title: id, Timestamp: ts, Status: domain.StatusAccepted})
}

func (h *harness) record(t *testing.T) domain.WeeklyRecord {
	t.Helper()
	rec, ok, err := h.repo.GetWeekly(context.Background(), carol.DiscordID)
	require.NoError(t, err)
	require.True(t, ok)
	return rec
}

func (h *harness) sync(t *testing.T) int {
	t.Helper()
	today := h.policy.CurrentDate()
	n, err := h.agg.Sync(context.Background(), carol, h.policy.WeekStart(today), today)
	require.NoError(t, err)
	return n
}

func TestSyncIsIdempotent(t *testing.T) {
	h := newHarness(t, "2025-01-08", 20) // Wednesday
	h.solve("two-sum", "2025-01-06", 9)
	h.solve("lru", "2025-01-07", 9)
	h.solve("median", "2025-01-08", 9)
	h.solve("two-sum", "2025-01-08", 10)
	h.solve("older", "2025-01-03", 9) // previous week

	assert.Equal(t, 3, h.sync(t))
	first := h.record(t)
	assert.Equal(t, 3, first.UniqueProblems)
	assert.Equal(t, 3, first.Submissions)
	assert.Equal(t, 1, first.Easy)
	assert.Equal(t, 1, first.Medium)
	assert.Equal(t, 1, first.Hard)

	assert.Equal(t, 0, h.sync(t))
	assert.Equal(t, first, h.record(t))
}

func TestSyncMetadataFailureStillCounts(t *testing.T) {
	h := newHarness(t, "2025-01-08", 20)
	h.solve("mystery", "2025-01-08", 9)

	h.sync(t)
	rec := h.record(t)
	assert.Equal(t, 1, rec.UniqueProblems)
	require.Len(t, rec.Problems, 1)
	assert.Equal(t, domain.DifficultyUnknown, rec.Problems[0].Difficulty)
	assert.Equal(t, 0, rec.Easy+rec.Medium+rec.Hard)
}

func TestSyncSourceFailure(t *testing.T) {
	h := newHarness(t, "2025-01-08", 20)
	h.source.err = errors.New("down")

	today := h.policy.CurrentDate()
	_, err := h.agg.Sync(context.Background(), carol, h.policy.WeekStart(today), today)
	assert.True(t, domain.IsNoData(err))

	_, ok, err := h.repo.GetWeekly(context.Background(), carol.DiscordID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRolloverFromTwoWeeksPrior(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-22", 12) // Wednesday, week of 2025-01-20
	old := domain.MustParseDate("2025-01-06")
	require.NoError(t, h.repo.PutWeekStart(ctx, old))

	stale := domain.NewWeeklyRecord(old)
	stale.AddProblem(domain.WeeklyProblem{Slug: "two-sum", Difficulty: domain.DifficultyEasy})
	stale.Submissions = 4
	require.NoError(t, h.repo.PutWeekly(ctx, carol.DiscordID, stale))
	require.NoError(t, h.repo.PutAnnouncements(ctx, carol.DiscordID, domain.AnnouncementLog{
		Entries: []domain.AnnouncementEntry{{ProblemID: "two-sum", Announced: true}},
	}))

	var recapped []domain.WeeklyDocument
	h.agg.SetRecap(func(_ context.Context, doc domain.WeeklyDocument) error {
		recapped = append(recapped, doc)
		return nil
	})

	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{
		Problem: domain.WeeklyProblem{Slug: "lru", Difficulty: domain.DifficultyMedium},
		Key:     "lru@1",
		IsNew:   true,
	}))

	require.Len(t, recapped, 1)
	assert.Equal(t, old, recapped[0].WeekStart)
	assert.Equal(t, 4, recapped[0].Data[carol.DiscordID].Submissions)

	rec := h.record(t)
	assert.Equal(t, domain.MustParseDate("2025-01-20"), rec.WeekStart)
	assert.Equal(t, 1, rec.UniqueProblems)
	assert.Equal(t, 1, rec.Submissions)
	assert.Equal(t, 0, rec.Easy)

	ws, ok, err := h.repo.GetWeekStart(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-01-20", ws.String())

	log, err := h.repo.GetAnnouncements(ctx, carol.DiscordID)
	require.NoError(t, err)
	assert.Empty(t, log.Entries)

	rolled, err := h.agg.Rollover(ctx)
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Len(t, recapped, 1)
}

func TestRolloverWithEmptyCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-20", 0) // Monday midnight
	require.NoError(t, h.repo.PutWeekStart(ctx, domain.MustParseDate("2025-01-06")))
	require.NoError(t, h.repo.PutWeekly(ctx, carol.DiscordID, domain.NewWeeklyRecord(domain.MustParseDate("2025-01-06"))))

	assert.Equal(t, 0, h.sync(t))

	_, ok, err := h.repo.GetWeekly(ctx, carol.DiscordID)
	require.NoError(t, err)
	assert.False(t, ok, "fresh week has no record until the first solve")
}

func TestRecordSubmission(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-07", 12)
	easy := domain.WeeklyProblem{Slug: "two-sum", Difficulty: domain.DifficultyEasy}

	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: easy, Key: "a", IsNew: true}))
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: easy, Key: "a", IsNew: true}))
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: easy, Key: "b", IsNew: true}))
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: easy, Key: "c", IsNew: false}))

	rec := h.record(t)
	assert.Equal(t, 1, rec.UniqueProblems)
	assert.Equal(t, 3, rec.Submissions)
	assert.Equal(t, 1, rec.Easy)
}

func TestProblem42Scenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-06", 18) // Monday
	trapping := domain.WeeklyProblem{Slug: "trapping", QuestionNumber: "42", Difficulty: domain.DifficultyEasy}

	h.solve("trapping", "2025-01-06", 9)
	mon := h.source.subs[0]
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: trapping, Key: mon.Key(), IsNew: true}))
	h.sync(t)

	h.setNow(h.policy, "2025-01-07", 18)
	h.solve("trapping", "2025-01-07", 9)
	tue := h.source.subs[1]
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{Problem: trapping, Key: tue.Key(), IsNew: false}))
	h.sync(t)

	rec := h.record(t)
	assert.Equal(t, 1, rec.UniqueProblems)
	assert.Equal(t, 2, rec.Submissions)
	assert.Equal(t, 1, rec.Easy)
}

func TestSyncThenRecordDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-07", 18)
	h.solve("lru", "2025-01-07", 9)
	h.sync(t)

	sub := h.source.subs[0]
	require.NoError(t, h.agg.RecordSubmission(ctx, carol.DiscordID, Submission{
		Problem: h.agg.Describe(ctx, "lru", "LRU Cache"),
		Key:     sub.Key(),
		IsNew:   true,
	}))

	rec := h.record(t)
	assert.Equal(t, 1, rec.Submissions)
	assert.Equal(t, 1, rec.Medium)
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "2025-01-08", 12)
	ws := domain.MustParseDate("2025-01-06")
	require.NoError(t, h.repo.PutWeekStart(ctx, ws))

	put := func(id string, unique, subs int, week domain.Date) {
		rec := domain.NewWeeklyRecord(week)
		for i := 0; i < unique; i++ {
			rec.AddProblem(domain.WeeklyProblem{Slug: id + string(rune('a'+i))})
		}
		rec.Submissions = subs
		require.NoError(t, h.repo.PutWeekly(ctx, id, rec))
	}
	put("1", 2, 5, ws)
	put("2", 3, 3, ws)
	put("3", 2, 7, ws)
	put("4", 9, 9, ws.AddDays(-7))

	board, err := h.agg.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, []string{"2", "3", "1"}, []string{board[0].DiscordID, board[1].DiscordID, board[2].DiscordID})
	assert.Equal(t, 1, board[0].Rank)
}
