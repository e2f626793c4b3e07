package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/store"
	"github.com/leettogether/leetstreak/internal/timepolicy"
)

type fakeSource struct {
	subs  []domain.Submission
	err   error
	calls int
}

func (f *fakeSource) FetchAcceptedSubmissions(_ context.Context, _ string, limit int) ([]domain.Submission, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := append([]domain.Submission(nil), f.subs...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var alice = domain.User{DiscordID: "1", Handle: "alice"}

func testPolicy(t *testing.T, now time.Time) *timepolicy.Policy {
	t.Helper()
	p, err := timepolicy.New("Asia/Kolkata")
	require.NoError(t, err)
	return p.WithClock(func() time.Time { return now })
}

// at returns an instant on day at the given local hour
func at(p *timepolicy.Policy, day string, hour int) time.Time {
	return p.StartOf(domain.MustParseDate(day)).Add(time.Duration(hour) * time.Hour)
}

func accepted(id string, ts time.Time) domain.Submission {
	return domain.Submission{ProblemID: id, Title: id, Timestamp: ts, Status: domain.StatusAccepted}
}

func TestTodaysNewSolvesClassification(t *testing.T) {
	p := testPolicy(t, time.Time{})
	day1 := at(p, "2025-01-07", 12)
	p = p.WithClock(func() time.Time { return day1 })

	src := &fakeSource{subs: []domain.Submission{
		accepted("P1", at(p, "2025-01-06", 10)),
		accepted("P1", at(p, "2025-01-07", 9)),
		accepted("P2", at(p, "2025-01-07", 11)),
	}}
	l := New(src, nil, p, 500, slog.Default())

	got, err := l.TodaysNewSolves(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P2", got[0].ProblemID)
}

func TestNewSolvesDedupedAndOrdered(t *testing.T) {
	p := testPolicy(t, time.Time{})
	src := &fakeSource{subs: []domain.Submission{
		accepted("B", at(p, "2025-01-07", 15)),
		accepted("A", at(p, "2025-01-07", 9)),
		accepted("B", at(p, "2025-01-07", 10)),
		{ProblemID: "C", Timestamp: at(p, "2025-01-07", 8), Status: domain.StatusOther},
	}}
	l := New(src, nil, p, 500, slog.Default())

	got, err := l.NewSolvesOn(context.Background(), alice, domain.MustParseDate("2025-01-07"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ProblemID)
	assert.Equal(t, "B", got[1].ProblemID)
	assert.Equal(t, at(p, "2025-01-07", 10), got[1].Timestamp, "first occurrence wins")
}

func TestOrderIndependence(t *testing.T) {
	p := testPolicy(t, time.Time{})
	subs := []domain.Submission{
		accepted("P1", at(p, "2025-01-05", 10)),
		accepted("P1", at(p, "2025-01-07", 9)),
		accepted("P2", at(p, "2025-01-07", 11)),
		accepted("P3", at(p, "2025-01-07", 13)),
		accepted("P3", at(p, "2025-01-07", 14)),
		accepted("P4", at(p, "2025-01-06", 23)),
	}
	day := domain.MustParseDate("2025-01-07")

	want := New(&fakeSource{subs: subs}, nil, p, 500, slog.Default())
	expected, err := want.NewSolvesOn(context.Background(), alice, day)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Submission(nil), subs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		l := New(&fakeSource{subs: shuffled}, nil, p, 500, slog.Default())
		got, err := l.NewSolvesOn(context.Background(), alice, day)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestEarliestAndSolvedBefore(t *testing.T) {
	p := testPolicy(t, time.Time{})
	src := &fakeSource{subs: []domain.Submission{
		accepted("P1", at(p, "2025-01-07", 9)),
		accepted("P1", at(p, "2025-01-05", 9)),
		accepted("P2", at(p, "2025-01-06", 0)),
	}}
	l := New(src, nil, p, 500, slog.Default())
	ctx := context.Background()

	dates, err := l.EarliestSolveDates(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05", dates["P1"].String())
	assert.Equal(t, "2025-01-06", dates["P2"].String())

	before, err := l.SolvedBefore(ctx, alice, domain.MustParseDate("2025-01-06"))
	require.NoError(t, err)
	assert.True(t, before.Has("P1"))
	assert.False(t, before.Has("P2"), "cutoff is exclusive")
}

func TestSourceFailureIsNoData(t *testing.T) {
	p := testPolicy(t, time.Now())
	l := New(&fakeSource{err: domain.ErrSourceFailure}, nil, p, 500, slog.Default())

	_, err := l.TodaysNewSolves(context.Background(), alice)
	assert.True(t, domain.IsNoData(err))

	empty := New(&fakeSource{}, nil, p, 500, slog.Default())
	got, err := empty.TodaysNewSolves(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistoryOutlivesWindow(t *testing.T) {
	ctx := context.Background()
	p := testPolicy(t, time.Time{})
	repo := store.NewRepository(store.NewMemory(), slog.Default())

	src := &fakeSource{subs: []domain.Submission{
		accepted("old", at(p, "2025-01-01", 10)),
		accepted("other", at(p, "2025-01-02", 10)),
	}}
	l := New(src, repo, p, 2, slog.Default())
	_, err := l.Snapshot(ctx, alice)
	require.NoError(t, err)

	// "old" scrolls out of the two-entry window and is solved again
	src.subs = append(src.subs,
		accepted("filler", at(p, "2025-01-03", 10)),
		accepted("old", at(p, "2025-01-08", 10)),
	)
	got, err := l.NewSolvesOn(ctx, alice, domain.MustParseDate("2025-01-08"))
	require.NoError(t, err)
	assert.Empty(t, got)

	rec, err := repo.GetSolves(ctx, alice.DiscordID)
	require.NoError(t, err)
	assert.WithinDuration(t, at(p, "2025-01-01", 10), rec.Earliest["old"], 0)
}

func TestHistoryBackfillMovesEarlier(t *testing.T) {
	ctx := context.Background()
	p := testPolicy(t, time.Time{})
	repo := store.NewRepository(store.NewMemory(), slog.Default())
	require.NoError(t, repo.PutSolves(ctx, alice.DiscordID, domain.SolveRecord{
		Earliest: map[string]time.Time{"P1": at(p, "2025-01-07", 10)},
	}))

	src := &fakeSource{subs: []domain.Submission{accepted("P1", at(p, "2025-01-04", 10))}}
	l := New(src, repo, p, 500, slog.Default())

	dates, err := l.EarliestSolveDates(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-04", dates["P1"].String())
}

func TestHistoryWriteFailure(t *testing.T) {
	p := testPolicy(t, time.Time{})
	mem := store.NewMemory()
	mem.FailPut = func(string, string) error { return errors.New("read-only") }
	repo := store.NewRepository(mem, slog.Default())

	l := New(&fakeSource{subs: []domain.Submission{accepted("P1", at(p, "2025-01-07", 1))}}, repo, p, 500, slog.Default())
	_, err := l.Snapshot(context.Background(), alice)
	require.Error(t, err)
	assert.False(t, domain.IsNoData(err))
}

func TestRepeatedScansAreIdempotent(t *testing.T) {
	ctx := context.Background()
	p := testPolicy(t, time.Time{})
	repo := store.NewRepository(store.NewMemory(), slog.Default())
	src := &fakeSource{subs: []domain.Submission{
		accepted("P1", at(p, "2025-01-07", 9)),
		accepted("P2", at(p, "2025-01-07", 10)),
	}}
	l := New(src, repo, p, 500, slog.Default())
	day := domain.MustParseDate("2025-01-07")

	first, err := l.NewSolvesOn(ctx, alice, day)
	require.NoError(t, err)
	second, err := l.NewSolvesOn(ctx, alice, day)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestClassifyRange(t *testing.T) {
	p := testPolicy(t, time.Time{})
	src := &fakeSource{subs: []domain.Submission{
		accepted("P1", at(p, "2025-01-06", 9)),
		accepted("P1", at(p, "2025-01-06", 10)),
		accepted("P1", at(p, "2025-01-07", 9)),
		accepted("P2", at(p, "2025-01-07", 10)),
	}}
	snap, err := New(src, nil, p, 500, slog.Default()).Snapshot(context.Background(), alice)
	require.NoError(t, err)

	got := snap.Classify(domain.MustParseDate("2025-01-06"), domain.MustParseDate("2025-01-12"))
	require.Len(t, got, 4)
	kinds := []Kind{got[0].Kind, got[1].Kind, got[2].Kind, got[3].Kind}
	assert.Equal(t, []Kind{NewProblem, Resubmission, Resubmission, NewProblem}, kinds)
	assert.True(t, snap.SolvedOn(domain.MustParseDate("2025-01-07")))
	assert.False(t, snap.SolvedOn(domain.MustParseDate("2025-01-08")))
}

func TestScanRejectsNotAccepted(t *testing.T) {
	scan := NewScan(Set{})
	assert.Equal(t, NotAccepted, scan.Classify(domain.Submission{ProblemID: "x", Status: domain.StatusOther}))
	assert.Equal(t, NewProblem, scan.Classify(accepted("x", time.Now())))
	assert.Equal(t, Resubmission, scan.Classify(accepted("x", time.Now())))
	assert.Equal(t, "new", NewProblem.String())
}
