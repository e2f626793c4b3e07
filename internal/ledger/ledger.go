// Package ledger derives, from a bounded and possibly unordered feed of
// accepted submissions, which problems a user solved for the first time on
// a given day
//
// The feed only covers a user's most recent submissions. To keep an old
// solve from reappearing as new once it scrolls out of that window, the
// earliest accepted instant of every problem ever seen is persisted and
// merged with each fetch. A problem whose true first solve predates both
// the window and the persisted record will still look new; the feed gives
// no way to tell
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/timepolicy"
)

// SubmissionSource is a read-only feed of accepted submissions
type SubmissionSource interface {
	FetchAcceptedSubmissions(ctx context.Context, handle string, limit int) ([]domain.Submission, error)
}

// History persists each user's earliest-solve record
type History interface {
	GetSolves(ctx context.Context, discordID string) (domain.SolveRecord, error)
	PutSolves(ctx context.Context, discordID string, rec domain.SolveRecord) error
}

// Kind classifies an accepted submission
type Kind int

const (
	// Resubmission is an accepted submission of a problem already solved
	// on an earlier day, or seen earlier in the same scan
	Resubmission Kind = iota
	// NewProblem is the first accepted submission of a problem
	NewProblem
	// NotAccepted marks submissions with any other verdict
	NotAccepted
)

func (k Kind) String() string {
	switch k {
	case NewProblem:
		return "new"
	case Resubmission:
		return "resubmission"
	default:
		return "not_accepted"
	}
}

// Solve is a newly solved problem
type Solve struct {
	ProblemID string    `json:"title_slug"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// Classified is an accepted submission with its classification
type Classified struct {
	domain.Submission
	Date domain.Date `json:"date"`
	Kind Kind        `json:"kind"`
}

// Set is a set of problem ids
type Set map[string]struct{}

// Has reports membership
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Ledger computes solve information for users
type Ledger struct {
	source  SubmissionSource
	history History
	policy  *timepolicy.Policy
	limit   int
	logger  *slog.Logger
}

// New creates a Ledger. history may be nil, in which case every call
// derives its answer from the fetched window alone
func New(source SubmissionSource, history History, policy *timepolicy.Policy, limit int, logger *slog.Logger) *Ledger {
	return &Ledger{
		source:  source,
		history: history,
		policy:  policy,
		limit:   limit,
		logger:  logger,
	}
}

// Snapshot fetches the user's feed once and merges it with the persisted
// record. It returns domain.ErrNoData when the feed cannot be read
func (l *Ledger) Snapshot(ctx context.Context, user domain.User) (*Snapshot, error) {
	subs, err := l.source.FetchAcceptedSubmissions(ctx, user.Handle, l.limit)
	if err != nil {
		l.logger.Warn("submission source unavailable",
			"discord_id", user.DiscordID,
			"handle", user.Handle,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrNoData, err)
	}

	rec := domain.SolveRecord{Earliest: make(map[string]time.Time)}
	if l.history != nil {
		stored, err := l.history.GetSolves(ctx, user.DiscordID)
		if err != nil {
			return nil, fmt.Errorf("loading solve history: %w", err)
		}
		if stored.Earliest != nil {
			rec = stored
		}
	}

	snap := newSnapshot(l.policy, subs, rec)

	if l.history != nil && snap.changed {
		if err := l.history.PutSolves(ctx, user.DiscordID, snap.record); err != nil {
			return nil, fmt.Errorf("saving solve history: %w", err)
		}
	}
	return snap, nil
}

// EarliestSolveDates returns, per problem, the day of its earliest accepted
// submission
func (l *Ledger) EarliestSolveDates(ctx context.Context, user domain.User) (map[string]domain.Date, error) {
	snap, err := l.Snapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	return snap.EarliestDates(), nil
}

// SolvedBefore returns the problems first solved strictly before cutoff
func (l *Ledger) SolvedBefore(ctx context.Context, user domain.User, cutoff domain.Date) (Set, error) {
	snap, err := l.Snapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	return snap.SolvedBefore(cutoff), nil
}

// TodaysNewSolves returns the problems first solved today
func (l *Ledger) TodaysNewSolves(ctx context.Context, user domain.User) ([]Solve, error) {
	return l.NewSolvesOn(ctx, user, l.policy.CurrentDate())
}

// NewSolvesOn returns the problems first solved on day
func (l *Ledger) NewSolvesOn(ctx context.Context, user domain.User, day domain.Date) ([]Solve, error) {
	snap, err := l.Snapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	return snap.NewSolvesOn(day), nil
}

// Snapshot is one reading of a user's feed merged with their history
type Snapshot struct {
	policy      *timepolicy.Policy
	submissions []domain.Submission
	record      domain.SolveRecord
	changed     bool
}

func newSnapshot(policy *timepolicy.Policy, subs []domain.Submission, rec domain.SolveRecord) *Snapshot {
	accepted := make([]domain.Submission, 0, len(subs))
	for _, s := range subs {
		if s.Accepted() && s.ProblemID != "" {
			accepted = append(accepted, s)
		}
	}
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Timestamp.Before(accepted[j].Timestamp)
	})

	snap := &Snapshot{policy: policy, submissions: accepted, record: rec}
	if snap.record.Earliest == nil {
		snap.record.Earliest = make(map[string]time.Time)
	}
	for _, s := range accepted {
		if snap.record.Merge(s.ProblemID, s.Timestamp) {
			snap.changed = true
		}
	}
	return snap
}

// Submissions returns the accepted submissions, oldest first
func (s *Snapshot) Submissions() []domain.Submission {
	return s.submissions
}

// Record returns the merged earliest-solve record
func (s *Snapshot) Record() domain.SolveRecord {
	return s.record
}

// EarliestDates maps each problem to the day it was first accepted
func (s *Snapshot) EarliestDates() map[string]domain.Date {
	out := make(map[string]domain.Date, len(s.record.Earliest))
	for id, at := range s.record.Earliest {
		out[id] = s.policy.Today(at)
	}
	return out
}

// SolvedBefore returns the problems whose earliest solve is strictly
// before cutoff
func (s *Snapshot) SolvedBefore(cutoff domain.Date) Set {
	set := make(Set)
	for id, at := range s.record.Earliest {
		if s.policy.Today(at).Before(cutoff) {
			set[id] = struct{}{}
		}
	}
	return set
}

// NewSolvesOn returns the submissions classified as new on day, one per
// problem, oldest first
func (s *Snapshot) NewSolvesOn(day domain.Date) []Solve {
	scan := NewScan(s.SolvedBefore(day))
	var out []Solve
	for _, sub := range s.submissions {
		if s.policy.Today(sub.Timestamp) != day {
			continue
		}
		if scan.Classify(sub) == NewProblem {
			out = append(out, Solve{ProblemID: sub.ProblemID, Title: sub.Title, Timestamp: sub.Timestamp})
		}
	}
	return out
}

// SolvedOn reports whether at least one problem was first solved on day
func (s *Snapshot) SolvedOn(day domain.Date) bool {
	return len(s.NewSolvesOn(day)) > 0
}

// Classify labels every accepted submission dated within [from, to]
// relative to its own day, oldest first
func (s *Snapshot) Classify(from, to domain.Date) []Classified {
	var (
		out     []Classified
		scan    *Scan
		scanDay domain.Date
	)
	for _, sub := range s.submissions {
		day := s.policy.Today(sub.Timestamp)
		if !day.Within(from, to) {
			continue
		}
		if scan == nil || day != scanDay {
			scan = NewScan(s.SolvedBefore(day))
			scanDay = day
		}
		out = append(out, Classified{Submission: sub, Date: day, Kind: scan.Classify(sub)})
	}
	return out
}

// Scan classifies a sequence of same-day submissions against the set of
// problems solved before that day
type Scan struct {
	solvedBefore Set
	seen         map[string]struct{}
}

// NewScan starts a scan
func NewScan(solvedBefore Set) *Scan {
	return &Scan{solvedBefore: solvedBefore, seen: make(map[string]struct{})}
}

// Classify returns NewProblem the first time an unsolved problem is seen
// in the scan and Resubmission afterwards
func (s *Scan) Classify(sub domain.Submission) Kind {
	if !sub.Accepted() {
		return NotAccepted
	}
	if s.solvedBefore.Has(sub.ProblemID) {
		return Resubmission
	}
	if _, ok := s.seen[sub.ProblemID]; ok {
		return Resubmission
	}
	s.seen[sub.ProblemID] = struct{}{}
	return NewProblem
}
