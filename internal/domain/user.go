package domain

import (
	"strings"
	"time"
)

// User links a Discord member to the LeetCode handle they track
type User struct {
	DiscordID    string    `json:"discord_id"`
	Handle       string    `json:"leetcode_username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SubmissionStatus is the judge verdict of a submission
type SubmissionStatus string

const (
	StatusAccepted SubmissionStatus = "Accepted"
	StatusOther    SubmissionStatus = "Other"
)

// ParseStatus maps a judge status string onto a SubmissionStatus
func ParseStatus(s string) SubmissionStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusAccepted)) {
		return StatusAccepted
	}
	return StatusOther
}

// Submission is one entry of a user's public submission feed
type Submission struct {
	ProblemID string           `json:"title_slug"`
	Title     string           `json:"title"`
	Timestamp time.Time        `json:"timestamp"`
	Status    SubmissionStatus `json:"status"`
}

// Key identifies the submission
func (s Submission) Key() string {
	return SubmissionKey(s.ProblemID, s.Timestamp)
}

// SubmissionKey builds the identity of a submission from its problem and
// instant
func SubmissionKey(problemID string, ts time.Time) string {
	return problemID + "@" + ts.UTC().Format(time.RFC3339)
}

// Accepted reports whether the submission passed
func (s Submission) Accepted() bool {
	return s.Status == StatusAccepted
}

// Difficulty is the LeetCode difficulty tag
type Difficulty string

const (
	DifficultyEasy    Difficulty = "Easy"
	DifficultyMedium  Difficulty = "Medium"
	DifficultyHard    Difficulty = "Hard"
	DifficultyUnknown Difficulty = "Unknown"
)

// ParseDifficulty normalizes a difficulty string, returning Unknown for
// anything unrecognized
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy
	case "medium":
		return DifficultyMedium
	case "hard":
		return DifficultyHard
	default:
		return DifficultyUnknown
	}
}

// Problem holds the metadata of a problem
type Problem struct {
	Slug           string     `json:"title_slug"`
	Title          string     `json:"title"`
	QuestionNumber string     `json:"question_no"`
	Difficulty     Difficulty `json:"difficulty"`
}

// UserStats is a user's all-time accepted problem count per difficulty and
// their global ranking. Ranking is zero when LeetCode reports none
type UserStats struct {
	Easy    int `json:"easy"`
	Medium  int `json:"medium"`
	Hard    int `json:"hard"`
	All     int `json:"all"`
	Ranking int `json:"ranking,omitempty"`
}

// SolveRecord maps each problem to the earliest instant it was accepted
type SolveRecord struct {
	Earliest map[string]time.Time `json:"earliest"`
}

// Merge folds an observed accepted instant into the record. It reports
// whether the record changed. Entries only move earlier
func (r *SolveRecord) Merge(problemID string, at time.Time) bool {
	if r.Earliest == nil {
		r.Earliest = make(map[string]time.Time)
	}
	cur, ok := r.Earliest[problemID]
	if ok && !at.Before(cur) {
		return false
	}
	r.Earliest[problemID] = at
	return true
}
