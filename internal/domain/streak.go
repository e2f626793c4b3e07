package domain

// StreakState is a user's streak counters
type StreakState struct {
	CurrentStreak     int   `json:"streak"`
	LongestStreak     int   `json:"longest_streak"`
	TotalDaysSolved   int   `json:"total_days_solved"`
	LastEvaluatedDate *Date `json:"last_checked_date"`
}

// Normalize repairs counters loaded from an older or damaged document
func (s *StreakState) Normalize() {
	if s.CurrentStreak < 0 {
		s.CurrentStreak = 0
	}
	if s.TotalDaysSolved < 0 {
		s.TotalDaysSolved = 0
	}
	if s.LongestStreak < s.CurrentStreak {
		s.LongestStreak = s.CurrentStreak
	}
	if s.LastEvaluatedDate != nil && s.LastEvaluatedDate.IsZero() {
		s.LastEvaluatedDate = nil
	}
}

// EvaluatedOn reports whether the state was last evaluated on d
func (s StreakState) EvaluatedOn(d Date) bool {
	return s.LastEvaluatedDate != nil && *s.LastEvaluatedDate == d
}
