package domain

// WeeklyProblem is a problem counted toward a user's week
type WeeklyProblem struct {
	Slug           string     `json:"titleSlug"`
	Title          string     `json:"title"`
	QuestionNumber string     `json:"questionNo"`
	Difficulty     Difficulty `json:"difficulty"`
}

// WeeklyRecord aggregates one user's activity for one week
type WeeklyRecord struct {
	WeekStart      Date            `json:"week_start"`
	UniqueProblems int             `json:"unique_problems"`
	Submissions    int             `json:"submissions"`
	Easy           int             `json:"easy"`
	Medium         int             `json:"medium"`
	Hard           int             `json:"hard"`
	Problems       []WeeklyProblem `json:"problems"`
	// Counted holds the identities of submissions already counted
	Counted []string `json:"counted,omitempty"`
}

// NewWeeklyRecord returns an empty record for the week starting at ws
func NewWeeklyRecord(ws Date) WeeklyRecord {
	return WeeklyRecord{WeekStart: ws, Problems: []WeeklyProblem{}}
}

// Has reports whether slug is already counted this week
func (r *WeeklyRecord) Has(slug string) bool {
	for _, p := range r.Problems {
		if p.Slug == slug {
			return true
		}
	}
	return false
}

// AddProblem inserts p and bumps the unique and difficulty counters. It
// reports false, changing nothing, if p is already present
func (r *WeeklyRecord) AddProblem(p WeeklyProblem) bool {
	if r.Has(p.Slug) {
		return false
	}
	r.Problems = append(r.Problems, p)
	r.UniqueProblems = len(r.Problems)
	switch p.Difficulty {
	case DifficultyEasy:
		r.Easy++
	case DifficultyMedium:
		r.Medium++
	case DifficultyHard:
		r.Hard++
	}
	return true
}

// HasCounted reports whether the submission identified by key was counted
func (r *WeeklyRecord) HasCounted(key string) bool {
	for _, k := range r.Counted {
		if k == key {
			return true
		}
	}
	return false
}

// MarkCounted records that the submission identified by key was counted
func (r *WeeklyRecord) MarkCounted(key string) {
	if !r.HasCounted(key) {
		r.Counted = append(r.Counted, key)
	}
}

// Normalize restores the record's counting invariants after load
func (r *WeeklyRecord) Normalize() {
	if r.Problems == nil {
		r.Problems = []WeeklyProblem{}
	}
	r.UniqueProblems = len(r.Problems)
	if r.Submissions < r.UniqueProblems {
		r.Submissions = r.UniqueProblems
	}
	if r.Easy < 0 {
		r.Easy = 0
	}
	if r.Medium < 0 {
		r.Medium = 0
	}
	if r.Hard < 0 {
		r.Hard = 0
	}
}

// WeeklyDocument is the whole week: its start and every user's record
type WeeklyDocument struct {
	WeekStart Date                    `json:"week_start"`
	Data      map[string]WeeklyRecord `json:"data"`
}
