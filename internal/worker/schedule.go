package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/leettogether/leetstreak/internal/config"
)

// Job names
const (
	JobSubmissionCheck = "submission_check"
	JobStreakUpdate    = "streak_update"
	JobDailyStatus     = "daily_status"
	JobNudge           = "nudge"
	JobWeeklyRecap     = "weekly_recap"
	JobWeeklySync      = "weekly_sync"
)

// Tracker is the set of operations the standard jobs run
type Tracker interface {
	PollSubmissions(ctx context.Context) error
	EvaluateStreaks(ctx context.Context) error
	DailyStatusCheck(ctx context.Context) error
	Nudge(ctx context.Context) error
	WeeklyRecap(ctx context.Context) error
	SyncWeekly(ctx context.Context) error
}

// Register adds the standard jobs to d using the cadences in cfg. Clock
// times are read in loc
func Register(d *Dispatcher, t Tracker, cfg *config.ScheduleConfig, loc *time.Location) error {
	daily := func(clock string) (Trigger, error) {
		h, m, err := config.ParseClock(clock)
		if err != nil {
			return nil, err
		}
		return DailyAt{Hour: h, Minute: m, Loc: loc}, nil
	}

	streakAt, err := daily(cfg.StreakAt)
	if err != nil {
		return fmt.Errorf("streak_at: %w", err)
	}
	statusAt, err := daily(cfg.StatusAt)
	if err != nil {
		return fmt.Errorf("status_at: %w", err)
	}
	nudgeAt, err := daily(cfg.NudgeAt)
	if err != nil {
		return fmt.Errorf("nudge_at: %w", err)
	}
	day, err := config.ParseWeekday(cfg.RecapDay)
	if err != nil {
		return fmt.Errorf("recap_day: %w", err)
	}
	h, m, err := config.ParseClock(cfg.RecapAt)
	if err != nil {
		return fmt.Errorf("recap_at: %w", err)
	}

	jobs := []struct {
		name    string
		trigger Trigger
		fn      JobFunc
	}{
		{JobSubmissionCheck, Every(cfg.PollInterval), t.PollSubmissions},
		{JobStreakUpdate, streakAt, t.EvaluateStreaks},
		{JobDailyStatus, statusAt, t.DailyStatusCheck},
		{JobNudge, nudgeAt, t.Nudge},
		{JobWeeklyRecap, WeeklyAt{Weekday: day, Hour: h, Minute: m, Loc: loc}, t.WeeklyRecap},
		{JobWeeklySync, Every(cfg.WeeklySyncInterval), t.SyncWeekly},
	}
	for _, j := range jobs {
		if err := d.Add(j.name, j.trigger, j.fn); err != nil {
			return err
		}
	}
	return nil
}
