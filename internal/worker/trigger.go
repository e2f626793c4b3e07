package worker

import (
	"fmt"
	"time"
)

// Trigger computes when a job fires next
type Trigger interface {
	Next(after time.Time) time.Time
	String() string
}

// Every fires at a fixed interval
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

func (e Every) String() string {
	return "every " + time.Duration(e).String()
}

// DailyAt fires once a day at a wall clock time in Loc
type DailyAt struct {
	Hour   int
	Minute int
	Loc    *time.Location
}

func (d DailyAt) Next(after time.Time) time.Time {
	t := after.In(d.Loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, d.Loc)
	if !next.After(after) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.Hour, d.Minute, 0, 0, d.Loc)
	}
	return next
}

func (d DailyAt) String() string {
	return fmt.Sprintf("daily %02d:%02d %s", d.Hour, d.Minute, d.Loc)
}

// WeeklyAt fires once a week on Weekday at a wall clock time in Loc
type WeeklyAt struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	Loc     *time.Location
}

func (w WeeklyAt) Next(after time.Time) time.Time {
	t := after.In(w.Loc)
	ahead := (int(w.Weekday) - int(t.Weekday()) + 7) % 7
	next := time.Date(t.Year(), t.Month(), t.Day()+ahead, w.Hour, w.Minute, 0, 0, w.Loc)
	if !next.After(after) {
		next = time.Date(t.Year(), t.Month(), t.Day()+ahead+7, w.Hour, w.Minute, 0, 0, w.Loc)
	}
	return next
}

func (w WeeklyAt) String() string {
	return fmt.Sprintf("%s %02d:%02d %s", w.Weekday, w.Hour, w.Minute, w.Loc)
}
