package domain

import "time"

// AnnouncementEntry is one accepted submission seen by the announcer
type AnnouncementEntry struct {
	ProblemID  string    `json:"titleSlug"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	Announced  bool      `json:"announced"`
	IsResubmit bool      `json:"is_resubmit"`
}

// Key identifies the submission behind the entry
func (e AnnouncementEntry) Key() string {
	return SubmissionKey(e.ProblemID, e.Timestamp)
}

// AnnouncementLog is the per-user list of submissions already seen
type AnnouncementLog struct {
	Entries []AnnouncementEntry `json:"solves"`
}

// Contains reports whether the submission identified by key is logged
func (l *AnnouncementLog) Contains(key string) bool {
	for _, e := range l.Entries {
		if e.Key() == key {
			return true
		}
	}
	return false
}

// Append adds e unless the same submission is already logged
func (l *AnnouncementLog) Append(e AnnouncementEntry) bool {
	if l.Contains(e.Key()) {
		return false
	}
	l.Entries = append(l.Entries, e)
	return true
}

// Pending returns the entries not yet announced, in log order
func (l *AnnouncementLog) Pending() []AnnouncementEntry {
	var out []AnnouncementEntry
	for _, e := range l.Entries {
		if !e.Announced {
			out = append(out, e)
		}
	}
	return out
}

// MarkAnnounced flags the given submissions as announced
func (l *AnnouncementLog) MarkAnnounced(keys ...string) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	for i := range l.Entries {
		if _, ok := set[l.Entries[i].Key()]; ok {
			l.Entries[i].Announced = true
		}
	}
}

// Event is published to live feeds and the event stream when something
// noteworthy happens to a user
type Event struct {
	Type      string    `json:"type"`
	DiscordID string    `json:"discord_id,omitempty"`
	Handle    string    `json:"handle,omitempty"`
	Text      string    `json:"text"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types
const (
	EventSolve      = "solve"
	EventStreak     = "streak"
	EventDaily      = "daily_status"
	EventWeekly     = "weekly_recap"
	EventNudge      = "nudge"
	EventRegister   = "register"
	EventUnregister = "unregister"
)
