package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/leettogether/leetstreak/internal/domain"
)

// Setting keys
const (
	SettingWeekStart           = "week_start"
	SettingAnnouncementChannel = "announcement_channel"
)

// Repository provides typed access to the tracker's documents
type Repository struct {
	docs   Documents
	logger *slog.Logger
}

// NewRepository wraps a document store
func NewRepository(docs Documents, logger *slog.Logger) *Repository {
	return &Repository{docs: docs, logger: logger}
}

// Ping checks backend connectivity when the backend supports it
func (r *Repository) Ping(ctx context.Context) error {
	if p, ok := r.docs.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (r *Repository) get(ctx context.Context, table, key string, v any) (bool, error) {
	data, err := r.docs.Get(ctx, table, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting %s/%s: %w", table, key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s/%s: %w", table, key, err)
	}
	return true, nil
}

func (r *Repository) put(ctx context.Context, table, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", table, key, err)
	}
	if err := r.docs.Put(ctx, table, key, data); err != nil {
		return fmt.Errorf("putting %s/%s: %w", table, key, err)
	}
	return nil
}

// list decodes every document of a table; undecodable documents are logged
// and skipped so one bad record cannot hide the rest
func list[T any](ctx context.Context, r *Repository, table string) (map[string]T, error) {
	raw, err := r.docs.List(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	out := make(map[string]T, len(raw))
	for k, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			r.logger.Warn("skipping undecodable document", "table", table, "key", k, "error", err)
			continue
		}
		out[k] = v
	}
	return out, nil
}

// GetUser returns a registered user
func (r *Repository) GetUser(ctx context.Context, discordID string) (domain.User, error) {
	var u domain.User
	ok, err := r.get(ctx, TableUsers, discordID, &u)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	if u.DiscordID == "" {
		u.DiscordID = discordID
	}
	return u, nil
}

// PutUser stores or overwrites a registration
func (r *Repository) PutUser(ctx context.Context, u domain.User) error {
	return r.put(ctx, TableUsers, u.DiscordID, u)
}

// ListUsers returns every registered user ordered by Discord id
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	m, err := list[domain.User](ctx, r, TableUsers)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(m))
	for id, u := range m {
		if u.DiscordID == "" {
			u.DiscordID = id
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].DiscordID < users[j].DiscordID })
	return users, nil
}

// GetStreak returns a user's streak, or the zero state if none is stored
func (r *Repository) GetStreak(ctx context.Context, discordID string) (domain.StreakState, error) {
	var s domain.StreakState
	if _, err := r.get(ctx, TableStreaks, discordID, &s); err != nil {
		return domain.StreakState{}, err
	}
	s.Normalize()
	return s, nil
}

// PutStreak stores a user's streak
func (r *Repository) PutStreak(ctx context.Context, discordID string, s domain.StreakState) error {
	return r.put(ctx, TableStreaks, discordID, s)
}

// ListStreaks returns every stored streak keyed by Discord id
func (r *Repository) ListStreaks(ctx context.Context) (map[string]domain.StreakState, error) {
	m, err := list[domain.StreakState](ctx, r, TableStreaks)
	if err != nil {
		return nil, err
	}
	for id, s := range m {
		s.Normalize()
		m[id] = s
	}
	return m, nil
}

// GetSolves returns a user's durable earliest-solve record
func (r *Repository) GetSolves(ctx context.Context, discordID string) (domain.SolveRecord, error) {
	var rec domain.SolveRecord
	if _, err := r.get(ctx, TableSolves, discordID, &rec); err != nil {
		return domain.SolveRecord{}, err
	}
	if rec.Earliest == nil {
		rec.Earliest = make(map[string]time.Time)
	}
	return rec, nil
}

// PutSolves stores a user's earliest-solve record
func (r *Repository) PutSolves(ctx context.Context, discordID string, rec domain.SolveRecord) error {
	return r.put(ctx, TableSolves, discordID, rec)
}

// GetWeekly returns a user's weekly record and whether one exists
func (r *Repository) GetWeekly(ctx context.Context, discordID string) (domain.WeeklyRecord, bool, error) {
	var rec domain.WeeklyRecord
	ok, err := r.get(ctx, TableWeekly, discordID, &rec)
	if err != nil || !ok {
		return domain.WeeklyRecord{}, false, err
	}
	rec.Normalize()
	return rec, true, nil
}

// PutWeekly stores a user's weekly record
func (r *Repository) PutWeekly(ctx context.Context, discordID string, rec domain.WeeklyRecord) error {
	return r.put(ctx, TableWeekly, discordID, rec)
}

// ListWeekly returns every weekly record keyed by Discord id
func (r *Repository) ListWeekly(ctx context.Context) (map[string]domain.WeeklyRecord, error) {
	m, err := list[domain.WeeklyRecord](ctx, r, TableWeekly)
	if err != nil {
		return nil, err
	}
	for id, rec := range m {
		rec.Normalize()
		m[id] = rec
	}
	return m, nil
}

// ClearWeekly drops every weekly record
func (r *Repository) ClearWeekly(ctx context.Context) error {
	if err := r.docs.Replace(ctx, TableWeekly, map[string][]byte{}); err != nil {
		return fmt.Errorf("clearing weekly: %w", err)
	}
	return nil
}

// GetAnnouncements returns a user's announcement log
func (r *Repository) GetAnnouncements(ctx context.Context, discordID string) (domain.AnnouncementLog, error) {
	var l domain.AnnouncementLog
	if _, err := r.get(ctx, TableAnnouncements, discordID, &l); err != nil {
		return domain.AnnouncementLog{}, err
	}
	return l, nil
}

// PutAnnouncements stores a user's announcement log
func (r *Repository) PutAnnouncements(ctx context.Context, discordID string, l domain.AnnouncementLog) error {
	return r.put(ctx, TableAnnouncements, discordID, l)
}

// ClearAnnouncements drops every announcement log
func (r *Repository) ClearAnnouncements(ctx context.Context) error {
	if err := r.docs.Replace(ctx, TableAnnouncements, map[string][]byte{}); err != nil {
		return fmt.Errorf("clearing announcements: %w", err)
	}
	return nil
}

// GetSetting returns a string setting and whether it is set
func (r *Repository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	ok, err := r.get(ctx, TableSettings, key, &v)
	return v, ok, err
}

// PutSetting stores a string setting
func (r *Repository) PutSetting(ctx context.Context, key, value string) error {
	return r.put(ctx, TableSettings, key, value)
}

// GetWeekStart returns the stored start of the running week
func (r *Repository) GetWeekStart(ctx context.Context) (domain.Date, bool, error) {
	v, ok, err := r.GetSetting(ctx, SettingWeekStart)
	if err != nil || !ok || v == "" {
		return domain.Date{}, false, err
	}
	d, err := domain.ParseDate(v)
	if err != nil {
		r.logger.Warn("ignoring malformed week start", "value", v, "error", err)
		return domain.Date{}, false, nil
	}
	return d, true, nil
}

// PutWeekStart stores the start of the running week
func (r *Repository) PutWeekStart(ctx context.Context, d domain.Date) error {
	return r.PutSetting(ctx, SettingWeekStart, d.String())
}

// RemoveUser deletes a user and every aggregate owned by them
func (r *Repository) RemoveUser(ctx context.Context, discordID string) error {
	var errs []error
	for _, table := range []string{TableUsers, TableStreaks, TableSolves, TableWeekly, TableAnnouncements} {
		if err := r.docs.Delete(ctx, table, discordID); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s/%s: %w", table, discordID, err))
		}
	}
	return errors.Join(errs...)
}
