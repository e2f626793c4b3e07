package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/service"
	"github.com/leettogether/leetstreak/internal/weekly"
	"github.com/leettogether/leetstreak/internal/worker"
)

type fakeTracker struct {
	users   map[string]domain.User
	channel string
	noData  bool
	failAll error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{users: map[string]domain.User{
		"1": {DiscordID: "1", Handle: "alice"},
	}}
}

func (f *fakeTracker) Register(_ context.Context, discordID, handle string) (domain.User, error) {
	if discordID == "" {
		return domain.User{}, domain.ErrInvalidRequest
	}
	if handle == "nobody" {
		return domain.User{}, domain.ErrInvalidHandle
	}
	u := domain.User{DiscordID: discordID, Handle: handle}
	f.users[discordID] = u
	return u, nil
}

func (f *fakeTracker) Unregister(_ context.Context, discordID string) error {
	if _, ok := f.users[discordID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(f.users, discordID)
	return nil
}

func (f *fakeTracker) SetAnnouncementChannel(_ context.Context, channelID string) error {
	if channelID == "" {
		return domain.ErrInvalidRequest
	}
	f.channel = channelID
	return nil
}

func (f *fakeTracker) Users(context.Context) ([]domain.User, error) {
	if f.failAll != nil {
		return nil, f.failAll
	}
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeTracker) Profile(_ context.Context, discordID string) (*service.Profile, error) {
	u, ok := f.users[discordID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &service.Profile{
		User:   u,
		Streak: domain.StreakState{CurrentStreak: 3, LongestStreak: 5},
		Stats:  &domain.UserStats{Easy: 10, Medium: 4, Hard: 1, All: 15, Ranking: 98765},
	}, nil
}

func (f *fakeTracker) Streakboard(_ context.Context, limit int) ([]service.StreakEntry, error) {
	out := []service.StreakEntry{
		{Rank: 1, DiscordID: "1", Handle: "alice"},
		{Rank: 2, DiscordID: "2", Handle: "bob"},
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTracker) WeeklyLeaderboard(context.Context) ([]weekly.Entry, error) {
	return []weekly.Entry{{Rank: 1, DiscordID: "1"}}, nil
}

func (f *fakeTracker) Today(_ context.Context, discordID string) (*service.TodayReport, error) {
	if f.noData {
		return nil, domain.ErrNoData
	}
	if _, ok := f.users[discordID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return &service.TodayReport{DiscordID: discordID}, nil
}

func (f *fakeTracker) Progress(context.Context) ([]service.ProgressEntry, error) {
	return []service.ProgressEntry{{Rank: 1, DiscordID: "1", Count: 2}}, nil
}

func (f *fakeTracker) Attempts(_ context.Context, discordID string, limit int) ([]domain.Submission, error) {
	if f.noData {
		return nil, domain.ErrNoData
	}
	if _, ok := f.users[discordID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	subs := []domain.Submission{
		{ProblemID: "two-sum", Status: domain.StatusOther},
		{ProblemID: "two-sum", Status: domain.StatusAccepted},
	}
	if limit > 0 && limit < len(subs) {
		subs = subs[:limit]
	}
	return subs, nil
}

type fakeJobs struct {
	triggered []string
	err       error
}

func (f *fakeJobs) Jobs() []worker.Status {
	return []worker.Status{{Name: worker.JobSubmissionCheck, Schedule: "every 5m0s"}}
}

func (f *fakeJobs) Trigger(name string) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, name)
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, tracker *fakeTracker, jobs Jobs, ping Pinger) *httptest.Server {
	t.Helper()
	h := NewHandler(tracker, jobs, nil, ping, slog.Default())
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, APIResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestKeepAlive(t *testing.T) {
	srv := newTestServer(t, newFakeTracker(), nil, nil)
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "LeetTogether Bot is running! 🚀", string(body))
}

func TestReadyCheck(t *testing.T) {
	srv := newTestServer(t, newFakeTracker(), nil, fakePinger{})
	status, _ := do(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)

	down := newTestServer(t, newFakeTracker(), nil, fakePinger{err: errors.New("refused")})
	status, resp := do(t, down, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, resp.Success)
}

func TestRegisterUser(t *testing.T) {
	tracker := newFakeTracker()
	srv := newTestServer(t, tracker, nil, nil)

	status, resp := do(t, srv, http.MethodPost, "/api/v1/users", `{"discord_id":"2","leetcode_username":"bob"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "bob", tracker.users["2"].Handle)

	status, _ = do(t, srv, http.MethodPost, "/api/v1/users", `{"discord_id":"3","leetcode_username":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, http.MethodPost, "/api/v1/users", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnregisterUser(t *testing.T) {
	tracker := newFakeTracker()
	srv := newTestServer(t, tracker, nil, nil)

	status, _ := do(t, srv, http.MethodDelete, "/api/v1/users/1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, tracker.users)

	status, resp := do(t, srv, http.MethodDelete, "/api/v1/users/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, domain.ErrUserNotFound.Error(), resp.Error)
}

func TestGetProfile(t *testing.T) {
	srv := newTestServer(t, newFakeTracker(), nil, nil)

	status, resp := do(t, srv, http.MethodGet, "/api/v1/users/1", "")
	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]interface{})
	streak := data["streak"].(map[string]interface{})
	assert.EqualValues(t, 3, streak["streak"])
	stats := data["stats"].(map[string]interface{})
	assert.EqualValues(t, 15, stats["all"])
	assert.EqualValues(t, 1, stats["hard"])
	assert.EqualValues(t, 98765, stats["ranking"])

	status, _ = do(t, srv, http.MethodGet, "/api/v1/users/9", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetTodayWithoutData(t *testing.T) {
	tracker := newFakeTracker()
	tracker.noData = true
	srv := newTestServer(t, tracker, nil, nil)

	status, resp := do(t, srv, http.MethodGet, "/api/v1/users/1/today", "")
	require.Equal(t, http.StatusOK, status)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["no_data"])
	assert.Equal(t, "no data yet", data["message"])
}

func TestGetSubmissions(t *testing.T) {
	tracker := newFakeTracker()
	srv := newTestServer(t, tracker, nil, nil)

	status, resp := do(t, srv, http.MethodGet, "/api/v1/users/1/submissions?limit=1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, resp.Data, 1)

	tracker.noData = true
	status, resp = do(t, srv, http.MethodGet, "/api/v1/users/1/submissions", "")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, domain.ErrNoData.Error(), resp.Error)
}

func TestGetStreaksLimit(t *testing.T) {
	srv := newTestServer(t, newFakeTracker(), nil, nil)

	_, resp := do(t, srv, http.MethodGet, "/api/v1/streaks?limit=1", "")
	assert.Len(t, resp.Data, 1)

	_, resp = do(t, srv, http.MethodGet, "/api/v1/streaks?limit=bogus", "")
	assert.Len(t, resp.Data, 2)
}

func TestSetChannel(t *testing.T) {
	tracker := newFakeTracker()
	srv := newTestServer(t, tracker, nil, nil)

	status, _ := do(t, srv, http.MethodPut, "/api/v1/settings/channel", `{"channel_id":"42"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "42", tracker.channel)

	status, _ = do(t, srv, http.MethodPut, "/api/v1/settings/channel", `{"channel_id":""}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRunJob(t *testing.T) {
	jobs := &fakeJobs{}
	srv := newTestServer(t, newFakeTracker(), jobs, nil)

	status, _ := do(t, srv, http.MethodPost, "/api/v1/jobs/streak_update/run", "")
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, []string{"streak_update"}, jobs.triggered)

	jobs.err = worker.ErrJobRunning
	status, _ = do(t, srv, http.MethodPost, "/api/v1/jobs/streak_update/run", "")
	assert.Equal(t, http.StatusConflict, status)

	jobs.err = worker.ErrUnknownJob
	status, _ = do(t, srv, http.MethodPost, "/api/v1/jobs/nope/run", "")
	assert.Equal(t, http.StatusNotFound, status)

	_, resp := do(t, srv, http.MethodGet, "/api/v1/jobs", "")
	assert.Len(t, resp.Data, 1)
}

func TestRunJobWithoutScheduler(t *testing.T) {
	srv := newTestServer(t, newFakeTracker(), nil, nil)
	status, _ := do(t, srv, http.MethodPost, "/api/v1/jobs/streak_update/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestInternalErrorsAreHidden(t *testing.T) {
	tracker := newFakeTracker()
	tracker.failAll = errors.New("connection reset")
	srv := newTestServer(t, tracker, nil, nil)

	status, resp := do(t, srv, http.MethodGet, "/api/v1/users", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, domain.ErrInternalError.Error(), resp.Error)
}
