package leetcode

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.LeetCodeConfig{
		Endpoint:  srv.URL,
		Timeout:   2 * time.Second,
		UserAgent: "test",
	}, slog.Default())
}

func decodeRequest(t *testing.T, r *http.Request) graphqlRequest {
	t.Helper()
	var req graphqlRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestFetchAcceptedSubmissions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "recentAcSubmissionList")
		assert.Equal(t, "alice", req.Variables["username"])
		assert.EqualValues(t, 500, req.Variables["limit"])

		w.Write([]byte(`{"data":{"recentAcSubmissionList":[
			{"title":"Two Sum","titleSlug":"two-sum","timestamp":"1736150400"},
			{"title":"Bad","titleSlug":"bad","timestamp":"not-a-number"},
			{"title":"Add Two Numbers","titleSlug":"add-two-numbers","timestamp":"1736064000"}
		]}}`))
	})

	subs, err := client.FetchAcceptedSubmissions(context.Background(), "alice", 500)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "add-two-numbers", subs[0].ProblemID)
	assert.Equal(t, "two-sum", subs[1].ProblemID)
	assert.Equal(t, time.Unix(1736150400, 0).UTC(), subs[1].Timestamp)
	assert.True(t, subs[0].Accepted())
}

func TestFetchRecentSubmissionsStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"recentSubmissionList":[
			{"title":"Two Sum","titleSlug":"two-sum","timestamp":"1736150400","statusDisplay":"Wrong Answer"},
			{"title":"Two Sum","titleSlug":"two-sum","timestamp":"1736150500","statusDisplay":"Accepted"}
		]}}`))
	})

	subs, err := client.FetchRecentSubmissions(context.Background(), "alice", 20)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, domain.StatusOther, subs[0].Status)
	assert.Equal(t, domain.StatusAccepted, subs[1].Status)
}

func TestSourceFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `oops`},
		{"graphql error", http.StatusOK, `{"errors":[{"message":"rate limited"}]}`},
		{"garbage", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := client.FetchAcceptedSubmissions(context.Background(), "alice", 10)
			require.Error(t, err)
			assert.True(t, IsUnavailable(err))
			assert.True(t, domain.IsNoData(err))
		})
	}
}

func TestFetchProblemCaches(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		req := decodeRequest(t, r)
		assert.Equal(t, "two-sum", req.Variables["titleSlug"])
		w.Write([]byte(`{"data":{"question":{"questionFrontendId":"1","title":"Two Sum","titleSlug":"two-sum","difficulty":"Easy"}}}`))
	})

	for i := 0; i < 3; i++ {
		p, err := client.FetchProblem(context.Background(), "two-sum")
		require.NoError(t, err)
		assert.Equal(t, "1", p.QuestionNumber)
		assert.Equal(t, domain.DifficultyEasy, p.Difficulty)
	}
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchProblemMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"question":null}}`))
	})
	_, err := client.FetchProblem(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, IsUnavailable(err))
}

func TestUserExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if strings.Contains(req.Variables["username"].(string), "ghost") {
			w.Write([]byte(`{"errors":[{"message":"That user does not exist."}],"data":{"matchedUser":null}}`))
			return
		}
		w.Write([]byte(`{"data":{"matchedUser":{"username":"alice"}}}`))
	})

	ok, err := client.UserExists(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.UserExists(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchUserStats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Contains(t, req.Query, "submitStatsGlobal")
		switch req.Variables["username"] {
		case "alice":
			w.Write([]byte(`{"data":{"matchedUser":{
				"submitStatsGlobal":{"acSubmissionNum":[
					{"difficulty":"All","count":120},
					{"difficulty":"Easy","count":60},
					{"difficulty":"Medium","count":45},
					{"difficulty":"Hard","count":15}
				]},
				"profile":{"ranking":123456}
			}}}`))
		case "ghost":
			w.Write([]byte(`{"data":{"matchedUser":null}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})
	ctx := context.Background()

	stats, err := client.FetchUserStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{Easy: 60, Medium: 45, Hard: 15, All: 120, Ranking: 123456}, stats)

	_, err = client.FetchUserStats(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = client.FetchUserStats(ctx, "bob")
	assert.True(t, IsUnavailable(err))
}
