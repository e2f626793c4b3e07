// Package leetcode reads public submission and problem data from the
// LeetCode GraphQL API
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leettogether/leetstreak/internal/config"
	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/metrics"
)

const acceptedSubmissionsQuery = `
query recentAcSubmissions($username: String!, $limit: Int!) {
  recentAcSubmissionList(username: $username, limit: $limit) {
    title
    titleSlug
    timestamp
  }
}`

const recentSubmissionsQuery = `
query recentSubmissions($username: String!, $limit: Int!) {
  recentSubmissionList(username: $username, limit: $limit) {
    title
    titleSlug
    timestamp
    statusDisplay
  }
}`

const problemQuery = `
query questionData($titleSlug: String!) {
  question(titleSlug: $titleSlug) {
    questionFrontendId
    title
    titleSlug
    difficulty
  }
}`

const userQuery = `
query userPublicProfile($username: String!) {
  matchedUser(username: $username) {
    username
  }
}`

const userStatsQuery = `
query userStats($username: String!) {
  matchedUser(username: $username) {
    submitStatsGlobal {
      acSubmissionNum {
        difficulty
        count
      }
    }
    profile {
      ranking
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

type submissionNode struct {
	Title         string `json:"title"`
	TitleSlug     string `json:"titleSlug"`
	Timestamp     string `json:"timestamp"`
	StatusDisplay string `json:"statusDisplay"`
}

// Client is a LeetCode GraphQL client. Problem metadata is cached for the
// life of the client
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	problems map[string]domain.Problem
}

// NewClient creates a client from configuration
func NewClient(cfg *config.LeetCodeConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		problems:   make(map[string]domain.Problem),
	}
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{
		Query:     strings.TrimSpace(query),
		Variables: variables,
	})
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://leetcode.com")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", domain.ErrSourceFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", domain.ErrSourceFailure, resp.Status)
	}

	var gr graphqlResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return fmt.Errorf("%w: decoding response: %v", domain.ErrSourceFailure, err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("%w: graphql: %s", domain.ErrSourceFailure, gr.Errors[0].Message)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", domain.ErrSourceFailure, err)
	}
	return nil
}

// FetchAcceptedSubmissions returns up to limit of the handle's most recent
// accepted submissions, oldest first
func (c *Client) FetchAcceptedSubmissions(ctx context.Context, handle string, limit int) ([]domain.Submission, error) {
	var out struct {
		List []submissionNode `json:"recentAcSubmissionList"`
	}
	vars := map[string]any{"username": handle, "limit": limit}
	start := time.Now()
	err := c.query(ctx, acceptedSubmissionsQuery, vars, &out)
	metrics.SourceLatency.Observe(time.Since(start).Seconds())
	metrics.SourceFetches.WithLabelValues(metrics.ResultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("fetching accepted submissions for %s: %w", handle, err)
	}
	return c.convert(out.List, domain.StatusAccepted), nil
}

// FetchRecentSubmissions returns up to limit of the handle's most recent
// submissions of any verdict, oldest first
func (c *Client) FetchRecentSubmissions(ctx context.Context, handle string, limit int) ([]domain.Submission, error) {
	var out struct {
		List []submissionNode `json:"recentSubmissionList"`
	}
	vars := map[string]any{"username": handle, "limit": limit}
	if err := c.query(ctx, recentSubmissionsQuery, vars, &out); err != nil {
		return nil, fmt.Errorf("fetching recent submissions for %s: %w", handle, err)
	}
	return c.convert(out.List, ""), nil
}

func (c *Client) convert(nodes []submissionNode, status domain.SubmissionStatus) []domain.Submission {
	subs := make([]domain.Submission, 0, len(nodes))
	for _, n := range nodes {
		secs, err := strconv.ParseInt(n.Timestamp, 10, 64)
		if err != nil || n.TitleSlug == "" {
			c.logger.Debug("skipping malformed submission", "slug", n.TitleSlug, "timestamp", n.Timestamp)
			continue
		}
		st := status
		if st == "" {
			st = domain.ParseStatus(n.StatusDisplay)
		}
		subs = append(subs, domain.Submission{
			ProblemID: n.TitleSlug,
			Title:     n.Title,
			Timestamp: time.Unix(secs, 0).UTC(),
			Status:    st,
		})
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Timestamp.Before(subs[j].Timestamp) })
	return subs
}

// FetchProblem returns a problem's number and difficulty. Successful
// lookups are cached
func (c *Client) FetchProblem(ctx context.Context, slug string) (domain.Problem, error) {
	c.mu.RLock()
	p, ok := c.problems[slug]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	var out struct {
		Question *struct {
			QuestionFrontendID string `json:"questionFrontendId"`
			Title              string `json:"title"`
			TitleSlug          string `json:"titleSlug"`
			Difficulty         string `json:"difficulty"`
		} `json:"question"`
	}
	if err := c.query(ctx, problemQuery, map[string]any{"titleSlug": slug}, &out); err != nil {
		return domain.Problem{}, fmt.Errorf("fetching problem %s: %w", slug, err)
	}
	if out.Question == nil {
		return domain.Problem{}, fmt.Errorf("problem %s: %w", slug, domain.ErrNotFound)
	}

	p = domain.Problem{
		Slug:           slug,
		Title:          out.Question.Title,
		QuestionNumber: out.Question.QuestionFrontendID,
		Difficulty:     domain.ParseDifficulty(out.Question.Difficulty),
	}
	c.mu.Lock()
	c.problems[slug] = p
	c.mu.Unlock()
	return p, nil
}

// UserExists reports whether a public profile exists for handle
func (c *Client) UserExists(ctx context.Context, handle string) (bool, error) {
	var out struct {
		MatchedUser *struct {
			Username string `json:"username"`
		} `json:"matchedUser"`
	}
	err := c.query(ctx, userQuery, map[string]any{"username": handle}, &out)
	if err != nil {
		// LeetCode reports unknown users as a GraphQL error
		if strings.Contains(err.Error(), "does not exist") {
			return false, nil
		}
		return false, fmt.Errorf("looking up user %s: %w", handle, err)
	}
	return out.MatchedUser != nil, nil
}

// FetchUserStats returns the handle's all-time solved counts and ranking
func (c *Client) FetchUserStats(ctx context.Context, handle string) (domain.UserStats, error) {
	var out struct {
		MatchedUser *struct {
			SubmitStats struct {
				AcSubmissionNum []struct {
					Difficulty string `json:"difficulty"`
					Count      int    `json:"count"`
				} `json:"acSubmissionNum"`
			} `json:"submitStatsGlobal"`
			Profile *struct {
				Ranking int `json:"ranking"`
			} `json:"profile"`
		} `json:"matchedUser"`
	}
	if err := c.query(ctx, userStatsQuery, map[string]any{"username": handle}, &out); err != nil {
		return domain.UserStats{}, fmt.Errorf("fetching stats for %s: %w", handle, err)
	}
	if out.MatchedUser == nil {
		return domain.UserStats{}, fmt.Errorf("stats for %s: %w", handle, domain.ErrNotFound)
	}

	var stats domain.UserStats
	for _, n := range out.MatchedUser.SubmitStats.AcSubmissionNum {
		switch n.Difficulty {
		case "All":
			stats.All = n.Count
		default:
			switch domain.ParseDifficulty(n.Difficulty) {
			case domain.DifficultyEasy:
				stats.Easy = n.Count
			case domain.DifficultyMedium:
				stats.Medium = n.Count
			case domain.DifficultyHard:
				stats.Hard = n.Count
			}
		}
	}
	if p := out.MatchedUser.Profile; p != nil {
		stats.Ranking = p.Ranking
	}
	return stats, nil
}

// IsUnavailable reports whether err came from the remote service rather
// than from a missing record
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrSourceFailure)
}
