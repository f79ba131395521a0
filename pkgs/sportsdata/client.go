package sportsdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/goalpost/prediction-indexer/pkgs/retry"
)

var (
	// ErrNotFinished means the provider has no final score yet
	ErrNotFinished = errors.New("match not finished")
	// ErrRateLimited means the per-minute quota held through every backoff
	// attempt; skip the match this cycle and retry on the next run
	ErrRateLimited = errors.New("sports data provider rate limited")
)

// FinalScore is the provider's settled result for a match
type FinalScore struct {
	MatchID   uint64 `json:"match_id"`
	HomeScore uint64 `json:"home_score"`
	AwayScore uint64 `json:"away_score"`
	Status    string `json:"status"`
}

// Config for the sports data client
type Config struct {
	BaseURL        string
	APIKey         string
	RequestSpacing time.Duration // Minimum gap between requests (provider quota)
	MaxRetries     int           // Backoff attempts on 429
	HTTPTimeout    time.Duration
}

// Client fetches final scores from the external sports data provider.
// The provider enforces a strict per-minute quota, so requests are strictly
// sequential: every call waits out the configured spacing since the last one.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	lastCall time.Time
}

// NewClient creates a sports data client
func NewClient(cfg Config) *Client {
	if cfg.RequestSpacing <= 0 {
		cfg.RequestSpacing = 6500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// GetFinalScore fetches the settled result for one match. Returns
// ErrNotFinished while the match is live or unsettled, and ErrRateLimited
// when 429 responses outlast the backoff budget.
func (c *Client) GetFinalScore(ctx context.Context, matchID uint64) (*FinalScore, error) {
	var score *FinalScore

	err := retry.Do(ctx, retry.Config{
		MaxAttempts: c.cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Retryable: func(err error) bool {
			// Only quota responses are worth backing off on here
			return errors.Is(err, errTooManyRequests)
		},
	}, "sportsdata.final_score", func() error {
		c.pace(ctx)
		fetched, err := c.fetchScore(ctx, matchID)
		if err != nil {
			return err
		}
		score = fetched
		return nil
	})

	if errors.Is(err, errTooManyRequests) {
		log.Warnf("match %d skipped this cycle: %v", matchID, ErrRateLimited)
		return nil, ErrRateLimited
	}
	if err != nil {
		return nil, err
	}

	if !isFinished(score.Status) {
		return nil, ErrNotFinished
	}
	return score, nil
}

var errTooManyRequests = errors.New("429 from provider")

// pace blocks until the configured spacing since the previous request has
// elapsed. Serializes all outbound calls.
func (c *Client) pace(ctx context.Context) {
	c.mu.Lock()
	wait := c.cfg.RequestSpacing - time.Since(c.lastCall)
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	c.lastCall = time.Now()
	c.mu.Unlock()
}

func (c *Client) fetchScore(ctx context.Context, matchID uint64) (*FinalScore, error) {
	url := fmt.Sprintf("%s/matches/%d/score", strings.TrimRight(c.cfg.BaseURL, "/"), matchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, errTooManyRequests
	case http.StatusNotFound:
		return nil, ErrNotFinished
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("score request: unexpected status %d: %s", resp.StatusCode, body)
	}

	var score FinalScore
	if err := json.NewDecoder(resp.Body).Decode(&score); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}
	score.MatchID = matchID
	return &score, nil
}

func isFinished(status string) bool {
	switch strings.ToUpper(status) {
	case "FINISHED", "FT", "AET", "PEN", "AWARDED":
		return true
	}
	return false
}
