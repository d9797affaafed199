package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// RemoteClassifier calls a hosted text-classification endpoint that speaks
// the Hugging Face inference shape:
//
//	POST {"inputs": "..."}  ->  [[{"label": "positive", "score": 0.93}, ...]]
type RemoteClassifier struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

type RemoteOption func(*RemoteClassifier)

func WithHTTPClient(httpClient *http.Client) RemoteOption {
	return func(c *RemoteClassifier) {
		c.httpClient = httpClient
	}
}

func WithAPIKey(apiKey string) RemoteOption {
	return func(c *RemoteClassifier) {
		c.apiKey = strings.TrimSpace(apiKey)
	}
}

// NewRemoteClassifier builds a client for endpoint.
func NewRemoteClassifier(endpoint string, opts ...RemoteOption) (*RemoteClassifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("sentiment: remote endpoint must not be empty")
	}
	c := &RemoteClassifier{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type remoteRequest struct {
	Inputs string `json:"inputs"`
}

type remoteScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classify posts text and folds the returned class probabilities into one
// result. Any transport or decoding failure is ErrClassificationUnavailable.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) (conversation.SentimentResult, error) {
	body, err := json.Marshal(remoteRequest{Inputs: text})
	if err != nil {
		return conversation.SentimentResult{}, fmt.Errorf("sentiment: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return conversation.SentimentResult{}, fmt.Errorf("sentiment: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return conversation.SentimentResult{}, ctx.Err()
		}
		return conversation.SentimentResult{}, fmt.Errorf("%w: %v", dialogue.ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return conversation.SentimentResult{}, fmt.Errorf("%w: read response: %v", dialogue.ErrClassificationUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return conversation.SentimentResult{}, fmt.Errorf("%w: unexpected status %d: %s",
			dialogue.ErrClassificationUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	scores, err := decodeScores(raw)
	if err != nil {
		return conversation.SentimentResult{}, fmt.Errorf("%w: %v", dialogue.ErrClassificationUnavailable, err)
	}
	return foldScores(scores)
}

// decodeScores accepts both the nested and the flat list the endpoints return.
func decodeScores(raw []byte) ([]remoteScore, error) {
	var nested [][]remoteScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []remoteScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return flat, nil
}

// foldScores picks the most probable class and derives the compound score
// as P(positive) - P(negative).
func foldScores(scores []remoteScore) (conversation.SentimentResult, error) {
	var (
		best     remoteScore
		bestSeen bool
		pos, neg float64
		label    conversation.Label
	)
	for _, s := range scores {
		l, ok := normalizeLabel(s.Label)
		if !ok {
			continue
		}
		switch l {
		case conversation.Positive:
			pos = s.Score
		case conversation.Negative:
			neg = s.Score
		}
		if !bestSeen || s.Score > best.Score {
			best, label, bestSeen = s, l, true
		}
	}
	if !bestSeen {
		return conversation.SentimentResult{}, fmt.Errorf("%w: no recognizable labels", dialogue.ErrClassificationUnavailable)
	}
	return conversation.SentimentResult{Label: label, Score: best.Score, Compound: pos - neg}, nil
}
