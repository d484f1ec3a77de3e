package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/services/vectorstore"
)

// Client is a minimal REST client to Qdrant. The collection is expected to
// exist already with cosine distance; ingestion happens out of band.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds the connection settings for the Qdrant index
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var _ vectorstore.Store = (*Client)(nil)

// NewClient creates a new Qdrant client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: URL is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

type searchRequest struct {
	Vector         []float32     `json:"vector"`
	Limit          int           `json:"limit"`
	ScoreThreshold float64       `json:"score_threshold,omitempty"`
	WithPayload    bool          `json:"with_payload"`
	Filter         *searchFilter `json:"filter,omitempty"`
}

type searchFilter struct {
	Must []fieldCondition `json:"must"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type matchValue struct {
	Value interface{} `json:"value"`
}

type searchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// Search returns up to limit nearest neighbors of vector whose score is at
// least threshold. A nil filter searches the whole collection.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, threshold float64, filter *vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	body := searchRequest{
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: threshold,
		WithPayload:    true,
	}
	if filter != nil {
		var conditions []fieldCondition
		if filter.Chapter != 0 {
			conditions = append(conditions, fieldCondition{Key: "chapter", Match: matchValue{Value: filter.Chapter}})
		}
		if filter.Section != "" {
			conditions = append(conditions, fieldCondition{Key: "section", Match: matchValue{Value: filter.Section}})
		}
		if len(conditions) > 0 {
			body.Filter = &searchFilter{Must: conditions}
		}
	}

	start := time.Now()
	var resp searchResponse
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.postJSON(ctx, "search", url, body, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vectorstore.SearchResult{
			ID:      idString(r.ID),
			Score:   r.Score,
			Payload: parsePayload(r.Payload),
		})
	}

	c.logger.Debug("vector search completed",
		zap.Int("results", len(results)),
		zap.Float64("threshold", threshold),
		zap.Duration("latency", time.Since(start)))

	return results, nil
}

// HealthCheck verifies the index is reachable and the collection exists
func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &vectorstore.Error{Op: "health", Err: err}
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &vectorstore.Error{Op: "health", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &vectorstore.Error{Op: "health", StatusCode: resp.StatusCode, Retryable: isRetryableStatus(resp.StatusCode)}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op, url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &vectorstore.Error{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &vectorstore.Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &vectorstore.Error{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &vectorstore.Error{Op: op, StatusCode: resp.StatusCode, Retryable: isRetryableStatus(resp.StatusCode)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &vectorstore.Error{Op: op, Err: err}
		}
	}
	return nil
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// parsePayload reads a chunk payload, accepting both the current and the
// legacy field names used by older ingestion runs ("content" for "text",
// "file" for "section").
func parsePayload(payload map[string]interface{}) vectorstore.ChunkPayload {
	var p vectorstore.ChunkPayload
	if v, ok := payload["text"].(string); ok && v != "" {
		p.Text = v
	} else if v, ok := payload["content"].(string); ok {
		p.Text = v
	}
	if v, ok := payload["section"].(string); ok && v != "" {
		p.Section = v
	} else if v, ok := payload["file"].(string); ok {
		p.Section = v
	}
	if v, ok := payload["chapter"].(float64); ok {
		p.Chapter = int(v)
	}
	if v, ok := payload["page"].(float64); ok {
		page := int(v)
		p.Page = &page
	}
	return p
}

// idString renders a point ID, which Qdrant may return as either a number
// or a UUID string.
func idString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
