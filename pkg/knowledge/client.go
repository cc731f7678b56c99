package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultLimit = 3

// Hit is one knowledge-base search result.
type Hit struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// Config controls the knowledge client.
type Config struct {
	BaseURL  string
	APIKey   string // empty = unauthenticated
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client queries the knowledge-base service with short-lived caching.
// Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *Cache
}

// NewClient creates a knowledge client, filling zero config fields with
// defaults (10s request timeout, 5m cache TTL).
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cache:      NewCache(ttl),
	}
}

// searchResponse is the knowledge service's wire format.
type searchResponse struct {
	Hits []Hit `json:"hits"`
}

// Search returns up to limit hits for the query, best first. An empty
// query returns no hits without a network call.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	key := fmt.Sprintf("%d\x00%s", limit, strings.ToLower(query))
	if hits, ok := c.cache.Get(key); ok {
		return hits, nil
	}

	u, err := url.Parse(c.baseURL + "/api/v1/search")
	if err != nil {
		return nil, fmt.Errorf("knowledge base URL: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search knowledge base: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge base returned HTTP %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := payload.Hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	c.cache.Set(key, hits)
	return hits, nil
}
