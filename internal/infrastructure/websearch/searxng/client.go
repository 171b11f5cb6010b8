package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/infrastructure/resilience"
)

// Client queries a SearXNG metasearch instance over its JSON API. Results
// come back as web-origin candidate chunks; they carry no retrieval scores
// and earn their place in the pool through grading like any other candidate.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL string) *Client {
	return NewWithOptions(baseURL, Options{})
}

func NewWithOptions(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type searchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.CandidateChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}

	var results []searchResult
	call := func(ctx context.Context) error {
		endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("searxng request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			if msg := strings.TrimSpace(string(body)); msg != "" {
				return fmt.Errorf("searxng status: %s: %s", resp.Status, msg)
			}
			return fmt.Errorf("searxng status: %s", resp.Status)
		}

		var searchResp struct {
			Results []searchResult `json:"results"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		results = searchResp.Results
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "searxng.search", call, classifySearchError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, "web search", err)
	}

	out := make([]domain.CandidateChunk, 0, limit)
	for _, result := range results {
		text := strings.TrimSpace(result.Content)
		if text == "" {
			continue
		}
		out = append(out, domain.CandidateChunk{
			ID:         resultID(result.URL),
			DocumentID: result.URL,
			Title:      strings.TrimSpace(result.Title),
			Text:       text,
			Origin:     domain.OriginWeb,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// resultID derives a stable chunk ID from the result URL so the same page
// returned across escalations deduplicates in the candidate pool.
func resultID(rawURL string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(rawURL))
	return fmt.Sprintf("web:%x", h.Sum64())
}
