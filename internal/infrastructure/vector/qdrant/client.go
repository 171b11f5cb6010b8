package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/infrastructure/resilience"
)

// Vector names inside the points collection. Every chunk carries both a dense
// embedding and a sparse lexical encoding, so one store serves both retrieval
// legs.
const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (c *Client) searchDense(ctx context.Context, vector []float32, scope domain.Scope, limit int) ([]domain.CandidateChunk, error) {
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   denseVectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if filter := scopeFilter(scope); filter != nil {
		reqBody["filter"] = filter
	}

	hits, err := c.search(ctx, "qdrant.search_dense", reqBody)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CandidateChunk, 0, len(hits))
	for _, hit := range hits {
		chunk := hit.toChunk()
		chunk.SemanticScore = hit.Score
		out = append(out, chunk)
	}
	return out, nil
}

func (c *Client) searchSparse(ctx context.Context, query sparseVector, scope domain.Scope, limit int) ([]domain.CandidateChunk, error) {
	if len(query.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": query,
		},
		"limit":        limit,
		"with_payload": true,
	}
	if filter := scopeFilter(scope); filter != nil {
		reqBody["filter"] = filter
	}

	hits, err := c.search(ctx, "qdrant.search_sparse", reqBody)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CandidateChunk, 0, len(hits))
	for _, hit := range hits {
		chunk := hit.toChunk()
		chunk.LexicalScore = hit.Score
		out = append(out, chunk)
	}
	return out, nil
}

// scopeFilter maps a query scope to a Qdrant payload filter. The all scope
// searches every collection; external never reaches the local store.
func scopeFilter(scope domain.Scope) map[string]any {
	var collection string
	switch scope.Kind {
	case domain.ScopePapersOnly:
		collection = "papers"
	case domain.ScopeCollection:
		collection = scope.Collection
	default:
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "collection",
				"match": map[string]any{
					"value": collection,
				},
			},
		},
	}
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (h searchHit) toChunk() domain.CandidateChunk {
	id := getStringPayload(h.Payload, "chunk_id")
	if id == "" {
		id = fmt.Sprintf("%v", h.ID)
	}
	return domain.CandidateChunk{
		ID:         id,
		DocumentID: getStringPayload(h.Payload, "doc_id"),
		Title:      getStringPayload(h.Payload, "title"),
		Collection: getStringPayload(h.Payload, "collection"),
		Text:       getStringPayload(h.Payload, "text"),
		Origin:     domain.OriginLocal,
	}
}

func (c *Client) search(ctx context.Context, operation string, reqBody map[string]any) ([]searchHit, error) {
	var hits []searchHit
	call := func(ctx context.Context) error {
		body, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal search body: %w", err)
		}

		url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant search request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &HTTPStatusError{
				Operation:  operation,
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       strings.TrimSpace(string(respBody)),
			}
		}

		var searchResp struct {
			Result []searchHit `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		hits = searchResp.Result
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrSourceUnavailable, operation, err)
	}
	return hits, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
