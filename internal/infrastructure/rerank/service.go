package rerank

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

// ServiceReranker calls a cross-encoder reranking service speaking the
// common rerank API shape: POST /rerank with a query and document list,
// scored results keyed by input index.
type ServiceReranker struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type ServiceOptions struct {
	Model              string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewServiceReranker(baseURL string, options ServiceOptions) *ServiceReranker {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ServiceReranker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      options.Model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

func (r *ServiceReranker) Rerank(ctx context.Context, query string, candidates []domain.CandidateChunk) ([]domain.CandidateChunk, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	documents := make([]string, 0, len(candidates))
	for _, chunk := range candidates {
		documents = append(documents, chunk.Text)
	}
	reqBody := map[string]any{
		"query":     query,
		"documents": documents,
	}
	if r.model != "" {
		reqBody["model"] = r.model
	}

	var parsed struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	call := func(ctx context.Context) error {
		body, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal rerank request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create rerank request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("rerank request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			if msg := strings.TrimSpace(string(respBody)); msg != "" {
				return fmt.Errorf("rerank status: %s: %s", resp.Status, msg)
			}
			return fmt.Errorf("rerank status: %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode rerank response: %w", err)
		}
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "rerank.service", call, nil)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	// The service returns results sorted by score; rebuild the candidate
	// order from the index mapping and drop out-of-range entries.
	out := make([]domain.CandidateChunk, 0, len(candidates))
	seen := make(map[int]struct{}, len(parsed.Results))
	for _, result := range parsed.Results {
		if result.Index < 0 || result.Index >= len(candidates) {
			continue
		}
		if _, dup := seen[result.Index]; dup {
			continue
		}
		seen[result.Index] = struct{}{}
		chunk := candidates[result.Index]
		chunk.RerankScore = result.Score
		chunk.Reranked = true
		out = append(out, chunk)
	}
	for i, chunk := range candidates {
		if _, ok := seen[i]; !ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}
