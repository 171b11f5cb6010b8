package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

type fakeAnswerer struct {
	lastRequest ports.AskRequest
	answer      *domain.Answer
	agentic     *domain.AgenticAnswer
	err         error
}

func (f *fakeAnswerer) Answer(_ context.Context, req ports.AskRequest) (*domain.Answer, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeAnswerer) AgenticAnswer(_ context.Context, req ports.AskRequest) (*domain.AgenticAnswer, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.agentic, nil
}

type fakeRunStore struct {
	record    *domain.RunRecord
	records   []domain.RunRecord
	err       error
	lastLimit int
}

func (f *fakeRunStore) GetByID(_ context.Context, _ string) (*domain.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func (f *fakeRunStore) ListRecent(_ context.Context, limit int) ([]domain.RunRecord, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func newTestRouter(answers *fakeAnswerer, runs *fakeRunStore, opts RouterOptions) http.Handler {
	if answers == nil {
		answers = &fakeAnswerer{}
	}
	if runs == nil {
		runs = &fakeRunStore{}
	}
	return NewRouter(answers, runs, opts).Handler()
}

func TestPostAnswerReturnsAnswer(t *testing.T) {
	answers := &fakeAnswerer{
		answer: &domain.Answer{
			Text:      "attention weighs token interactions",
			Citations: []string{"c1"},
		},
	}
	handler := newTestRouter(answers, nil, RouterOptions{})

	body := `{"question": "what is attention?", "scope": "papers_only", "include_citations": true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/answers", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}

	var parsed domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.Text != answers.answer.Text {
		t.Fatalf("unexpected answer text %q", parsed.Text)
	}
	if answers.lastRequest.Scope != "papers_only" {
		t.Fatalf("scope not forwarded, got %q", answers.lastRequest.Scope)
	}
	if answers.lastRequest.MaxRetries != -1 {
		t.Fatalf("absent max_retries should map to -1, got %d", answers.lastRequest.MaxRetries)
	}
}

func TestPostAnswerHonorsExplicitZeroRetries(t *testing.T) {
	answers := &fakeAnswerer{agentic: &domain.AgenticAnswer{}}
	handler := newTestRouter(answers, nil, RouterOptions{})

	body := `{"question": "q", "max_retries": 0}`
	req := httptest.NewRequest(http.MethodPost, "/v1/answers/agentic", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if answers.lastRequest.MaxRetries != 0 {
		t.Fatalf("explicit zero retries lost, got %d", answers.lastRequest.MaxRetries)
	}
}

func TestPostAnswerRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/answers", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestPostAnswerMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/answers", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestErrorMappingOnAnswerEndpoints(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid scope", domain.WrapError(domain.ErrInvalidScope, "parse scope", domain.ErrInvalidInput), http.StatusBadRequest},
		{"source down", domain.WrapError(domain.ErrSourceUnavailable, "semantic search", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"generation", domain.WrapError(domain.ErrGeneration, "synthesis", context.DeadlineExceeded), http.StatusBadGateway},
		{"canceled", domain.WrapError(domain.ErrRunCanceled, "agentic run", context.Canceled), http.StatusRequestTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestRouter(&fakeAnswerer{err: tc.err}, nil, RouterOptions{})

			req := httptest.NewRequest(http.MethodPost, "/v1/answers/agentic", strings.NewReader(`{"question":"q"}`))
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestGetRunByIDNotFound(t *testing.T) {
	runs := &fakeRunStore{err: domain.WrapError(domain.ErrRunNotFound, "get run", domain.ErrRunNotFound)}
	handler := newTestRouter(nil, runs, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestListRunsReturnsViews(t *testing.T) {
	created := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	runs := &fakeRunStore{
		records: []domain.RunRecord{
			{
				ID:           "run-1",
				Question:     "what is BM25?",
				Scope:        "all",
				Label:        domain.AssessmentCorrect,
				Confidence:   0.91,
				Attempts:     1,
				SourceCount:  4,
				SupportRatio: 1,
				Duration:     2300 * time.Millisecond,
				CreatedAt:    created,
			},
		},
	}
	handler := newTestRouter(nil, runs, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if runs.lastLimit != 5 {
		t.Fatalf("limit not forwarded, got %d", runs.lastLimit)
	}

	var parsed struct {
		Runs []runView `json:"runs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(parsed.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(parsed.Runs))
	}
	view := parsed.Runs[0]
	if view.Label != "CORRECT" || view.DurationMs != 2300 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.CreatedAt != "2026-08-29T10:00:00Z" {
		t.Fatalf("unexpected created_at %q", view.CreatedAt)
	}
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	handler := newTestRouter(nil, nil, RouterOptions{})

	for _, raw := range []string{"0", "-3", "9999", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit="+raw, nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusBadRequest {
			t.Fatalf("limit %q: expected 400, got %d", raw, res.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(nil, nil, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
