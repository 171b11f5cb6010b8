package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
)

// RunStore is the read side of the run audit log served by /v1/runs.
type RunStore interface {
	GetByID(ctx context.Context, id string) (*domain.RunRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// RouterOptions tunes the traffic control wrapped around the mux. Zero values
// disable the corresponding middleware.
type RouterOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
	MetricsHandler http.Handler
}

type Router struct {
	answers ports.QuestionAnswerer
	runs    RunStore
	opts    RouterOptions
}

func NewRouter(answers ports.QuestionAnswerer, runs RunStore, opts RouterOptions) *Router {
	return &Router{
		answers: answers,
		runs:    runs,
		opts:    opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/answers", rt.postAnswer)
	mux.HandleFunc("/v1/answers/agentic", rt.postAgenticAnswer)
	mux.HandleFunc("/v1/runs", rt.listRuns)
	mux.HandleFunc("/v1/runs/", rt.getRunByID)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("/metrics", rt.opts.MetricsHandler)
	}

	var handler http.Handler = mux
	if rt.opts.MaxInFlight > 0 {
		queueTimeout := rt.opts.QueueTimeout
		if queueTimeout <= 0 {
			queueTimeout = 5 * time.Second
		}
		handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, queueTimeout)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askPayload struct {
	Question         string  `json:"question"`
	Scope            string  `json:"scope"`
	MaxSources       int     `json:"max_sources"`
	MinRelevance     float64 `json:"min_relevance"`
	MaxRetries       *int    `json:"max_retries"`
	IncludeCitations bool    `json:"include_citations"`
}

func (p askPayload) toRequest() ports.AskRequest {
	req := ports.AskRequest{
		Question:         p.Question,
		Scope:            p.Scope,
		MaxSources:       p.MaxSources,
		MinRelevance:     p.MinRelevance,
		MaxRetries:       -1,
		IncludeCitations: p.IncludeCitations,
	}
	if p.MaxRetries != nil {
		req.MaxRetries = *p.MaxRetries
	}
	return req
}

func (rt *Router) postAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload askPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.answers.Answer(r.Context(), payload.toRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) postAgenticAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var payload askPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.answers.AgenticAnswer(r.Context(), payload.toRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer between 1 and 200"})
			return
		}
		limit = parsed
	}

	records, err := rt.runs.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunViews(records)})
}

func (rt *Router) getRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	record, err := rt.runs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunView(*record))
}

// runView is the wire shape for audit records. Duration is reported in
// milliseconds to match what the store persists.
type runView struct {
	ID           string  `json:"id"`
	Question     string  `json:"question"`
	Scope        string  `json:"scope"`
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	Attempts     int     `json:"attempts"`
	Escalated    bool    `json:"escalated"`
	SourceCount  int     `json:"source_count"`
	SupportRatio float64 `json:"support_ratio"`
	NoEvidence   bool    `json:"no_evidence"`
	DurationMs   int64   `json:"duration_ms"`
	CreatedAt    string  `json:"created_at"`
}

func toRunView(record domain.RunRecord) runView {
	return runView{
		ID:           record.ID,
		Question:     record.Question,
		Scope:        record.Scope,
		Label:        string(record.Label),
		Confidence:   record.Confidence,
		Attempts:     record.Attempts,
		Escalated:    record.Escalated,
		SourceCount:  record.SourceCount,
		SupportRatio: record.SupportRatio,
		NoEvidence:   record.NoEvidence,
		DurationMs:   record.Duration.Milliseconds(),
		CreatedAt:    record.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRunViews(records []domain.RunRecord) []runView {
	views := make([]runView, 0, len(records))
	for _, record := range records {
		views = append(views, toRunView(record))
	}
	return views
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
