package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/dkoren/research-assistant/internal/adapters/http"
	"github.com/dkoren/research-assistant/internal/config"
	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/core/ports"
	"github.com/dkoren/research-assistant/internal/core/usecase"
	"github.com/dkoren/research-assistant/internal/infrastructure/llm/ollama"
	"github.com/dkoren/research-assistant/internal/infrastructure/queue/nats"
	"github.com/dkoren/research-assistant/internal/infrastructure/rerank"
	"github.com/dkoren/research-assistant/internal/infrastructure/repository/postgres"
	"github.com/dkoren/research-assistant/internal/infrastructure/resilience"
	"github.com/dkoren/research-assistant/internal/infrastructure/vector/qdrant"
	"github.com/dkoren/research-assistant/internal/infrastructure/websearch/searxng"
	"github.com/dkoren/research-assistant/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Answers *usecase.AnswerService
	Handler http.Handler
	Metrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	settings, err := cfg.PipelineSettings()
	if err != nil {
		return nil, fmt.Errorf("load pipeline settings: %w", err)
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	runRepo := postgres.NewRunRepository(db)
	if err := runRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: executor,
	})
	generator := ollama.NewGenerator(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)

	vectorClient := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		ResilienceExecutor: executor,
	})
	semantic := qdrant.NewSemanticSearch(vectorClient, embedder)
	lexical := qdrant.NewLexicalSearch(vectorClient)

	options := usecase.AnswerServiceOptions{}

	if cfg.SearxNGURL != "" {
		options.WebSearch = searxng.NewWithOptions(cfg.SearxNGURL, searxng.Options{
			ResilienceExecutor: executor,
		})
	}

	rerankMode := cfg.RerankMode
	if rerankMode == "auto" {
		rerankMode = "llm"
		if cfg.RerankServiceURL != "" {
			rerankMode = "service"
		}
	}
	switch rerankMode {
	case "llm":
		options.Reranker = rerank.NewLLMReranker(generator)
	case "service":
		if cfg.RerankServiceURL == "" {
			_ = db.Close()
			return nil, fmt.Errorf("rerank mode %q requires RERANK_SERVICE_URL", rerankMode)
		}
		options.Reranker = rerank.NewServiceReranker(cfg.RerankServiceURL, rerank.ServiceOptions{
			Model:              cfg.RerankModel,
			ResilienceExecutor: executor,
		})
	case "off", "":
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unknown rerank mode %q", cfg.RerankMode)
	}

	var progress *nats.ProgressPublisher
	if cfg.NATSURL != "" {
		progress, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSProgressSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			slog.Warn("progress_publisher_unavailable", "error", err)
		} else {
			options.Progress = progress
		}
	}

	httpMetrics := metrics.NewHTTPServerMetrics()
	pipelineMetrics := metrics.NewPipelineMetrics(httpMetrics.Registry())
	options.RunRecorder = &instrumentedRecorder{
		next:    runRepo,
		metrics: pipelineMetrics,
	}

	answers := usecase.NewAnswerService(semantic, lexical, generator, settings, options)

	router := httpadapter.NewRouter(answers, runRepo, httpadapter.RouterOptions{
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxInFlight:    cfg.APIMaxInFlight,
		QueueTimeout:   time.Duration(cfg.APIQueueTimeoutSecs) * time.Second,
		MetricsHandler: httpMetrics.Handler(),
	})

	return &App{
		Config:  cfg,
		Answers: answers,
		Handler: httpMetrics.Middleware("api", router.Handler()),
		Metrics: httpMetrics,

		closeFn: func() {
			if progress != nil {
				progress.Close()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// instrumentedRecorder persists the audit row and feeds the run counters from
// the same record so metrics and storage never disagree.
type instrumentedRecorder struct {
	next    ports.RunRecorder
	metrics *metrics.PipelineMetrics
}

func (r *instrumentedRecorder) RecordRun(ctx context.Context, record domain.RunRecord) error {
	r.metrics.ObserveRun(
		string(record.Label),
		record.Attempts,
		record.SourceCount,
		record.Escalated,
		record.NoEvidence,
		record.SupportRatio,
		record.Duration,
	)
	return r.next.RecordRun(ctx, record)
}
