// Command progress-tail follows pipeline progress events from NATS and prints
// one line per state transition. Useful when debugging a slow or retrying run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkoren/research-assistant/internal/config"
	"github.com/dkoren/research-assistant/internal/core/domain"
	"github.com/dkoren/research-assistant/internal/infrastructure/queue/nats"
	"github.com/dkoren/research-assistant/internal/observability/logging"
)

func main() {
	runID := flag.String("run", ">", "run id to follow, default follows every run")
	flag.Parse()

	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("progress-tail", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := nats.New(cfg.NATSURL, cfg.NATSProgressSubject)
	if err != nil {
		slog.Error("nats_connect_failed", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	slog.Info("following_progress", "subject", cfg.NATSProgressSubject, "run", *runID)
	err = publisher.SubscribeRun(ctx, *runID, func(event domain.ProgressEvent) {
		fmt.Printf("%s run=%s attempt=%d state=%s %s\n",
			event.At.Format("15:04:05.000"), event.RunID, event.Attempt, event.State, event.Detail)
	})
	if err != nil {
		slog.Error("subscribe_failed", "error", err)
		os.Exit(1)
	}
}
