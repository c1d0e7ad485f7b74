// chainfeed-backfill drains the system of record into the activity index in
// one shot, for operator-driven backfills outside the job system.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainfeedhq/chainfeed/internal/backfill"
	"github.com/chainfeedhq/chainfeed/internal/config"
	"github.com/chainfeedhq/chainfeed/internal/index"
	"github.com/chainfeedhq/chainfeed/internal/logging"
	"github.com/chainfeedhq/chainfeed/internal/source/mongo"
	"github.com/chainfeedhq/chainfeed/internal/store/elastic"
	"github.com/chainfeedhq/chainfeed/internal/store/retry"
)

func main() {
	configDir := flag.String("config", "config", "configuration directory")
	flag.Parse()

	cfg := config.MustLoad(*configDir)

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("interrupt received, stopping after current batch")
		cancel()
	}()

	client, err := elastic.NewClient(cfg.Elastic)
	if err != nil {
		logger.Error("failed to create store client", "error", err.Error())
		os.Exit(1)
	}
	store := retry.New(client, logger)
	writer := index.NewWriter(store, cfg.Index.Name, logger)

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connectCancel()
	reader, err := mongo.NewReader(connectCtx, cfg.Source)
	if err != nil {
		logger.Error("failed to connect to source", "error", err.Error())
		os.Exit(1)
	}
	defer reader.Close(context.Background())

	start := time.Now()
	written, err := backfill.NewRunner(reader, writer, logger).Run(ctx)
	if err != nil {
		logger.Error("backfill failed",
			"written", written,
			"elapsed", time.Since(start).String(),
			"error", err.Error(),
		)
		os.Exit(1)
	}
	logger.Info("backfill finished",
		"written", written,
		"elapsed", time.Since(start).String(),
	)
}
