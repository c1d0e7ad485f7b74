package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/chainfeedhq/chainfeed/internal/backfill"
	"github.com/chainfeedhq/chainfeed/internal/config"
	"github.com/chainfeedhq/chainfeed/internal/consistency"
	"github.com/chainfeedhq/chainfeed/internal/index"
	"github.com/chainfeedhq/chainfeed/internal/ingest"
	"github.com/chainfeedhq/chainfeed/internal/logging"
	"github.com/chainfeedhq/chainfeed/internal/schedule"
	"github.com/chainfeedhq/chainfeed/internal/source/mongo"
	"github.com/chainfeedhq/chainfeed/internal/store/elastic"
	"github.com/chainfeedhq/chainfeed/internal/store/retry"
	"github.com/chainfeedhq/chainfeed/internal/store/types"
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

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	client, err := elastic.NewClient(cfg.Elastic)
	if err != nil {
		logger.Error("failed to create store client", "error", err.Error())
		os.Exit(1)
	}
	store := retry.New(client, logger)

	nc, err := nats.Connect(cfg.Nats.URL, nats.Name("chainfeed"))
	if err != nil {
		logger.Error("failed to connect to nats", "url", cfg.Nats.URL, "error", err.Error())
		os.Exit(1)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		logger.Error("failed to create jetstream context", "error", err.Error())
		os.Exit(1)
	}
	publisher, err := schedule.NewPublisher(initCtx, js, cfg.Schedule, logger)
	if err != nil {
		logger.Error("failed to create job publisher", "error", err.Error())
		os.Exit(1)
	}

	lifecycle := index.NewLifecycle(store, cfg.Index, publisher, logger)
	if err := lifecycle.InitIndex(initCtx); err != nil {
		logger.Error("failed to initialize index", "error", err.Error())
		os.Exit(1)
	}

	writer := index.NewWriter(store, cfg.Index.Name, logger)

	consumer, err := ingest.NewConsumer(nc, cfg.Ingest, writer, logger)
	if err != nil {
		logger.Error("failed to create ingest consumer", "error", err.Error())
		os.Exit(1)
	}

	runner, err := schedule.NewRunner(nc, cfg.Schedule, logger)
	if err != nil {
		logger.Error("failed to create job runner", "error", err.Error())
		os.Exit(1)
	}
	registerJobHandlers(runner, consistency.NewEngine(store, cfg.Index.Name, logger), store, cfg.Index.Name, cfg.Source, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	done := make(chan struct{}, 2)
	go func() {
		if err := consumer.Run(runCtx); err != nil {
			logger.Error("ingest consumer exited", "error", err.Error())
		}
		done <- struct{}{}
	}()
	go func() {
		if err := runner.Run(runCtx); err != nil {
			logger.Error("job runner exited", "error", err.Error())
		}
		done <- struct{}{}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	runCancel()
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			logger.Warn("shutdown timed out")
			return
		}
	}
	logger.Info("stopped")
}

// registerJobHandlers wires the job kinds to their executors. Propagation
// jobs handle one batch per delivery and requeue while work remains.
func registerJobHandlers(runner *schedule.Runner, eng *consistency.Engine, store types.Store, defaultIndex string, srcCfg mongo.Config, logger *slog.Logger) {
	runner.Handle(schedule.JobCollectionRefresh, func(ctx context.Context, payload json.RawMessage) error {
		var req schedule.CollectionRefreshPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		keepGoing, err := eng.RefreshCollectionMetadata(ctx, req.CollectionID, consistency.CollectionData{
			Name:  req.Name,
			Image: req.Image,
		})
		return requeueOr(keepGoing, err)
	})

	runner.Handle(schedule.JobTokenRefresh, func(ctx context.Context, payload json.RawMessage) error {
		var req schedule.TokenRefreshPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		keepGoing, err := eng.RefreshTokenMetadata(ctx, req.Contract, req.TokenID, consistency.TokenData{
			Name:  req.Name,
			Image: req.Image,
			Media: req.Media,
		})
		return requeueOr(keepGoing, err)
	})

	runner.Handle(schedule.JobBackfill, func(ctx context.Context, payload json.RawMessage) error {
		var req schedule.BackfillPayload
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		reader, err := mongo.NewReader(ctx, srcCfg)
		if err != nil {
			return err
		}
		defer reader.Close(ctx)

		target := backfillWriter(store, req.Index, defaultIndex, logger)
		_, err = backfill.NewRunner(reader, target, logger).Run(ctx)
		return err
	})
}

// backfillWriter targets the index named in the job payload. A payload without
// an index falls back to the configured alias.
func backfillWriter(store types.Store, requested, fallback string, logger *slog.Logger) *index.Writer {
	if requested == "" {
		requested = fallback
	}
	return index.NewWriter(store, requested, logger)
}

func requeueOr(keepGoing bool, err error) error {
	if err != nil {
		return err
	}
	if keepGoing {
		return schedule.ErrRequeue
	}
	return nil
}
