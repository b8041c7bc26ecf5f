// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harvestd/harvestd/internal/audit"
	"github.com/harvestd/harvestd/internal/config"
	"github.com/harvestd/harvestd/internal/dataset"
	"github.com/harvestd/harvestd/internal/item"
	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/messaging"
	"github.com/harvestd/harvestd/internal/observability/logger"
	"github.com/harvestd/harvestd/internal/runner"
	"github.com/harvestd/harvestd/internal/scheduler"
	"github.com/harvestd/harvestd/internal/store/postgres"
	"github.com/harvestd/harvestd/internal/tenant"
	"github.com/harvestd/harvestd/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName + "-worker",
		OTELEnabled: cfg.Observability.OTELEnabled,
	})
	slog.Info("starting harvestd worker", logger.PollerID(cfg.Worker.PollerID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	tenantRepo := postgres.NewTenantRepository(db.Pool())
	datasetRepo := postgres.NewDatasetRepository(db.Pool())
	jobRepo := postgres.NewJobRepository(db.Pool())
	itemRepo := postgres.NewItemRepository(db.Pool())

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	keyHasher := tenant.NewKeyHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	// The worker enqueues follow-up jobs too, so it carries the same
	// optional notifier as the API server.
	var notifier job.Notifier = job.NopNotifier{}
	var rabbit *messaging.RabbitClient
	if cfg.Queue.Enabled {
		rabbit, err = messaging.NewRabbitClient(cfg.Queue.URL, cfg.Queue.QueueName, slog.Default())
		if err != nil {
			slog.Error("failed to connect to queue, continuing on polling alone", logger.Error(err))
			rabbit = nil
		} else {
			defer rabbit.Close()
			notifier = rabbit
		}
	}

	// Initialize services
	tenantService := tenant.NewService(tenantRepo, keyHasher, auditLogger)
	datasetService := dataset.NewService(datasetRepo, auditLogger, cfg.Datasets.SharedWritable)
	jobService := job.NewService(jobRepo, datasetService, notifier, auditLogger)
	itemService := item.NewService(itemRepo)

	// Register extractors
	registry := runner.NewRegistry()
	registry.Register(runner.FeedRunnerName, runner.NewFeedRunner(cfg.Worker.RunnerTimeout))

	// Wake-up consumer (optional)
	var wake <-chan struct{}
	if rabbit != nil {
		consumer, err := messaging.StartConsumer(rabbit, slog.Default())
		if err != nil {
			slog.Error("failed to start queue consumer, continuing on polling alone", logger.Error(err))
		} else {
			defer consumer.Stop()
			wake = consumer.Wake()
			slog.Info("job wake-up consumer started")
		}
	}

	// Prometheus metrics endpoint
	worker.InitMetrics()
	metricsServer := &http.Server{
		Addr:    ":" + cfg.Worker.MetricsPort,
		Handler: worker.MetricsHandler(),
	}
	go func() {
		slog.Info("metrics endpoint listening", logger.String("port", cfg.Worker.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", logger.Error(err))
		}
	}()

	var wg sync.WaitGroup

	// Pollers share the wake channel; the claim protocol keeps them from
	// stepping on each other.
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		pollerID := cfg.Worker.PollerID
		if cfg.Worker.Concurrency > 1 {
			pollerID = fmt.Sprintf("%s-%d", pollerID, i)
		}
		p := worker.NewPoller(worker.Config{
			PollerID:      pollerID,
			PollInterval:  cfg.Worker.PollInterval,
			RunnerTimeout: cfg.Worker.RunnerTimeout,
		}, jobService, datasetService, itemService, registry, wake, slog.Default())

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(ctx)
		}()
	}

	// Quick-check scheduler (optional)
	if cfg.Scheduler.Enabled {
		s := scheduler.New(cfg.Scheduler.Interval, datasetService, jobService, tenantService, slog.Default())
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(ctx)
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown error", logger.Error(err))
	}

	wg.Wait()
	slog.Info("worker stopped")
}
