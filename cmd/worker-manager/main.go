// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"assessment-workers/internal/api"
	"assessment-workers/internal/common/camunda"
	"assessment-workers/internal/common/config"
	"assessment-workers/internal/common/database"
	genaiclient "assessment-workers/internal/common/genai"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/pipeline/caller"
	"assessment-workers/internal/pipeline/normalizer"
	"assessment-workers/internal/pipeline/parser"
	"assessment-workers/internal/pipeline/prompt"
	"assessment-workers/internal/pipeline/runner"
	"assessment-workers/internal/pipeline/store"

	revreq "assessment-workers/internal/workers/validation/revalidate-requirement"
	runval "assessment-workers/internal/workers/validation/run-validation"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebeClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         time.Duration(cfg.Camunda.RequestTimeout) * time.Millisecond,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	redisClient := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Gemini Client ---
	generator, err := genaiclient.NewClient(ctx, cfg.Gemini)
	if err != nil {
		zapLog.Fatal("gemini client failed", zap.Error(err))
	}
	zapLog.Info("Gemini client initialized",
		zap.String("model", cfg.Gemini.Model),
		zap.String("tier", cfg.Gemini.Tier),
		zap.Duration("requestDelay", cfg.Gemini.RequestDelay()),
	)

	// --- Assemble the validation pipeline ---
	registry := prompt.DefaultRegistry()
	responseParser, err := parser.New(prompt.OutputSchema)
	if err != nil {
		zapLog.Fatal("response schema failed to compile", zap.Error(err))
	}

	// One limiter for the whole process: every run shares the same
	// provider quota.
	limiter := caller.NewLimiter(cfg.Gemini.RequestDelay())
	backoff := caller.DefaultBackoff
	if cfg.Gemini.MaxRetries > 0 {
		backoff.MaxAttempts = cfg.Gemini.MaxRetries
	}
	if cfg.Gemini.BackoffBaseMS > 0 {
		backoff.BaseDelay = time.Duration(cfg.Gemini.BackoffBaseMS) * time.Millisecond
	}
	if cfg.Gemini.BackoffMaxMS > 0 {
		backoff.MaxDelay = time.Duration(cfg.Gemini.BackoffMaxMS) * time.Millisecond
	}

	modelCaller := caller.New(generator, limiter, backoff, cfg.Gemini.CallTimeout(), log)
	resultStore := store.New(pg.DB, redisClient.Client, log)
	requirementSource := normalizer.New(pg.DB, log)

	pipelineRunner := runner.New(
		requirementSource,
		resultStore,
		modelCaller,
		responseParser,
		registry,
		cfg.Prompts.Version,
		log,
	)

	// --- Register Validation Workers ---
	maxJobsActive := cfg.Camunda.MaxJobsActive
	if maxJobsActive <= 0 {
		maxJobsActive = 1
	}

	runCfg := runval.LoadConfig()
	runHandler := runval.NewHandler(runCfg, pipelineRunner, log)
	runWorker := camunda.NewWorker(zeebeClient.GetClient(), runval.TaskType, maxJobsActive, runCfg.Timeout, runHandler, zapLog)
	runWorker.Start()

	revCfg := revreq.LoadConfig()
	revHandler := revreq.NewHandler(revCfg, pipelineRunner, log)
	revWorker := camunda.NewWorker(zeebeClient.GetClient(), revreq.TaskType, maxJobsActive, revCfg.Timeout, revHandler, zapLog)
	revWorker.Start()

	zapLog.Info("All validation workers registered successfully")

	// --- HTTP API ---
	apiCtx, apiCancel := context.WithCancel(context.Background())
	defer apiCancel()

	handlers := api.NewHandlers(pipelineRunner, resultStore, runCfg.Timeout, log).
		WithHealthChecks(
			api.HealthCheck{Name: "postgres", Probe: pg.Ping},
			api.HealthCheck{Name: "redis", Probe: redisClient.Ping},
			api.HealthCheck{Name: "zeebe", Probe: zeebeClient.HealthCheck},
		)
	apiServer := api.NewServer(cfg.API.ListenAddress, handlers, log)
	go func() {
		if err := apiServer.Run(apiCtx); err != nil {
			zapLog.Error("api server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	apiCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runWorker.Stop(shutdownCtx)
	revWorker.Stop(shutdownCtx)

	if err := zeebeClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
