package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/workshop-queue/internal/cache"
	"github.com/example/workshop-queue/internal/config"
	httptransport "github.com/example/workshop-queue/internal/http"
	"github.com/example/workshop-queue/internal/metrics"
	"github.com/example/workshop-queue/internal/persistence/sqlite"
	"github.com/example/workshop-queue/internal/queue"
	"github.com/example/workshop-queue/internal/retry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	retrier := retry.NewExecutor(
		cfg.RetryMaxAttempts,
		cfg.RetryBaseDelay,
		2.0,
		cfg.RetryMaxDelay,
		retry.WithAttemptObserver(collector.RetryAttempt),
	)

	cacheLayer := cache.NewLayer(
		storage,
		cfg.CacheCapacity,
		cfg.CacheTTL,
		time.Now,
		cache.WithRules(cache.DefaultQueueRules()),
		cache.WithObserver(collector),
		cache.WithLogger(logger),
	)

	eventLog := queue.NotifierFunc(func(ctx context.Context, event queue.Event) {
		attrs := []any{"event", event.Name}
		if event.Entry != nil {
			attrs = append(attrs, "entry_id", event.Entry.ID)
		}
		logger.InfoContext(ctx, "queue event", attrs...)
	})

	var coordinatorNotifier queue.Notifier
	if cfg.EventMode == config.EventModePush {
		coordinatorNotifier = queue.NewFanoutNotifier(collector, eventLog)
	}

	coordinator := queue.NewCoordinator(
		storage,
		cacheLayer,
		retrier,
		newWorkOrderAllocator(logger),
		coordinatorNotifier,
		queue.NewEntryID,
		time.Now,
		queue.WithLogger(logger),
		queue.WithAverageServiceMinutes(cfg.AverageServiceMinutes),
		queue.WithCodeTTL(cfg.CodeTTL),
		queue.WithCodeAttempts(cfg.CodeAttempts),
		queue.WithClaimBudget(cfg.ClaimBudget),
		queue.WithClaimObserver(collector.CallNextClaimAttempts),
	)

	if cfg.OperatingHoursPath != "" {
		hours, err := config.LoadOperatingHours(cfg.OperatingHoursPath)
		if err != nil {
			logger.Error("failed to load operating hours", "error", err)
			os.Exit(1)
		}
		if _, err := coordinator.SetOperatingHours(context.Background(), hours); err != nil {
			logger.Error("failed to apply operating hours", "error", err)
			os.Exit(1)
		}
	}
	if _, err := coordinator.OperatingHoursSweep(context.Background()); err != nil {
		logger.Warn("initial operating hours sweep failed", "error", err)
	}

	validator := queue.NewValidator(coordinator, newTimerStarter(logger), time.Now, logger)

	sweeper := queue.NewSweeper(coordinator, cfg.ExpirySweepInterval, cfg.HoursSweepInterval, storage.DeleteExpired, time.Now, logger)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	if cfg.EventMode == config.EventModePoll {
		poller := queue.NewPoller(storage, queue.NewFanoutNotifier(collector, eventLog), cfg.PollInterval, time.Now, logger)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("poller stopped", "error", err)
			}
		}()
	}

	queueHandler := httptransport.NewQueueHandler(coordinator, logger)
	validateHandler := httptransport.NewValidateHandler(validator, collector, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Queue:      queueHandler,
		Validate:   validateHandler,
		Metrics:    collector.Handler(),
		HealthPing: storage.Ping,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("queue API listening", "addr", server.Addr, "event_mode", string(cfg.EventMode))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// workOrderAllocator is the in-process stand-in for the external work-order
// system. It issues an identifier per claimed entry; a real deployment swaps
// in a client for the workshop's work-order service.
type workOrderAllocator struct {
	logger *slog.Logger
}

func newWorkOrderAllocator(logger *slog.Logger) *workOrderAllocator {
	return &workOrderAllocator{logger: logger}
}

func (a *workOrderAllocator) CreateFromQueueEntry(ctx context.Context, entry queue.QueueEntry, technicianID string) (string, error) {
	workOrderID := "wo-" + uuid.NewString()
	a.logger.InfoContext(ctx, "work order created", "work_order_id", workOrderID, "entry_id", entry.ID, "technician_id", technicianID)
	return workOrderID, nil
}

// timerStarter is the in-process stand-in for the external service timer.
type timerStarter struct {
	logger *slog.Logger
}

func newTimerStarter(logger *slog.Logger) *timerStarter {
	return &timerStarter{logger: logger}
}

func (t *timerStarter) Start(ctx context.Context, workOrderID, technicianID string) (string, error) {
	handle := "timer-" + uuid.NewString()
	t.logger.InfoContext(ctx, "service timer started", "timer_handle", handle, "work_order_id", workOrderID, "technician_id", technicianID)
	return handle, nil
}
