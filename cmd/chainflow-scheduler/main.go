// Chainflow Scheduler — периодические обязанности системы.
//
// Каждый тик (у лидера):
//   - запуск stateRootSync workflow по cron-расписанию
//   - переигровка stale-шагов упавших процессов
//
// Лидер выбирается через pg_try_advisory_lock: экземпляров может быть
// много, тик выполняет ровно один.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/scheduler"
	"github.com/shaiso/Chainflow/internal/telemetry"
)

const schedLockKey int64 = 734242

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting chainflow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	originChainID := int64(3)
	if v := os.Getenv("ORIGIN_CHAIN_ID"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Error("invalid ORIGIN_CHAIN_ID", "value", v, "error", err)
			os.Exit(1)
		}
		originChainID = parsed
	}

	var staleThreshold time.Duration
	if v := os.Getenv("STALE_THRESHOLD"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid STALE_THRESHOLD", "value", v, "error", err)
			os.Exit(1)
		}
		staleThreshold = parsed
	}

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	logger.Info("RabbitMQ connected")

	graphs := graph.DefaultRegistry()
	if err := graphs.Validate(); err != nil {
		logger.Error("invalid graph registry", "error", err)
		os.Exit(1)
	}

	// Топики нужны до первой публикации: declare идемпотентен.
	topics := make([]string, 0, graphs.Count())
	for _, g := range graphs.All() {
		topics = append(topics, g.Topic())
	}
	if err := mq.SetupTopology(ctx, mqConn, topics); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	workflowRepo := repo.NewWorkflowRepo(pool)
	stepRepo := repo.NewStepRepo(pool)
	cronRepo := repo.NewCronProcessRepo(pool)

	sched, err := scheduler.New(scheduler.Config{
		Workflows:      workflowRepo,
		Steps:          stepRepo,
		Graphs:         graphs,
		Publisher:      mq.NewPublisher(mqConn, logger),
		SyncCronExpr:   os.Getenv("STATE_ROOT_SYNC_CRON"),
		StaleThreshold: staleThreshold,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Учётная запись процесса
	hostname, _ := os.Hostname()
	proc := &domain.CronProcess{
		Kind:    domain.CronStateRootSyncScheduler,
		ChainID: originChainID,
		IP:      hostname,
	}
	if err := cronRepo.Register(ctx, proc); err != nil {
		logger.Error("failed to register cron process", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8084"
	if v := os.Getenv("SCHEDULER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// scheduler loop
	go func() {
		tk := time.NewTicker(10 * time.Second)
		defer tk.Stop()

		var hasLock bool
		defer func() {
			if hasLock {
				_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			}
		}()

		for {
			select {
			case <-tk.C:
				// пытаемся стать лидером (или подтвердить лидерство)
				if !hasLock {
					var ok bool
					if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
						logger.Error("advisory lock failed", "error", err)
						continue
					}
					hasLock = ok
				}

				if !hasLock {
					// не лидер — пропускаем тик
					continue
				}

				if err := sched.Tick(ctx); err != nil {
					logger.Error("scheduler tick failed", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	if err := cronRepo.StopProcess(context.Background(), proc.ID); err != nil {
		logger.Error("failed to close cron process row", "error", err)
	}
	logger.Info("chainflow-scheduler stopped")
}
