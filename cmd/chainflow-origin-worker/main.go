// Chainflow Origin Worker — consumer task-сообщений origin-чейна.
//
// Worker:
//   - Получает task-сообщения из топиков workflow.* в RabbitMQ
//   - Выполняет шаги через роутер (идемпотентный захват, граф, handler)
//   - Публикует follow-up сообщения по рёбрам графа
//
// От aux-воркера отличается только привязкой к чейну.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chainflow/internal/graph"
	"github.com/shaiso/Chainflow/internal/mq"
	"github.com/shaiso/Chainflow/internal/repo"
	"github.com/shaiso/Chainflow/internal/steps"
	"github.com/shaiso/Chainflow/internal/telemetry"
	"github.com/shaiso/Chainflow/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting chainflow-origin-worker")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	chainID := int64(3)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Error("invalid CHAIN_ID", "value", v, "error", err)
			os.Exit(1)
		}
		chainID = parsed
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

	// Шлюз транзакций чейнов
	endpoints, err := steps.ParseEndpoints(os.Getenv("CHAIN_ENDPOINTS"))
	if err != nil {
		logger.Error("invalid CHAIN_ENDPOINTS", "error", err)
		os.Exit(1)
	}
	client := steps.NewRPCChainClient(endpoints)

	// Создаём worker
	w, err := worker.New(worker.Config{
		Chain:   graph.ChainOrigin,
		ChainID: chainID,
		Pool:    pool,
		Conn:    mqConn,
		Client:  client,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Drain: дорабатываем текущий шаг и закрываем учётную запись
	if err := w.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chainflow-origin-worker stopped")
}
