// Dagon Monitor — status-сервис: хранит состояние workflow и задач,
// о которых сообщают оркестраторы.
//
// Monitor:
//   - Принимает HTTP-протокол status-сервиса (/create, /add_task, ...)
//   - Потребляет события жизненного цикла из RabbitMQ, если задан amqp.url
//   - Отдаёт /healthz и /metrics
//
// Конфигурация — dagon.yaml и переменные DAGON_* (DAGON_MONITOR_ADDR,
// DAGON_AMQP_URL). Путь к файлу можно задать через DAGON_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Dagon/internal/api"
	"github.com/shaiso/Dagon/internal/config"
	"github.com/shaiso/Dagon/internal/mq"
	"github.com/shaiso/Dagon/internal/telemetry"
)

var (
	startTime    = time.Now()
	healthChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dagon_monitor_health_checks_total",
		Help: "Total /healthz requests handled by dagon-monitor",
	})
)

func main() {
	cfg, err := config.Load(config.New(), os.Getenv("DAGON_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(telemetry.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger.Info("starting dagon-monitor")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := api.NewStore()
	handler := api.NewHandler(api.Config{Store: store, Logger: logger})

	// RabbitMQ: события оркестраторов применяются к тому же хранилищу
	consumerDone := make(chan struct{})
	if cfg.AMQP.URL == "" {
		close(consumerDone)
	} else {
		conn, err := mq.NewConnection(cfg.AMQP.URL, logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, conn); err != nil {
			logger.Error("failed to setup topology", "error", err)
			os.Exit(1)
		}

		consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueMonitor,
			Handler:  handler.EventHandler(),
			Prefetch: cfg.Monitor.Prefetch,
		})
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "error", err)
				cancel()
			}
		}()
	}

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		healthChecks.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s workflows=%d", time.Since(startTime).Round(time.Second), store.Len())
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Monitor.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Monitor.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	<-consumerDone

	logger.Info("dagon-monitor stopped")
}
