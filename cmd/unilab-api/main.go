// Unilab API — HTTP-сервер консоли управления компьютерными классами.
//
// Принимает запросы на отправку команд (аудитория, компьютер,
// broadcast), отдаёт историю команд и состояние парка, принимает
// результаты выполнения от агентов по HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unilab/unilab/internal/api"
	"github.com/unilab/unilab/internal/dispatch"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
	"github.com/unilab/unilab/internal/status"
	"github.com/unilab/unilab/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_api_http_requests_total",
		Help: "Total HTTP requests handled by unilab-api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting unilab-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Создаём репозитории
	commandRepo := repo.NewCommandRepo(pool)
	computerRepo := repo.NewComputerRepo(pool)
	roomRepo := repo.NewRoomRepo(pool)

	// RabbitMQ: менеджер соединений + publisher.
	// Недоступный брокер не мешает старту: команды будут queued.
	mqCfg := mq.ConfigFromEnv()
	manager := mq.NewManager(mqCfg, logger)
	defer manager.CloseAll()
	publisher := mq.NewPublisher(manager, mqCfg, logger)

	// Оркестрация команд
	dispatcher := dispatch.New(dispatch.Config{
		Commands:  commandRepo,
		Computers: computerRepo,
		Rooms:     roomRepo,
		Broker:    publisher,
		Logger:    logger,
	})

	// Приём результатов от агентов по HTTP — тот же обработчик,
	// что и у очереди статусов
	resultSink := status.NewHandler(status.Config{
		Computers: computerRepo,
		Commands:  commandRepo,
		Rooms:     roomRepo,
		Logger:    logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Dispatcher: dispatcher,
		Commands:   commandRepo,
		Fleet: &api.Fleet{
			Rooms:     roomRepo,
			Computers: computerRepo,
		},
		Results: resultSink,
		Logger:  logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
