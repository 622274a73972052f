// Unilab Monitor — фоновый демон состояния парка.
//
// Monitor:
//   - Переводит компьютеры offline при устаревшем heartbeat (и
//     обратно online, когда heartbeat возобновляется)
//   - Повторно публикует queued-команды, когда брокер доступен
//
// В кластере работает один активный monitor: лидерство через
// pg advisory lock.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unilab/unilab/internal/dispatch"
	"github.com/unilab/unilab/internal/monitor"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
	"github.com/unilab/unilab/internal/telemetry"
)

const monitorLockKey int64 = 520152

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting unilab-monitor")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("MONITOR_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Лидерство: ждём advisory lock, чтобы в кластере работал
	// один активный monitor
	lockConn, ok := acquireLeadership(ctx, pool, logger)
	if !ok {
		logger.Info("unilab-monitor stopped before acquiring leadership")
		return
	}
	defer func() {
		_, _ = lockConn.Exec(context.Background(), "select pg_advisory_unlock($1)", monitorLockKey)
		lockConn.Release()
	}()
	logger.Info("leadership acquired")

	// Создаём репозитории
	commandRepo := repo.NewCommandRepo(pool)
	computerRepo := repo.NewComputerRepo(pool)

	// RabbitMQ publisher для redelivery
	mqCfg := mq.ConfigFromEnv()
	manager := mq.NewManager(mqCfg, logger)
	defer manager.CloseAll()
	publisher := mq.NewPublisher(manager, mqCfg, logger)

	// Проверка таймаутов heartbeat по cron-расписанию
	schedule, err := monitor.ParseSchedule(os.Getenv("MONITOR_SCHEDULE"))
	if err != nil {
		logger.Error("invalid monitor schedule", "error", err)
		os.Exit(1)
	}

	var timeout time.Duration
	if v := os.Getenv("HEARTBEAT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		} else {
			logger.Warn("invalid HEARTBEAT_TIMEOUT, using default", "value", v)
		}
	}

	sweeper := monitor.New(monitor.Config{
		Computers: computerRepo,
		Logger:    logger,
		Timeout:   timeout,
	})

	// Повторная доставка queued-команд
	var redeliveryInterval time.Duration
	if v := os.Getenv("REDELIVERY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			redeliveryInterval = d
		} else {
			logger.Warn("invalid REDELIVERY_INTERVAL, using default", "value", v)
		}
	}

	redeliverer := dispatch.NewRedeliverer(dispatch.RedelivererConfig{
		Commands:  commandRepo,
		Computers: computerRepo,
		Broker:    publisher,
		Logger:    logger,
		Interval:  redeliveryInterval,
	})

	go sweeper.Run(ctx, schedule)
	go redeliverer.Run(ctx)

	// Ожидаем сигнал завершения
	<-ctx.Done()

	logger.Info("unilab-monitor stopped")
}

// acquireLeadership блокируется до получения advisory lock или отмены
// контекста.
//
// Лок сессионный: возвращённое соединение удерживается до конца работы
// процесса. Выполнение запроса через пул привязало бы лок к случайному
// соединению, и пул мог бы закрыть его, молча отпустив лидерство.
func acquireLeadership(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*pgxpool.Conn, bool) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	for {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			logger.Warn("leadership lock attempt failed", "error", err)
		} else {
			var ok bool
			if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", monitorLockKey).Scan(&ok); err != nil {
				logger.Warn("leadership lock attempt failed", "error", err)
				conn.Release()
			} else if ok {
				return conn, true
			} else {
				conn.Release()
			}
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-tk.C:
		}
	}
}
