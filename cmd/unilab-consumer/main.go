// Unilab Consumer — демон обработки сообщений агентов.
//
// Читает очередь статусов: heartbeat-и обновляют состояние
// компьютеров (с авторегистрацией новых машин), результаты команд
// финализируют записи команд.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
	"github.com/unilab/unilab/internal/status"
	"github.com/unilab/unilab/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting unilab-consumer")

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

	// Создаём репозитории
	commandRepo := repo.NewCommandRepo(pool)
	computerRepo := repo.NewComputerRepo(pool)
	roomRepo := repo.NewRoomRepo(pool)

	// Обработчик сообщений агентов
	handler := status.NewHandler(status.Config{
		Computers: computerRepo,
		Commands:  commandRepo,
		Rooms:     roomRepo,
		Logger:    logger,
	})

	// RabbitMQ consumer на очереди статусов
	mqCfg := mq.ConfigFromEnv()
	manager := mq.NewManager(mqCfg, logger)
	defer manager.CloseAll()

	// Опциональное ограничение времени работы (для supervised-режима)
	var runFor time.Duration
	if v := os.Getenv("CONSUMER_RUN_FOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			runFor = d
		} else {
			logger.Warn("invalid CONSUMER_RUN_FOR, ignoring", "value", v)
		}
	}

	consumer := mq.NewConsumer(manager, mq.ConsumerConfig{
		Queue:        mqCfg.StatusQueue,
		BindExchange: mqCfg.StatusExchange,
		BindKey:      mqCfg.StatusBindingKey,
		Tag:          "unilab-consumer",
		Handler:      handler.Handle,
		RunFor:       runFor,
	}, logger)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("CONSUMER_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокируемся на consumer до сигнала или истечения RunFor
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("unilab-consumer stopped")
}
