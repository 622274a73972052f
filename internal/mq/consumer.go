package mq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/unilab/unilab/internal/telemetry"
)

// defaultReconnectDelay — пауза перед восстановлением потребления
// после потери соединения.
const defaultReconnectDelay = 5 * time.Second

// Handler — обработчик тела входящего сообщения.
//
// Возврат ошибки возвращает сообщение в очередь (reject, requeue=true).
// Ошибка, обёрнутая в ErrDrop, отклоняет сообщение навсегда.
type Handler func(ctx context.Context, body []byte) error

// acker — минимальный интерфейс подтверждения доставки.
// amqp.Delivery реализует его напрямую.
type acker interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — имя durable-очереди.
	Queue string

	// BindExchange, BindKey — опциональная привязка очереди
	// к обменнику (пустой BindExchange — без привязки).
	BindExchange string
	BindKey      string

	// Tag — consumer tag (пустой — сгенерирует сервер).
	Tag string

	// Handler — обработчик сообщений.
	Handler Handler

	// RunFor — мягкий лимит общего времени работы (0 — без лимита).
	RunFor time.Duration

	// ReconnectDelay — пауза перед повторным подключением (default: 5s).
	ReconnectDelay time.Duration
}

// Consumer — долгоживущий насос входящих сообщений.
//
// В отличие от Publisher с его ограниченным бюджетом попыток, Consumer
// ретраит потерю соединения бесконечно (с фиксированной паузой):
// долгоживущий процесс обязан пережить рестарт брокера.
//
// Останавливается по отмене контекста (сигнал) или по истечении RunFor;
// канал и соединение закрываются на любом пути выхода.
type Consumer struct {
	mgr    *Manager
	cfg    ConsumerConfig
	logger *slog.Logger
}

// NewConsumer создаёт Consumer.
func NewConsumer(mgr *Manager, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		mgr:    mgr,
		cfg:    cfg,
		logger: logger,
	}
}

// Run блокируется и потребляет сообщения до остановки.
func (c *Consumer) Run(ctx context.Context) error {
	if c.cfg.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RunFor)
		defer cancel()
	}

	defer c.mgr.Close(ProcessConsumer)

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("consumer stopped", "queue", c.cfg.Queue)
			return nil
		}

		deliveries, err := c.setup()
		if err != nil {
			c.logger.Error("failed to start consuming",
				"queue", c.cfg.Queue,
				"error", err,
			)
			c.mgr.CloseAll()
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				return nil
			}
			continue
		}

		c.logger.Info("consumer started", "queue", c.cfg.Queue)

		if stopped := c.pump(ctx, deliveries); stopped {
			c.logger.Info("consumer stopped", "queue", c.cfg.Queue)
			return nil
		}

		// Канал доставки закрылся — соединение потеряно.
		c.logger.Warn("broker connection lost, reconnecting",
			"queue", c.cfg.Queue,
			"delay", c.cfg.ReconnectDelay,
		)
		c.mgr.CloseAll()
		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			return nil
		}
	}
}

// setup объявляет очередь, привязывает её при необходимости
// и начинает потребление.
func (c *Consumer) setup() (<-chan amqp.Delivery, error) {
	ch, err := c.mgr.Channel(ProcessConsumer, DefaultChannelKey)
	if err != nil {
		return nil, err
	}

	if err := declareQueue(ch, c.cfg.Queue); err != nil {
		return nil, err
	}

	if c.cfg.BindExchange != "" {
		err := ch.QueueBind(c.cfg.Queue, c.cfg.BindKey, c.cfg.BindExchange, false, nil)
		if err != nil {
			return nil, err
		}
	}

	return ch.Consume(
		c.cfg.Queue,
		c.cfg.Tag,
		false, // auto-ack выключен: подтверждаем вручную
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// pump обрабатывает сообщения до остановки или потери соединения.
// Возвращает true при штатной остановке, false при закрытии канала.
func (c *Consumer) pump(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case d, ok := <-deliveries:
			if !ok {
				return false
			}
			c.handleMessage(ctx, &d, d.Body)
		}
	}
}

// handleMessage принимает решение ack/reject по одному сообщению.
//
// Невалидный JSON отклоняется без requeue ДО вызова обработчика:
// сообщение, которое никогда не распарсится, бессмысленно гонять
// по кругу. Ошибка обработчика возвращает сообщение в очередь,
// кроме ошибок, обёрнутых в ErrDrop.
func (c *Consumer) handleMessage(ctx context.Context, ack acker, body []byte) {
	if !json.Valid(body) {
		c.logger.Error("malformed message rejected",
			"queue", c.cfg.Queue,
			"body", string(body),
		)
		ack.Reject(false)
		telemetry.MessagesConsumed.WithLabelValues("rejected").Inc()
		return
	}

	if err := c.cfg.Handler(ctx, body); err != nil {
		if errors.Is(err, ErrDrop) {
			c.logger.Error("message dropped",
				"queue", c.cfg.Queue,
				"error", err,
				"body", string(body),
			)
			ack.Reject(false)
			telemetry.MessagesConsumed.WithLabelValues("rejected").Inc()
			return
		}

		c.logger.Error("handler failed, message requeued",
			"queue", c.cfg.Queue,
			"error", err,
		)
		ack.Reject(true)
		telemetry.MessagesConsumed.WithLabelValues("requeued").Inc()
		return
	}

	ack.Ack(false)
	telemetry.MessagesConsumed.WithLabelValues("ok").Inc()
}

// sleepCtx ждёт d или отмену контекста. Возвращает false при отмене.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
