package mq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/unilab/unilab/internal/telemetry"
)

// Политика повторов публикации.
const (
	// maxConnectAttempts — максимум последовательных попыток при
	// connection-class ошибках.
	maxConnectAttempts = 3

	// backoffStep — шаг линейного backoff между попытками.
	backoffStep = 50 * time.Millisecond
)

// backoffDelay возвращает задержку перед повтором номер attempt (с 1).
// Линейная: 50ms, 100ms, 150ms.
func backoffDelay(attempt int) time.Duration {
	return backoffStep * time.Duration(attempt)
}

// Publisher публикует команды агентам.
//
// Все публичные методы возвращают bool и никогда не паникуют и не
// возвращают ошибок: слой dispatch превращает false в durable-статус
// queued, так что команда не теряется при недоступном брокере.
//
// Connection-class ошибки ретраятся ограниченно с линейным backoff;
// после исчерпания попыток Publisher помечает брокер недоступным и
// отвечает false сразу, не трогая сокеты, пока IsAvailable не
// подтвердит восстановление.
type Publisher struct {
	mgr    *Manager
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	available bool
	attempts  int
}

// NewPublisher создаёт Publisher поверх менеджера соединений.
func NewPublisher(mgr *Manager, cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		mgr:       mgr,
		cfg:       cfg,
		logger:    logger,
		available: true,
	}
}

// PublishToAgent публикует команду конкретному агенту.
//
// Идентичность устройства нормализуется в имя персональной durable-очереди
// (см. AgentQueueName); публикация идёт через default exchange, ключ
// маршрутизации равен имени очереди. Сообщение переживает рестарт брокера:
// очередь durable, delivery mode persistent.
func (p *Publisher) PublishToAgent(ctx context.Context, deviceID string, payload Payload) bool {
	queue := AgentQueueName(deviceID)

	body, err := payload.Encode()
	if err != nil {
		p.logger.Error("failed to encode payload", "queue", queue, "error", err)
		return false
	}

	ok := p.doPublish(ctx, publishRequest{
		exchange:     "", // default exchange
		routingKey:   queue,
		declareQueue: queue,
		body:         body,
	})

	if ok {
		p.logger.Info("command published to agent",
			"queue", queue,
			"command_id", payload.CommandID,
			"command_type", payload.Type,
		)
	}
	return ok
}

// PublishToRoom публикует команду всем агентам аудитории через
// direct-обменник команд с room-ключом.
func (p *Publisher) PublishToRoom(ctx context.Context, roomID string, payload Payload) bool {
	body, err := payload.Encode()
	if err != nil {
		p.logger.Error("failed to encode payload", "room_id", roomID, "error", err)
		return false
	}

	ok := p.doPublish(ctx, publishRequest{
		exchange:   p.cfg.CommandsExchange,
		routingKey: p.cfg.RoomKey(roomID),
		body:       body,
	})

	if ok {
		p.logger.Info("command published to room",
			"room_id", roomID,
			"command_id", payload.CommandID,
			"command_type", payload.Type,
		)
	}
	return ok
}

// PublishBroadcast публикует общесистемную команду через fanout-обменник.
// Routing key для fanout игнорируется.
func (p *Publisher) PublishBroadcast(ctx context.Context, payload Payload) bool {
	body, err := payload.Encode()
	if err != nil {
		p.logger.Error("failed to encode payload", "error", err)
		return false
	}

	ok := p.doPublish(ctx, publishRequest{
		exchange:   p.cfg.BroadcastExchange,
		routingKey: "",
		body:       body,
	})

	if ok {
		p.logger.Info("broadcast published to all agents",
			"command_id", payload.CommandID,
			"command_type", payload.Type,
		)
	}
	return ok
}

// IsAvailable — дешёвая проверка доступности брокера.
// Слой dispatch зовёт её перед публикацией, чтобы сразу поставить
// команду в queued, если брокера нет.
func (p *Publisher) IsAvailable() bool {
	p.mu.Lock()
	exhausted := !p.available && p.attempts >= maxConnectAttempts
	p.mu.Unlock()

	if exhausted {
		// Бюджет попыток исчерпан — проверяем, не вернулся ли брокер.
		if !p.mgr.IsConnected(ProcessPublisher) {
			return false
		}
		p.mu.Lock()
		p.available = true
		p.attempts = 0
		p.mu.Unlock()
		return true
	}

	return p.mgr.IsConnected(ProcessPublisher)
}

// publishRequest — параметры одной публикации.
type publishRequest struct {
	exchange   string
	routingKey string

	// declareQueue — durable-очередь, которую нужно объявить перед
	// публикацией (персональные очереди агентов).
	declareQueue string

	body []byte
}

// doPublish — ядро публикации с ограниченным ретраем.
//
// Цикл с аккумулятором попыток вместо рекурсии: backoff-расписание
// тестируется отдельно, стек не растёт. Connection-class ошибка
// закрывает все соединения (никаких операций на полусломанных сокетах)
// и повторяет попытку после backoff; прикладная ошибка возвращает
// false сразу.
func (p *Publisher) doPublish(ctx context.Context, req publishRequest) bool {
	for {
		p.mu.Lock()
		if !p.available && p.attempts >= maxConnectAttempts {
			p.mu.Unlock()
			p.logger.Warn("broker unavailable, message not published",
				"exchange", req.exchange,
				"routing_key", req.routingKey,
			)
			telemetry.PublishUnavailable.Inc()
			return false
		}
		p.mu.Unlock()

		err := p.attemptPublish(ctx, req)
		if err == nil {
			p.mu.Lock()
			p.attempts = 0
			p.available = true
			p.mu.Unlock()
			return true
		}

		if !isConnectionError(err) {
			p.logger.Error("publish failed",
				"exchange", req.exchange,
				"routing_key", req.routingKey,
				"error", err,
			)
			telemetry.PublishFailures.Inc()
			return false
		}

		p.mu.Lock()
		p.attempts++
		p.available = false
		attempt := p.attempts
		p.mu.Unlock()

		// Полусломанные сокеты выбрасываем целиком.
		p.mgr.CloseAll()

		p.logger.Error("broker connection error",
			"error", err,
			"attempt", attempt,
			"max_attempts", maxConnectAttempts,
		)

		if attempt >= maxConnectAttempts {
			telemetry.PublishFailures.Inc()
			return false
		}

		telemetry.PublishRetries.Inc()
		p.logger.Info("retrying publish", "attempt", attempt, "delay", backoffDelay(attempt))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoffDelay(attempt)):
		}
	}
}

// attemptPublish выполняет одну попытку публикации.
func (p *Publisher) attemptPublish(ctx context.Context, req publishRequest) error {
	ch, err := p.mgr.Channel(ProcessPublisher, DefaultChannelKey)
	if err != nil {
		return err
	}

	if req.declareQueue != "" {
		if err := declareQueue(ch, req.declareQueue); err != nil {
			return err
		}
	}

	return ch.PublishWithContext(
		ctx,
		req.exchange,
		req.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // переживает рестарт брокера
			Timestamp:    time.Now(),
			AppId:        p.cfg.AppID,
			Body:         req.body,
		},
	)
}
