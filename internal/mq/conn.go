package mq

import (
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ProcessType — логическая роль соединения.
// Publisher и consumer не делят одно соединение: блокировка
// consumer-канала не должна задерживать публикации.
type ProcessType string

const (
	ProcessPublisher ProcessType = "publisher"
	ProcessConsumer  ProcessType = "consumer"
)

// DefaultChannelKey — ключ канала по умолчанию внутри соединения.
const DefaultChannelKey = "default"

// channelKey адресует канал внутри менеджера.
type channelKey struct {
	process ProcessType
	id      string
}

// Manager — пул соединений и каналов RabbitMQ.
//
// Соединения создаются лениво и кешируются по ProcessType; каналы —
// по паре (ProcessType, ключ). Обнаруженное закрытым соединение или
// канал пересоздаются при следующем обращении. Все операции
// сериализуются мьютексом: менеджер используется из нескольких горутин.
//
// На каждом свежем соединении обменники системы объявляются заново
// (идемпотентно); ошибка объявления делает соединение непригодным,
// и оно не попадает в кеш.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	conns    map[ProcessType]*amqp.Connection
	channels map[channelKey]*amqp.Channel
}

// NewManager создаёт менеджер соединений. Сами соединения
// устанавливаются лениво при первом обращении.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		conns:    make(map[ProcessType]*amqp.Connection),
		channels: make(map[channelKey]*amqp.Channel),
	}
}

// Connection возвращает живое соединение для роли, создавая его при
// необходимости.
func (m *Manager) Connection(process ProcessType) (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectionLocked(process)
}

func (m *Manager) connectionLocked(process ProcessType) (*amqp.Connection, error) {
	if conn, ok := m.conns[process]; ok && !conn.IsClosed() {
		return conn, nil
	}

	m.logger.Debug("opening RabbitMQ connection",
		"process", process,
		"host", m.cfg.Host,
		"port", m.cfg.Port,
	)

	conn, err := amqp.DialConfig(m.cfg.URL(), amqp.Config{
		Heartbeat: m.cfg.Heartbeat,
		Dial:      amqp.DefaultDial(m.cfg.ConnectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	// Топология объявляется на каждом свежем соединении.
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open setup channel: %w", err)
	}
	if err := declareExchanges(ch, m.cfg.Exchanges()); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	ch.Close()

	m.conns[process] = conn
	m.logger.Info("connected to RabbitMQ", "process", process)
	return conn, nil
}

// Channel возвращает живой канал для (роль, ключ), создавая его при
// необходимости. Consumer-каналы получают QoS prefetch из конфигурации
// (global=false — ограничение на каждый consumer отдельно).
func (m *Manager) Channel(process ProcessType, key string) (*amqp.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ck := channelKey{process: process, id: key}
	if ch, ok := m.channels[ck]; ok && !ch.IsClosed() {
		return ch, nil
	}

	conn, err := m.connectionLocked(process)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel %s/%s: %w", process, key, err)
	}

	if process == ProcessConsumer {
		if err := ch.Qos(m.cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}

	m.channels[ck] = ch
	return ch, nil
}

// Close закрывает соединение роли и все его каналы.
func (m *Manager) Close(process ProcessType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ck, ch := range m.channels {
		if ck.process != process {
			continue
		}
		if !ch.IsClosed() {
			ch.Close()
		}
		delete(m.channels, ck)
	}

	if conn, ok := m.conns[process]; ok {
		if !conn.IsClosed() {
			conn.Close()
		}
		delete(m.conns, process)
	}
}

// CloseAll закрывает все соединения и каналы.
//
// Вызывается после connection-class ошибок: полузакрытые сокеты
// выбрасываются целиком, следующее обращение откроет всё заново.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ck, ch := range m.channels {
		if !ch.IsClosed() {
			ch.Close()
		}
		delete(m.channels, ck)
	}

	for process, conn := range m.conns {
		if !conn.IsClosed() {
			conn.Close()
		}
		delete(m.conns, process)
	}
}

// IsConnected возвращает true, если соединение роли установлено и живо.
// Отсутствующее соединение пробуем установить: это дешёвая проверка
// доступности брокера.
func (m *Manager) IsConnected(process ProcessType) bool {
	conn, err := m.Connection(process)
	if err != nil {
		return false
	}
	return !conn.IsClosed()
}
