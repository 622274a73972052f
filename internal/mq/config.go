package mq

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config — настройки подключения к RabbitMQ и топологии.
//
// Читается из окружения один раз при старте процесса;
// значения по умолчанию подходят для локальной разработки.
type Config struct {
	// Подключение
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	// ConnectTimeout — таймаут установки TCP-соединения.
	ConnectTimeout time.Duration

	// Heartbeat — интервал AMQP heartbeat.
	Heartbeat time.Duration

	// Prefetch — QoS prefetch count для consumer-каналов.
	// По одному сообщению в полёте на consumer: строгая
	// справедливость между экземплярами.
	Prefetch int

	// Имена обменников
	CommandsExchange  string
	StatusExchange    string
	BroadcastExchange string

	// StatusQueue — очередь входящих статусов/результатов агентов.
	StatusQueue string

	// Шаблоны routing key с плейсхолдерами {room} и {computer}.
	RoomKeyTemplate     string
	ComputerKeyTemplate string

	// StatusBindingKey — wildcard-ключ привязки очереди статусов.
	StatusBindingKey string

	// AppID — идентификатор приложения в свойствах сообщений.
	AppID string
}

// Значения по умолчанию.
const (
	defaultHost     = "localhost"
	defaultPort     = 5672
	defaultUser     = "guest"
	defaultPassword = "guest"
	defaultVHost    = "/"

	defaultConnectTimeout = 3 * time.Second
	defaultHeartbeat      = 30 * time.Second
	defaultPrefetch       = 1

	defaultCommandsExchange  = "unilab.commands"
	defaultStatusExchange    = "unilab.status"
	defaultBroadcastExchange = "unilab.broadcast"

	defaultStatusQueue = "status_updates"

	defaultRoomKeyTemplate     = "room.{room}.all"
	defaultComputerKeyTemplate = "room.{room}.computer.{computer}"
	defaultStatusBindingKey    = "status.#"

	defaultAppID = "unilab"
)

// ConfigFromEnv собирает Config из переменных окружения.
func ConfigFromEnv() Config {
	return Config{
		Host:     envString("RABBITMQ_HOST", defaultHost),
		Port:     envInt("RABBITMQ_PORT", defaultPort),
		User:     envString("RABBITMQ_USER", defaultUser),
		Password: envString("RABBITMQ_PASSWORD", defaultPassword),
		VHost:    envString("RABBITMQ_VHOST", defaultVHost),

		ConnectTimeout: envDuration("RABBITMQ_CONNECT_TIMEOUT", defaultConnectTimeout),
		Heartbeat:      envDuration("RABBITMQ_HEARTBEAT", defaultHeartbeat),
		Prefetch:       envInt("RABBITMQ_PREFETCH", defaultPrefetch),

		CommandsExchange:  envString("RABBITMQ_COMMANDS_EXCHANGE", defaultCommandsExchange),
		StatusExchange:    envString("RABBITMQ_STATUS_EXCHANGE", defaultStatusExchange),
		BroadcastExchange: envString("RABBITMQ_BROADCAST_EXCHANGE", defaultBroadcastExchange),

		StatusQueue: envString("RABBITMQ_STATUS_QUEUE", defaultStatusQueue),

		RoomKeyTemplate:     envString("RABBITMQ_ROOM_KEY_TEMPLATE", defaultRoomKeyTemplate),
		ComputerKeyTemplate: envString("RABBITMQ_COMPUTER_KEY_TEMPLATE", defaultComputerKeyTemplate),
		StatusBindingKey:    envString("RABBITMQ_STATUS_BINDING_KEY", defaultStatusBindingKey),

		AppID: envString("RABBITMQ_APP_ID", defaultAppID),
	}
}

// URL возвращает amqp:// URL для подключения.
func (c Config) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.VHost),
	)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
