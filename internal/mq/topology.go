package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeKind — тип AMQP-обменника.
type ExchangeKind string

const (
	ExchangeDirect ExchangeKind = "direct"
	ExchangeTopic  ExchangeKind = "topic"
	ExchangeFanout ExchangeKind = "fanout"
)

// Exchange — статическое описание обменника.
// Конструируется один раз из конфигурации при старте.
type Exchange struct {
	Name       string
	Kind       ExchangeKind
	Durable    bool
	AutoDelete bool
}

// Exchanges возвращает полный набор обменников системы.
//
// Топология (wire contract):
//
//	unilab.commands  (direct, durable)
//	    room.{room}.all — команды всем агентам аудитории
//	    привязка агентов: room.{room}.computer.{computer}
//	unilab.status    (topic, durable)
//	    status.#        — heartbeat и результаты команд от агентов
//	unilab.broadcast (fanout, durable)
//	    системные команды всем агентам, ключ игнорируется
//
// Команды конкретному агенту идут через default exchange напрямую
// в его персональную durable-очередь (см. AgentQueueName).
func (c Config) Exchanges() []Exchange {
	return []Exchange{
		{Name: c.CommandsExchange, Kind: ExchangeDirect, Durable: true, AutoDelete: false},
		{Name: c.StatusExchange, Kind: ExchangeTopic, Durable: true, AutoDelete: false},
		{Name: c.BroadcastExchange, Kind: ExchangeFanout, Durable: true, AutoDelete: false},
	}
}

// RoomKey возвращает routing key для команд всей аудитории.
func (c Config) RoomKey(roomID string) string {
	return expandKey(c.RoomKeyTemplate, roomID, "")
}

// ComputerKey возвращает binding key, по которому агент привязывает
// свою очередь к обменнику команд при регистрации.
func (c Config) ComputerKey(roomID, computerID string) string {
	return expandKey(c.ComputerKeyTemplate, roomID, computerID)
}

// expandKey подставляет идентификаторы в шаблон routing key.
func expandKey(template, roomID, computerID string) string {
	key := strings.ReplaceAll(template, "{room}", roomID)
	return strings.ReplaceAll(key, "{computer}", computerID)
}

// AgentQueueName выводит имя персональной очереди агента из идентичности
// устройства (MAC-адреса).
//
// Нормализация: убрать разделители (":", "-", "."), привести к верхнему
// регистру, разбить на группы по два символа через "-". Любая форма записи
// одного MAC даёт одно и то же имя очереди:
//
//	"aa:bb:cc:dd:ee:ff" → "AA-BB-CC-DD-EE-FF"
//	"AA-BB-CC-DD-EE-FF" → "AA-BB-CC-DD-EE-FF"
//	"aabbccddeeff"      → "AA-BB-CC-DD-EE-FF"
//
// Это контракт совместимости с уже развёрнутыми агентами — менять нельзя.
func AgentQueueName(deviceID string) string {
	normalized := strings.NewReplacer(":", "", "-", "", ".", "").Replace(deviceID)
	normalized = strings.ToUpper(normalized)

	groups := make([]string, 0, (len(normalized)+1)/2)
	for i := 0; i < len(normalized); i += 2 {
		end := i + 2
		if end > len(normalized) {
			end = len(normalized)
		}
		groups = append(groups, normalized[i:end])
	}

	return strings.Join(groups, "-")
}

// declareExchanges идемпотентно объявляет все обменники на канале.
// Ошибка объявления — фатальная: с некорректной топологией работать нельзя.
func declareExchanges(ch *amqp.Channel, exchanges []Exchange) error {
	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			ex.Name,
			string(ex.Kind),
			ex.Durable,
			ex.AutoDelete,
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}
	return nil
}

// declareQueue идемпотентно объявляет durable-очередь.
func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}
