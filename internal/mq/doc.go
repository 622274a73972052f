// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - config.go    — настройки брокера и топологии из окружения
//   - topology.go  — обменники, routing key, имена очередей агентов
//   - conn.go      — пул соединений/каналов по (роль, ключ)
//   - publisher.go — публикация команд с ограниченным ретраем
//   - consumer.go  — потребление статусов/результатов от агентов
//   - payload.go   — wire-формат команды
//
// Топология:
//   - unilab.commands  (direct)  — команды аудиториям
//   - unilab.status    (topic)   — heartbeat и результаты (status.#)
//   - unilab.broadcast (fanout)  — общесистемные команды
//   - персональные очереди агентов (default exchange, имя из MAC)
package mq
