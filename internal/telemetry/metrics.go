package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики публикации команд.
var (
	// CommandsDispatched — команды по итогу оркестрации (sent/queued).
	CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unilab_commands_dispatched_total",
		Help: "Commands dispatched, by delivery outcome.",
	}, []string{"outcome"})

	// PublishRetries — повторы публикации после connection-class ошибок.
	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_publish_retries_total",
		Help: "Publish retries after broker connection errors.",
	})

	// PublishFailures — публикации, завершившиеся неудачей.
	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_publish_failures_total",
		Help: "Publish attempts that ultimately failed.",
	})

	// PublishUnavailable — публикации, отклонённые из-за недоступного брокера.
	PublishUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_publish_unavailable_total",
		Help: "Publishes short-circuited while the broker was marked unavailable.",
	})
)

// Метрики потребления.
var (
	// MessagesConsumed — входящие сообщения по результату (ok/requeued/rejected).
	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unilab_messages_consumed_total",
		Help: "Inbound agent messages, by handling result.",
	}, []string{"result"})

	// CommandsRedelivered — queued-команды, опубликованные повторно.
	CommandsRedelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_commands_redelivered_total",
		Help: "Queued commands successfully republished.",
	})
)

// Метрики состояния парка.
var (
	// HeartbeatsProcessed — обработанные heartbeat-сообщения агентов.
	HeartbeatsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_heartbeats_processed_total",
		Help: "Agent heartbeat messages processed.",
	})

	// ComputersRegistered — компьютеры, зарегистрированные автоматически.
	ComputersRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_computers_registered_total",
		Help: "Computers auto-registered from agent heartbeats.",
	})

	// CommandResultsProcessed — результаты команд по отчитанному статусу.
	CommandResultsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unilab_command_results_total",
		Help: "Agent command results processed, by reported status.",
	}, []string{"status"})

	// ComputersTimedOut — компьютеры, переведённые в offline по таймауту.
	ComputersTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unilab_computers_timed_out_total",
		Help: "Computers marked offline after heartbeat timeout.",
	})
)
