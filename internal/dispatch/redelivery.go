package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/telemetry"
)

// Конфигурация redelivery по умолчанию.
const (
	defaultRedeliveryInterval = 30 * time.Second
	defaultRedeliveryBatch    = 100

	// defaultStaleAfter — возраст, после которого pending-команда
	// считается зависшей (процесс упал между публикацией и
	// обновлением статуса) и подлежит повторной доставке.
	defaultStaleAfter = time.Minute
)

// Redeliverer периодически публикует повторно команды, застрявшие
// в статусе queued (или зависшие в pending).
//
// Это вторая половина контракта «команда не теряется»: dispatch
// переводит команду в queued при недоступном брокере, Redeliverer
// доводит её до агента, когда брокер возвращается.
type Redeliverer struct {
	commands  CommandStore
	computers ComputerStore
	broker    Broker
	logger    *slog.Logger

	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
}

// RedelivererConfig — конфигурация Redeliverer.
type RedelivererConfig struct {
	Commands  CommandStore
	Computers ComputerStore
	Broker    Broker
	Logger    *slog.Logger

	Interval   time.Duration // интервал между проходами (default: 30s)
	BatchSize  int           // команд за один проход (default: 100)
	StaleAfter time.Duration // возраст зависших pending (default: 1m)
}

// NewRedeliverer создаёт Redeliverer.
func NewRedeliverer(cfg RedelivererConfig) *Redeliverer {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultRedeliveryInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRedeliveryBatch
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Redeliverer{
		commands:   cfg.Commands,
		computers:  cfg.Computers,
		broker:     cfg.Broker,
		logger:     logger,
		interval:   interval,
		batchSize:  batchSize,
		staleAfter: staleAfter,
	}
}

// Run блокируется и выполняет проходы redelivery до отмены контекста.
func (r *Redeliverer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Первый проход сразу при старте: подхватываем команды,
	// накопившиеся пока процесс был выключен.
	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep выполняет один проход повторной доставки.
func (r *Redeliverer) sweep(ctx context.Context) {
	if !r.broker.IsAvailable() {
		r.logger.Debug("broker still unavailable, skipping redelivery sweep")
		return
	}

	staleBefore := time.Now().Add(-r.staleAfter)
	cmds, err := r.commands.ListRetryable(ctx, staleBefore, r.batchSize)
	if err != nil {
		r.logger.Error("failed to list retryable commands", "error", err)
		return
	}

	if len(cmds) == 0 {
		return
	}

	r.logger.Info("redelivering queued commands", "count", len(cmds))

	delivered := 0
	for i := range cmds {
		if ctx.Err() != nil {
			return
		}
		if err := r.redeliver(ctx, &cmds[i]); err != nil {
			r.logger.Warn("redelivery failed",
				"command_id", cmds[i].ID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	r.logger.Info("redelivery sweep finished",
		"delivered", delivered,
		"total", len(cmds),
	)
}

// redeliver публикует одну команду повторно по её способу адресации.
func (r *Redeliverer) redeliver(ctx context.Context, cmd *domain.Command) error {
	raw, err := domain.EncodeParams(cmd.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	payload := mq.NewPayload(cmd.ID.String(), string(cmd.Type), raw)

	var published bool
	switch {
	case cmd.ComputerID != nil:
		computer, err := r.computers.GetByID(ctx, *cmd.ComputerID)
		if err != nil {
			return fmt.Errorf("get computer: %w", err)
		}
		published = r.broker.PublishToAgent(ctx, computer.MACAddress, payload)

	case cmd.RoomID != nil:
		payload.RoomID = cmd.RoomID.String()
		published = r.broker.PublishToRoom(ctx, cmd.RoomID.String(), payload)

	case cmd.IsBroadcast:
		payload.IsBroadcast = true
		published = r.broker.PublishBroadcast(ctx, payload)

	default:
		// Команда без цели — повреждённая запись, не ретраим.
		return fmt.Errorf("command %s has no target", cmd.ID)
	}

	if !published {
		return fmt.Errorf("publish failed")
	}

	if err := r.commands.UpdateStatus(ctx, cmd.ID, domain.CommandStatusSent); err != nil {
		return fmt.Errorf("update command status: %w", err)
	}

	telemetry.CommandsRedelivered.Inc()
	r.logger.Info("queued command delivered",
		"command_id", cmd.ID,
		"command_type", cmd.Type,
	)
	return nil
}
