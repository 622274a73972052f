package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/telemetry"
)

// ComputerStore — доступ к компьютерам, нужный мониторингу.
// Реализуется repo.ComputerRepo.
type ComputerStore interface {
	ListAll(ctx context.Context) ([]domain.Computer, error)
	UpdateState(ctx context.Context, c *domain.Computer) error
}

// Sweeper периодически проверяет давность heartbeat-ов и переключает
// компьютеры online↔offline. Maintenance не трогается.
type Sweeper struct {
	computers ComputerStore
	logger    *slog.Logger
	timeout   time.Duration

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Sweeper.
type Config struct {
	Computers ComputerStore
	Logger    *slog.Logger

	// Timeout — интервал без heartbeat, после которого компьютер
	// считается offline (default: domain.DefaultHeartbeatTimeout).
	Timeout time.Duration
}

// New создаёт Sweeper.
func New(cfg Config) *Sweeper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultHeartbeatTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		computers: cfg.Computers,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Run выполняет проходы по расписанию до отмены контекста.
func (s *Sweeper) Run(ctx context.Context, schedule cron.Schedule) {
	for {
		next := schedule.Next(s.now())
		wait := time.Until(next)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Error("timeout sweep failed", "error", err)
		}
	}
}

// Tick выполняет один проход проверки таймаутов.
//
// Ошибка обновления одного компьютера не блокирует остальные.
func (s *Sweeper) Tick(ctx context.Context) error {
	now := s.now()

	computers, err := s.computers.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list computers: %w", err)
	}

	var flipped int
	for i := range computers {
		computer := &computers[i]

		if !computer.ApplyTimeout(s.timeout, now) {
			continue
		}

		if err := s.computers.UpdateState(ctx, computer); err != nil {
			s.logger.Error("failed to update computer status",
				"computer_id", computer.ID,
				"status", computer.Status,
				"error", err,
			)
			continue
		}

		flipped++
		if computer.Status == domain.ComputerStatusOffline {
			telemetry.ComputersTimedOut.Inc()
		}
		s.logger.Info("computer status flipped by timeout sweep",
			"computer_id", computer.ID,
			"status", computer.Status,
		)
	}

	if flipped > 0 {
		s.logger.Info("timeout sweep completed",
			"checked", len(computers),
			"flipped", flipped,
		)
	}
	return nil
}
