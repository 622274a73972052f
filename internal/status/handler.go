package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
	"github.com/unilab/unilab/internal/telemetry"
)

// ComputerStore — персистентность компьютеров, нужная обработчику.
// Реализуется repo.ComputerRepo.
type ComputerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Computer, error)
	Create(ctx context.Context, c *domain.Computer) error
	UpdateState(ctx context.Context, c *domain.Computer) error
}

// CommandStore — персистентность команд. Реализуется repo.CommandRepo.
type CommandStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Command, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CommandStatus) error
	Finalize(ctx context.Context, cmd *domain.Command) error
}

// RoomStore — доступ к аудиториям. Реализуется repo.RoomRepo.
type RoomStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
}

// AgentMessage — конверт сообщения агента из очереди статусов.
//
// Один конверт обслуживает оба вида сообщений: heartbeat (command_id
// пуст) и результат выполнения команды (command_id задан).
type AgentMessage struct {
	ComputerID string `json:"computer_id"`
	RoomID     string `json:"room_id,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	Status     string `json:"status"`

	CommandID   string `json:"command_id,omitempty"`
	CompletedAt int64  `json:"completed_at,omitempty"` // unix seconds
	Error       string `json:"error,omitempty"`
	Output      string `json:"output,omitempty"`
}

// Handler обрабатывает входящие сообщения агентов: heartbeat-и
// обновляют состояние компьютеров (с авторегистрацией новых машин),
// результаты команд финализируют записи команд.
type Handler struct {
	computers ComputerStore
	commands  CommandStore
	rooms     RoomStore
	logger    *slog.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// Config — конфигурация Handler.
type Config struct {
	Computers ComputerStore
	Commands  CommandStore
	Rooms     RoomStore
	Logger    *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		computers: cfg.Computers,
		commands:  cfg.Commands,
		rooms:     cfg.Rooms,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle — mq.Handler для очереди статусов.
//
// Нарушения схемы сообщения заворачиваются в mq.ErrDrop: такие
// сообщения отбрасываются без requeue, ошибки БД — requeue.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	var msg AgentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decode agent message: %v", mq.ErrDrop, err)
	}

	if msg.CommandID != "" {
		return h.handleCommandResult(ctx, &msg)
	}
	return h.handleHeartbeat(ctx, &msg)
}

// handleHeartbeat обновляет статус и last_heartbeat_at компьютера.
// Неизвестный компьютер регистрируется автоматически, если аудитория
// из сообщения существует.
func (h *Handler) handleHeartbeat(ctx context.Context, msg *AgentMessage) error {
	computerID, err := uuid.Parse(msg.ComputerID)
	if err != nil {
		return fmt.Errorf("%w: invalid computer_id %q", mq.ErrDrop, msg.ComputerID)
	}

	now := h.now()
	newStatus := domain.ParseComputerStatus(msg.Status)

	computer, err := h.computers.GetByID(ctx, computerID)
	switch {
	case err == nil:
		// известный компьютер

	case errors.Is(err, repo.ErrNotFound):
		return h.registerComputer(ctx, computerID, msg, newStatus, now)

	default:
		return fmt.Errorf("get computer: %w", err)
	}

	if !computer.ApplyHeartbeat(newStatus, now) {
		// maintenance не перезаписываем, но heartbeat фиксируем
		h.logger.Debug("heartbeat received, status unchanged",
			"computer_id", computer.ID,
			"status", computer.Status,
		)
	}
	if msg.IPAddress != "" {
		computer.IPAddress = msg.IPAddress
	}

	if err := h.computers.UpdateState(ctx, computer); err != nil {
		return fmt.Errorf("update computer state: %w", err)
	}

	telemetry.HeartbeatsProcessed.Inc()
	h.logger.Debug("heartbeat processed",
		"computer_id", computer.ID,
		"status", computer.Status,
	)
	return nil
}

// registerComputer создаёт запись для нового компьютера, если
// аудитория из сообщения существует.
func (h *Handler) registerComputer(ctx context.Context, computerID uuid.UUID, msg *AgentMessage, status domain.ComputerStatus, now time.Time) error {
	if msg.RoomID == "" {
		return fmt.Errorf("%w: unknown computer %s without room_id", mq.ErrDrop, computerID)
	}
	roomID, err := uuid.Parse(msg.RoomID)
	if err != nil {
		return fmt.Errorf("%w: invalid room_id %q", mq.ErrDrop, msg.RoomID)
	}

	if _, err := h.rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: unknown room %s for new computer %s", mq.ErrDrop, roomID, computerID)
		}
		return fmt.Errorf("get room: %w", err)
	}

	heartbeatAt := now
	computer := &domain.Computer{
		ID:              computerID,
		RoomID:          roomID,
		Hostname:        msg.Hostname,
		MACAddress:      msg.MACAddress,
		IPAddress:       msg.IPAddress,
		Status:          status,
		LastHeartbeatAt: &heartbeatAt,
	}

	if err := h.computers.Create(ctx, computer); err != nil {
		if errors.Is(err, repo.ErrAlreadyExists) {
			// гонка с параллельным heartbeat — следующий проход обновит
			return nil
		}
		return fmt.Errorf("register computer: %w", err)
	}

	telemetry.ComputersRegistered.Inc()
	h.logger.Info("computer auto-registered",
		"computer_id", computerID,
		"room_id", roomID,
		"hostname", msg.Hostname,
	)
	return nil
}

// handleCommandResult переводит команду в отчитанный агентом статус.
func (h *Handler) handleCommandResult(ctx context.Context, msg *AgentMessage) error {
	commandID, err := uuid.Parse(msg.CommandID)
	if err != nil {
		return fmt.Errorf("%w: invalid command_id %q", mq.ErrDrop, msg.CommandID)
	}

	cmd, err := h.commands.GetByID(ctx, commandID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: unknown command %s", mq.ErrDrop, commandID)
		}
		return fmt.Errorf("get command: %w", err)
	}

	if cmd.IsFinished() {
		// повторная доставка результата — идемпотентно игнорируем
		h.logger.Debug("result for finished command ignored",
			"command_id", cmd.ID,
			"status", cmd.Status,
		)
		return nil
	}

	completedAt := h.now()
	if msg.CompletedAt > 0 {
		completedAt = time.Unix(msg.CompletedAt, 0)
	}

	switch domain.CommandStatus(msg.Status) {
	case domain.CommandStatusInProgress:
		if err := h.commands.UpdateStatus(ctx, cmd.ID, domain.CommandStatusInProgress); err != nil {
			return fmt.Errorf("update command status: %w", err)
		}

	case domain.CommandStatusCompleted:
		cmd.MarkCompleted(completedAt, msg.Output)
		if err := h.commands.Finalize(ctx, cmd); err != nil {
			return fmt.Errorf("finalize command: %w", err)
		}

	case domain.CommandStatusFailed:
		cmd.MarkFailed(completedAt, msg.Error, msg.Output)
		if err := h.commands.Finalize(ctx, cmd); err != nil {
			return fmt.Errorf("finalize command: %w", err)
		}

	default:
		return fmt.Errorf("%w: unexpected command result status %q", mq.ErrDrop, msg.Status)
	}

	telemetry.CommandResultsProcessed.WithLabelValues(msg.Status).Inc()
	h.logger.Info("command result processed",
		"command_id", cmd.ID,
		"status", msg.Status,
	)
	return nil
}
