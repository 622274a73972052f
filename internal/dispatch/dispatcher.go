package dispatch

import (
	"context"
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

// CommandStore — персистентность команд, нужная оркестрации.
// Реализуется repo.CommandRepo.
type CommandStore interface {
	Create(ctx context.Context, cmd *domain.Command) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CommandStatus) error
	ListRetryable(ctx context.Context, staleBefore time.Time, limit int) ([]domain.Command, error)
}

// ComputerStore — доступ к компьютерам. Реализуется repo.ComputerRepo.
type ComputerStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Computer, error)
	GetInRoom(ctx context.Context, roomID, computerID uuid.UUID) (*domain.Computer, error)
	ListInRoom(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) ([]domain.Computer, error)
	CountAvailable(ctx context.Context, roomID uuid.UUID) (int, error)
	CountAvailableTotal(ctx context.Context) (int, error)
}

// RoomStore — доступ к аудиториям. Реализуется repo.RoomRepo.
type RoomStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
}

// Broker — публикация команд. Реализуется mq.Publisher.
//
// Методы возвращают bool, не ошибку: для оркестрации важен только
// факт доставки, детали ретраев остаются внутри mq.
type Broker interface {
	IsAvailable() bool
	PublishToAgent(ctx context.Context, deviceID string, payload mq.Payload) bool
	PublishToRoom(ctx context.Context, roomID string, payload mq.Payload) bool
	PublishBroadcast(ctx context.Context, payload mq.Payload) bool
}

// TargetType — способ адресации команды внутри аудитории.
type TargetType string

const (
	// TargetSingle — один компьютер.
	TargetSingle TargetType = "single"

	// TargetGroup — явный список компьютеров.
	TargetGroup TargetType = "group"

	// TargetAll — вся аудитория.
	TargetAll TargetType = "all"
)

// Request — запрос на отправку команды в аудиторию.
type Request struct {
	RoomID      uuid.UUID
	Target      TargetType
	ComputerID  uuid.UUID   // для single
	ComputerIDs []uuid.UUID // для group
	Type        domain.CommandType
	Params      domain.Params
}

// Outcome — итог доставки для одной созданной команды.
type Outcome struct {
	CommandID  uuid.UUID            `json:"command_id"`
	ComputerID *uuid.UUID           `json:"computer_id,omitempty"`
	Status     domain.CommandStatus `json:"status"`
}

// Result — итог оркестрации запроса.
//
// Каждая созданная команда получает терминальный для публикации статус
// sent либо queued; очередь — тоже успех (команда durable и будет
// доставлена позже), поэтому вызов с недоступным брокером не является
// ошибкой.
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
	Sent     int       `json:"sent"`
	Queued   int       `json:"queued"`
}

// Dispatcher — слой оркестрации команд (Action layer).
//
// Решает fan-out по цели, создаёт запись команды ДО публикации и
// согласует её статус с фактическим исходом публикации. Недоступность
// брокера превращается в durable-статус queued, а не в потерянное
// сообщение.
type Dispatcher struct {
	commands  CommandStore
	computers ComputerStore
	rooms     RoomStore
	broker    Broker
	logger    *slog.Logger

	// onQueued — подписчики события command.queued.
	onQueued []func(cmd *domain.Command)
}

// Config — конфигурация Dispatcher.
type Config struct {
	Commands  CommandStore
	Computers ComputerStore
	Rooms     RoomStore
	Broker    Broker
	Logger    *slog.Logger
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		commands:  cfg.Commands,
		computers: cfg.Computers,
		rooms:     cfg.Rooms,
		broker:    cfg.Broker,
		logger:    logger,
	}
}

// OnQueued регистрирует подписчика события command.queued.
// Вызывается при каждом переходе команды в статус queued.
func (d *Dispatcher) OnQueued(fn func(cmd *domain.Command)) {
	d.onQueued = append(d.onQueued, fn)
}

// Dispatch выполняет запрос на отправку команды.
//
// Ошибка возвращается только при невалидной цели или отказе БД —
// в этих случаях записи команд не создаются (fail fast, без
// частичного состояния). Проблемы с брокером ошибкой не являются.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommandType, req.Type)
	}

	switch req.Target {
	case TargetSingle:
		return d.dispatchSingle(ctx, req)
	case TargetGroup:
		return d.dispatchGroup(ctx, req)
	case TargetAll:
		return d.dispatchRoom(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, req.Target)
	}
}

// dispatchSingle отправляет команду одному компьютеру.
// Принадлежность компьютера аудитории проверяется до создания записи.
func (d *Dispatcher) dispatchSingle(ctx context.Context, req Request) (*Result, error) {
	computer, err := d.computers.GetInRoom(ctx, req.RoomID, req.ComputerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			d.logger.Warn("command for unknown computer rejected",
				"computer_id", req.ComputerID,
				"room_id", req.RoomID,
			)
			return nil, ErrComputerNotFound
		}
		return nil, fmt.Errorf("get computer: %w", err)
	}

	outcome, err := d.deliverToComputer(ctx, computer, req.Type, req.Params)
	if err != nil {
		return nil, err
	}

	result := &Result{Outcomes: []Outcome{outcome}}
	result.count(outcome)
	return result, nil
}

// dispatchGroup отправляет команду списку компьютеров; каждый компьютер
// обрабатывается независимо. Успех = хотя бы одна команда создана.
func (d *Dispatcher) dispatchGroup(ctx context.Context, req Request) (*Result, error) {
	computers, err := d.computers.ListInRoom(ctx, req.RoomID, req.ComputerIDs)
	if err != nil {
		return nil, fmt.Errorf("list computers: %w", err)
	}

	if len(computers) == 0 {
		d.logger.Warn("no valid computers for group command",
			"room_id", req.RoomID,
			"requested", len(req.ComputerIDs),
		)
		return nil, ErrNoTargets
	}

	result := &Result{}
	for i := range computers {
		outcome, err := d.deliverToComputer(ctx, &computers[i], req.Type, req.Params)
		if err != nil {
			return nil, err
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.count(outcome)
	}
	return result, nil
}

// dispatchRoom отправляет одну room-команду на всю аудиторию.
// Требует хотя бы один доступный компьютер, иначе запись не создаётся.
func (d *Dispatcher) dispatchRoom(ctx context.Context, req Request) (*Result, error) {
	room, err := d.rooms.GetByID(ctx, req.RoomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	available, err := d.computers.CountAvailable(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("count available computers: %w", err)
	}
	if available == 0 {
		d.logger.Warn("no available computers for room command", "room_id", room.ID)
		return nil, ErrNoComputersAvailable
	}

	cmd := domain.NewCommand(req.Type, req.Params)
	roomID := room.ID
	cmd.RoomID = &roomID

	if err := d.commands.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	logger := telemetry.WithRoomID(telemetry.WithCommandID(d.logger, cmd.ID.String()), roomID.String())

	if !d.broker.IsAvailable() {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return nil, err
		}
		return singleOutcomeResult(cmd), nil
	}

	payload, err := d.buildPayload(cmd)
	if err != nil {
		return nil, err
	}
	payload.RoomID = roomID.String()

	if d.broker.PublishToRoom(ctx, roomID.String(), payload) {
		if err := d.markSent(ctx, cmd, logger); err != nil {
			return nil, err
		}
	} else {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return nil, err
		}
	}

	return singleOutcomeResult(cmd), nil
}

// Broadcast отправляет общесистемную команду всем агентам через
// fanout-обменник.
func (d *Dispatcher) Broadcast(ctx context.Context, cmdType domain.CommandType, params domain.Params) (*Result, error) {
	if !cmdType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCommandType, cmdType)
	}

	cmd := domain.NewCommand(cmdType, params)
	cmd.IsBroadcast = true

	if err := d.commands.Create(ctx, cmd); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	logger := telemetry.WithCommandID(d.logger, cmd.ID.String())

	if !d.broker.IsAvailable() {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return nil, err
		}
		return singleOutcomeResult(cmd), nil
	}

	payload, err := d.buildPayload(cmd)
	if err != nil {
		return nil, err
	}
	payload.IsBroadcast = true

	if d.broker.PublishBroadcast(ctx, payload) {
		if err := d.markSent(ctx, cmd, logger); err != nil {
			return nil, err
		}
	} else {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return nil, err
		}
	}

	return singleOutcomeResult(cmd), nil
}

// UpdateAllAgents рассылает команду UPDATE всем агентам системы.
// Требует хотя бы один доступный компьютер.
func (d *Dispatcher) UpdateAllAgents(ctx context.Context, params domain.UpdateParams) (*Result, error) {
	available, err := d.computers.CountAvailableTotal(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available computers: %w", err)
	}
	if available == 0 {
		d.logger.Warn("no available computers for system-wide update")
		return nil, ErrNoComputersAvailable
	}

	d.logger.Info("initiating system-wide agent update",
		"computer_count", available,
		"version", params.Version,
		"force", params.Force,
	)

	return d.Broadcast(ctx, domain.CommandTypeUpdate, params)
}

// deliverToComputer создаёт команду для компьютера и публикует её
// в персональную очередь агента.
func (d *Dispatcher) deliverToComputer(ctx context.Context, computer *domain.Computer, cmdType domain.CommandType, params domain.Params) (Outcome, error) {
	cmd := domain.NewCommand(cmdType, params)
	computerID := computer.ID
	cmd.ComputerID = &computerID

	if err := d.commands.Create(ctx, cmd); err != nil {
		return Outcome{}, fmt.Errorf("create command: %w", err)
	}

	logger := telemetry.WithComputerID(telemetry.WithCommandID(d.logger, cmd.ID.String()), computerID.String())

	if !d.broker.IsAvailable() {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return Outcome{}, err
		}
		return outcomeOf(cmd), nil
	}

	payload, err := d.buildPayload(cmd)
	if err != nil {
		return Outcome{}, err
	}

	if d.broker.PublishToAgent(ctx, computer.MACAddress, payload) {
		if err := d.markSent(ctx, cmd, logger); err != nil {
			return Outcome{}, err
		}
	} else {
		if err := d.markQueued(ctx, cmd, logger); err != nil {
			return Outcome{}, err
		}
	}

	return outcomeOf(cmd), nil
}

// buildPayload собирает wire-payload команды.
func (d *Dispatcher) buildPayload(cmd *domain.Command) (mq.Payload, error) {
	raw, err := domain.EncodeParams(cmd.Params)
	if err != nil {
		return mq.Payload{}, fmt.Errorf("encode params: %w", err)
	}
	return mq.NewPayload(cmd.ID.String(), string(cmd.Type), raw), nil
}

// markSent фиксирует подтверждённую публикацию.
func (d *Dispatcher) markSent(ctx context.Context, cmd *domain.Command, logger *slog.Logger) error {
	cmd.MarkSent()
	if err := d.commands.UpdateStatus(ctx, cmd.ID, cmd.Status); err != nil {
		return fmt.Errorf("update command status: %w", err)
	}
	telemetry.CommandsDispatched.WithLabelValues("sent").Inc()
	logger.Info("command published", "command_type", cmd.Type)
	return nil
}

// markQueued переводит команду в durable-ожидание повторной доставки
// и оповещает подписчиков command.queued.
func (d *Dispatcher) markQueued(ctx context.Context, cmd *domain.Command, logger *slog.Logger) error {
	cmd.MarkQueued()
	if err := d.commands.UpdateStatus(ctx, cmd.ID, cmd.Status); err != nil {
		return fmt.Errorf("update command status: %w", err)
	}
	telemetry.CommandsDispatched.WithLabelValues("queued").Inc()
	logger.Warn("broker unavailable, command queued for later delivery",
		"command_type", cmd.Type,
	)
	for _, fn := range d.onQueued {
		fn(cmd)
	}
	return nil
}

func outcomeOf(cmd *domain.Command) Outcome {
	return Outcome{
		CommandID:  cmd.ID,
		ComputerID: cmd.ComputerID,
		Status:     cmd.Status,
	}
}

func singleOutcomeResult(cmd *domain.Command) *Result {
	result := &Result{Outcomes: []Outcome{outcomeOf(cmd)}}
	result.count(result.Outcomes[0])
	return result
}

func (r *Result) count(o Outcome) {
	switch o.Status {
	case domain.CommandStatusSent:
		r.Sent++
	case domain.CommandStatusQueued:
		r.Queued++
	}
}
