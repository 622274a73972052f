package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/dispatch"
	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/repo"
)

// Dispatcher — оркестрация команд, нужная API.
// Реализуется dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	Broadcast(ctx context.Context, cmdType domain.CommandType, params domain.Params) (*dispatch.Result, error)
	UpdateAllAgents(ctx context.Context, params domain.UpdateParams) (*dispatch.Result, error)
}

// ResultSink — приём результатов команд от агентов.
// Реализуется status.Handler: HTTP-путь и очередь статусов
// обрабатываются одним кодом.
type ResultSink interface {
	Handle(ctx context.Context, body []byte) error
}

// CommandReader — чтение команд для истории и статусов.
// Реализуется repo.CommandRepo.
type CommandReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Command, error)
	List(ctx context.Context, filter repo.CommandFilter) ([]domain.Command, error)
}

// FleetReader — чтение аудиторий и компьютеров.
// Реализуется парой repo.RoomRepo / repo.ComputerRepo.
type FleetReader interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	ListComputers(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) ([]domain.Computer, error)
	GetComputer(ctx context.Context, id uuid.UUID) (*domain.Computer, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dispatcher Dispatcher
	commands   CommandReader
	fleet      FleetReader
	results    ResultSink
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Dispatcher Dispatcher
	Commands   CommandReader
	Fleet      FleetReader
	Results    ResultSink
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: cfg.Dispatcher,
		commands:   cfg.Commands,
		fleet:      cfg.Fleet,
		results:    cfg.Results,
		logger:     logger,
	}
}

// Fleet объединяет репозитории аудиторий и компьютеров в FleetReader.
type Fleet struct {
	Rooms     *repo.RoomRepo
	Computers *repo.ComputerRepo
}

func (f *Fleet) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return f.Rooms.List(ctx)
}

func (f *Fleet) GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	return f.Rooms.GetByID(ctx, id)
}

func (f *Fleet) ListComputers(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) ([]domain.Computer, error) {
	return f.Computers.ListInRoom(ctx, roomID, ids)
}

func (f *Fleet) GetComputer(ctx context.Context, id uuid.UUID) (*domain.Computer, error) {
	return f.Computers.GetByID(ctx, id)
}
