package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
)

// --- Fakes ---

type fakeComputerStore struct {
	computers map[uuid.UUID]*domain.Computer
	created   []*domain.Computer
	updated   []*domain.Computer
	createErr error
}

func newFakeComputerStore(computers ...*domain.Computer) *fakeComputerStore {
	store := &fakeComputerStore{computers: map[uuid.UUID]*domain.Computer{}}
	for _, c := range computers {
		store.computers[c.ID] = c
	}
	return store
}

func (f *fakeComputerStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Computer, error) {
	c, ok := f.computers[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

func (f *fakeComputerStore) Create(ctx context.Context, c *domain.Computer) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, c)
	f.computers[c.ID] = c
	return nil
}

func (f *fakeComputerStore) UpdateState(ctx context.Context, c *domain.Computer) error {
	f.updated = append(f.updated, c)
	return nil
}

type fakeCommandStore struct {
	commands  map[uuid.UUID]*domain.Command
	statuses  map[uuid.UUID]domain.CommandStatus
	finalized []*domain.Command
}

func newFakeCommandStore(commands ...*domain.Command) *fakeCommandStore {
	store := &fakeCommandStore{
		commands: map[uuid.UUID]*domain.Command{},
		statuses: map[uuid.UUID]domain.CommandStatus{},
	}
	for _, c := range commands {
		store.commands[c.ID] = c
	}
	return store
}

func (f *fakeCommandStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Command, error) {
	c, ok := f.commands[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

func (f *fakeCommandStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CommandStatus) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeCommandStore) Finalize(ctx context.Context, cmd *domain.Command) error {
	f.finalized = append(f.finalized, cmd)
	return nil
}

type fakeRoomStore struct {
	rooms map[uuid.UUID]*domain.Room
}

func newFakeRoomStore(rooms ...*domain.Room) *fakeRoomStore {
	store := &fakeRoomStore{rooms: map[uuid.UUID]*domain.Room{}}
	for _, r := range rooms {
		store.rooms[r.ID] = r
	}
	return store
}

func (f *fakeRoomStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	r, ok := f.rooms[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return r, nil
}

// --- Helpers ---

func newTestHandler(computers *fakeComputerStore, commands *fakeCommandStore, rooms *fakeRoomStore) *Handler {
	return NewHandler(Config{
		Computers: computers,
		Commands:  commands,
		Rooms:     rooms,
	})
}

func encode(t *testing.T, msg AgentMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return body
}

// --- Heartbeat tests ---

func TestHandle_Heartbeat_KnownComputer(t *testing.T) {
	computer := &domain.Computer{
		ID:     uuid.New(),
		RoomID: uuid.New(),
		Status: domain.ComputerStatusOffline,
	}
	computers := newFakeComputerStore(computer)
	h := newTestHandler(computers, newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: computer.ID.String(),
		Status:     "online",
		IPAddress:  "10.0.1.15",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if computer.Status != domain.ComputerStatusOnline {
		t.Errorf("status = %s, want online", computer.Status)
	}
	if computer.LastHeartbeatAt == nil {
		t.Error("heartbeat time must be recorded")
	}
	if computer.IPAddress != "10.0.1.15" {
		t.Errorf("ip = %q, want 10.0.1.15", computer.IPAddress)
	}
	if len(computers.updated) != 1 {
		t.Errorf("expected 1 state update, got %d", len(computers.updated))
	}
}

// Heartbeat не перезаписывает maintenance, но фиксирует время.
func TestHandle_Heartbeat_MaintenancePreserved(t *testing.T) {
	computer := &domain.Computer{
		ID:     uuid.New(),
		RoomID: uuid.New(),
		Status: domain.ComputerStatusMaintenance,
	}
	computers := newFakeComputerStore(computer)
	h := newTestHandler(computers, newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: computer.ID.String(),
		Status:     "online",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if computer.Status != domain.ComputerStatusMaintenance {
		t.Errorf("maintenance status must survive heartbeats, got %s", computer.Status)
	}
	if computer.LastHeartbeatAt == nil {
		t.Error("heartbeat time must still be recorded")
	}
}

func TestHandle_Heartbeat_AutoRegister(t *testing.T) {
	room := &domain.Room{ID: uuid.New(), Name: "101"}
	computers := newFakeComputerStore()
	h := newTestHandler(computers, newFakeCommandStore(), newFakeRoomStore(room))

	computerID := uuid.New()
	body := encode(t, AgentMessage{
		ComputerID: computerID.String(),
		RoomID:     room.ID.String(),
		Hostname:   "lab-101-05",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		Status:     "online",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(computers.created) != 1 {
		t.Fatalf("expected auto-registration, got %d creates", len(computers.created))
	}
	created := computers.created[0]
	if created.ID != computerID || created.RoomID != room.ID {
		t.Error("registered computer carries wrong identity")
	}
	if created.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("mac = %q", created.MACAddress)
	}
	if created.Status != domain.ComputerStatusOnline {
		t.Errorf("status = %s, want online", created.Status)
	}
	if created.LastHeartbeatAt == nil {
		t.Error("heartbeat time must be recorded at registration")
	}
}

// Два агента регистрируются одновременно: проигравший гонку получает
// от репозитория конфликт уникальности и молча уступает.
func TestHandle_Heartbeat_AutoRegisterRace(t *testing.T) {
	room := &domain.Room{ID: uuid.New(), Name: "101"}
	computers := newFakeComputerStore()
	computers.createErr = fmt.Errorf("insert computer: %w", repo.ErrAlreadyExists)
	h := newTestHandler(computers, newFakeCommandStore(), newFakeRoomStore(room))

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		RoomID:     room.ID.String(),
		Hostname:   "lab-101-05",
		MACAddress: "aa:bb:cc:dd:ee:ff",
		Status:     "online",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("duplicate registration must be ignored, got %v", err)
	}
}

// Неизвестный компьютер без аудитории — нарушение схемы, drop.
func TestHandle_Heartbeat_UnknownComputerNoRoom(t *testing.T) {
	h := newTestHandler(newFakeComputerStore(), newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		Status:     "online",
	})

	err := h.Handle(context.Background(), body)
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

func TestHandle_Heartbeat_UnknownRoom(t *testing.T) {
	computers := newFakeComputerStore()
	h := newTestHandler(computers, newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		RoomID:     uuid.New().String(),
		Status:     "online",
	})

	err := h.Handle(context.Background(), body)
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
	if len(computers.created) != 0 {
		t.Error("computer must not be registered into unknown room")
	}
}

func TestHandle_InvalidComputerID(t *testing.T) {
	h := newTestHandler(newFakeComputerStore(), newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{ComputerID: "not-a-uuid", Status: "online"})

	err := h.Handle(context.Background(), body)
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

// Неизвестное значение статуса трактуется как offline, сообщение
// при этом обрабатывается.
func TestHandle_Heartbeat_UnknownStatusValue(t *testing.T) {
	computer := &domain.Computer{
		ID:     uuid.New(),
		RoomID: uuid.New(),
		Status: domain.ComputerStatusOnline,
	}
	h := newTestHandler(newFakeComputerStore(computer), newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: computer.ID.String(),
		Status:     "sleeping",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if computer.Status != domain.ComputerStatusOffline {
		t.Errorf("status = %s, want offline fallback", computer.Status)
	}
}

// --- Command result tests ---

func TestHandle_CommandResult_Completed(t *testing.T) {
	cmd := domain.NewCommand(domain.CommandTypeExecute, domain.ExecParams{Program: "ipconfig"})
	cmd.MarkSent()
	commands := newFakeCommandStore(cmd)
	h := newTestHandler(newFakeComputerStore(), commands, newFakeRoomStore())

	completedAt := time.Now().Add(-time.Minute).Unix()
	body := encode(t, AgentMessage{
		ComputerID:  uuid.New().String(),
		CommandID:   cmd.ID.String(),
		Status:      "completed",
		CompletedAt: completedAt,
		Output:      "Windows IP Configuration",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(commands.finalized) != 1 {
		t.Fatalf("expected finalize, got %d", len(commands.finalized))
	}
	final := commands.finalized[0]
	if final.Status != domain.CommandStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Output != "Windows IP Configuration" {
		t.Errorf("output = %q", final.Output)
	}
	if final.CompletedAt == nil || final.CompletedAt.Unix() != completedAt {
		t.Error("completed_at must come from the agent message")
	}
}

func TestHandle_CommandResult_Failed(t *testing.T) {
	cmd := domain.NewCommand(domain.CommandTypeShutdown, nil)
	cmd.MarkSent()
	commands := newFakeCommandStore(cmd)
	h := newTestHandler(newFakeComputerStore(), commands, newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		CommandID:  cmd.ID.String(),
		Status:     "failed",
		Error:      "access denied",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(commands.finalized) != 1 {
		t.Fatalf("expected finalize, got %d", len(commands.finalized))
	}
	final := commands.finalized[0]
	if final.Status != domain.CommandStatusFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
	if final.Error != "access denied" {
		t.Errorf("error = %q", final.Error)
	}
}

func TestHandle_CommandResult_InProgress(t *testing.T) {
	cmd := domain.NewCommand(domain.CommandTypeUpdate, nil)
	cmd.MarkSent()
	commands := newFakeCommandStore(cmd)
	h := newTestHandler(newFakeComputerStore(), commands, newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		CommandID:  cmd.ID.String(),
		Status:     "in_progress",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if commands.statuses[cmd.ID] != domain.CommandStatusInProgress {
		t.Errorf("status = %s, want in_progress", commands.statuses[cmd.ID])
	}
	if len(commands.finalized) != 0 {
		t.Error("in_progress must not finalize the command")
	}
}

// Повторный результат для уже завершённой команды игнорируется.
func TestHandle_CommandResult_AlreadyFinished(t *testing.T) {
	cmd := domain.NewCommand(domain.CommandTypeShutdown, nil)
	cmd.MarkCompleted(time.Now(), "")
	commands := newFakeCommandStore(cmd)
	h := newTestHandler(newFakeComputerStore(), commands, newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		CommandID:  cmd.ID.String(),
		Status:     "failed",
		Error:      "late duplicate",
	})

	if err := h.Handle(context.Background(), body); err != nil {
		t.Fatalf("duplicate result must be idempotent, got: %v", err)
	}
	if len(commands.finalized) != 0 {
		t.Error("finished command must not be finalized again")
	}
}

func TestHandle_CommandResult_UnknownCommand(t *testing.T) {
	h := newTestHandler(newFakeComputerStore(), newFakeCommandStore(), newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		CommandID:  uuid.New().String(),
		Status:     "completed",
	})

	err := h.Handle(context.Background(), body)
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

func TestHandle_CommandResult_UnexpectedStatus(t *testing.T) {
	cmd := domain.NewCommand(domain.CommandTypeShutdown, nil)
	commands := newFakeCommandStore(cmd)
	h := newTestHandler(newFakeComputerStore(), commands, newFakeRoomStore())

	body := encode(t, AgentMessage{
		ComputerID: uuid.New().String(),
		CommandID:  cmd.ID.String(),
		Status:     "exploded",
	})

	err := h.Handle(context.Background(), body)
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}

func TestHandle_MalformedMessage(t *testing.T) {
	h := newTestHandler(newFakeComputerStore(), newFakeCommandStore(), newFakeRoomStore())

	err := h.Handle(context.Background(), []byte(`{"computer_id": 42}`))
	if !errors.Is(err, mq.ErrDrop) {
		t.Fatalf("expected ErrDrop, got %v", err)
	}
}
