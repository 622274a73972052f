package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/dispatch"
	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/mq"
	"github.com/unilab/unilab/internal/repo"
)

type fakeDispatcher struct {
	result  *dispatch.Result
	err     error
	lastReq *dispatch.Request
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	f.lastReq = &req
	return f.result, f.err
}

func (f *fakeDispatcher) Broadcast(ctx context.Context, cmdType domain.CommandType, params domain.Params) (*dispatch.Result, error) {
	return f.result, f.err
}

func (f *fakeDispatcher) UpdateAllAgents(ctx context.Context, params domain.UpdateParams) (*dispatch.Result, error) {
	return f.result, f.err
}

type fakeCommandReader struct {
	commands map[uuid.UUID]*domain.Command
}

func (f *fakeCommandReader) GetByID(ctx context.Context, id uuid.UUID) (*domain.Command, error) {
	cmd, ok := f.commands[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cmd, nil
}

func (f *fakeCommandReader) List(ctx context.Context, filter repo.CommandFilter) ([]domain.Command, error) {
	var out []domain.Command
	for _, cmd := range f.commands {
		out = append(out, *cmd)
	}
	return out, nil
}

type fakeFleet struct {
	rooms     map[uuid.UUID]*domain.Room
	computers map[uuid.UUID]*domain.Computer
}

func (f *fakeFleet) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var out []domain.Room
	for _, room := range f.rooms {
		out = append(out, *room)
	}
	return out, nil
}

func (f *fakeFleet) GetRoom(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return room, nil
}

func (f *fakeFleet) ListComputers(ctx context.Context, roomID uuid.UUID, ids []uuid.UUID) ([]domain.Computer, error) {
	var out []domain.Computer
	for _, c := range f.computers {
		if c.RoomID == roomID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeFleet) GetComputer(ctx context.Context, id uuid.UUID) (*domain.Computer, error) {
	c, ok := f.computers[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return c, nil
}

type fakeResultSink struct {
	err    error
	bodies [][]byte
}

func (f *fakeResultSink) Handle(ctx context.Context, body []byte) error {
	f.bodies = append(f.bodies, body)
	return f.err
}

type testEnv struct {
	dispatcher *fakeDispatcher
	commands   *fakeCommandReader
	fleet      *fakeFleet
	results    *fakeResultSink
	mux        *http.ServeMux
}

func newTestEnv() *testEnv {
	env := &testEnv{
		dispatcher: &fakeDispatcher{result: &dispatch.Result{Sent: 1}},
		commands:   &fakeCommandReader{commands: map[uuid.UUID]*domain.Command{}},
		fleet: &fakeFleet{
			rooms:     map[uuid.UUID]*domain.Room{},
			computers: map[uuid.UUID]*domain.Computer{},
		},
		results: &fakeResultSink{},
	}

	h := NewHandler(Config{
		Dispatcher: env.dispatcher,
		Commands:   env.commands,
		Fleet:      env.fleet,
		Results:    env.results,
	})

	env.mux = http.NewServeMux()
	h.RegisterRoutes(env.mux)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func TestDispatchRoomCommand(t *testing.T) {
	env := newTestEnv()
	roomID := uuid.New()

	rec := env.do(t, http.MethodPost, "/api/v1/rooms/"+roomID.String()+"/commands",
		`{"type": "MESSAGE", "params": {"text": "hello"}}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body)
	}

	req := env.dispatcher.lastReq
	if req == nil {
		t.Fatal("dispatcher was not called")
	}
	if req.RoomID != roomID {
		t.Errorf("room id = %s, want %s", req.RoomID, roomID)
	}
	// Пустая цель означает всю аудиторию.
	if req.Target != dispatch.TargetAll {
		t.Errorf("target = %s, want all", req.Target)
	}
	if req.Type != domain.CommandTypeMessage {
		t.Errorf("type = %s, want MESSAGE", req.Type)
	}
}

func TestDispatchRoomCommand_SingleWithoutComputerID(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/rooms/"+uuid.NewString()+"/commands",
		`{"type": "MESSAGE", "target": "single", "params": {"text": "hi"}}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.dispatcher.lastReq != nil {
		t.Error("dispatcher must not be called")
	}
}

func TestDispatchRoomCommand_UnknownTarget(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/rooms/"+uuid.NewString()+"/commands",
		`{"type": "MESSAGE", "target": "everything"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDispatchRoomCommand_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"room not found", dispatch.ErrRoomNotFound, http.StatusNotFound},
		{"computer not found", dispatch.ErrComputerNotFound, http.StatusNotFound},
		{"no targets", dispatch.ErrNoTargets, http.StatusUnprocessableEntity},
		{"no computers available", dispatch.ErrNoComputersAvailable, http.StatusUnprocessableEntity},
		{"invalid type", fmt.Errorf("%w: DANCE", dispatch.ErrInvalidCommandType), http.StatusBadRequest},
		{"internal", fmt.Errorf("database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.dispatcher.result = nil
			env.dispatcher.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/v1/rooms/"+uuid.NewString()+"/commands",
				`{"type": "MESSAGE"}`)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDispatchComputerCommand(t *testing.T) {
	env := newTestEnv()
	roomID := uuid.New()
	computer := &domain.Computer{ID: uuid.New(), RoomID: roomID, Status: domain.ComputerStatusOnline}
	env.fleet.computers[computer.ID] = computer

	rec := env.do(t, http.MethodPost, "/api/v1/computers/"+computer.ID.String()+"/commands",
		`{"type": "SHUTDOWN"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body)
	}

	req := env.dispatcher.lastReq
	if req == nil {
		t.Fatal("dispatcher was not called")
	}
	// Аудитория берётся из записи компьютера.
	if req.RoomID != roomID {
		t.Errorf("room id = %s, want %s", req.RoomID, roomID)
	}
	if req.Target != dispatch.TargetSingle || req.ComputerID != computer.ID {
		t.Errorf("target = %s/%s, want single/%s", req.Target, req.ComputerID, computer.ID)
	}
}

func TestDispatchComputerCommand_UnknownComputer(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodPost, "/api/v1/computers/"+uuid.NewString()+"/commands",
		`{"type": "SHUTDOWN"}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if env.dispatcher.lastReq != nil {
		t.Error("dispatcher must not be called")
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/commands/"+uuid.NewString(), "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %s, want NOT_FOUND", resp.Error.Code)
	}
}

func TestGetCommand(t *testing.T) {
	env := newTestEnv()
	cmd := domain.NewCommand(domain.CommandTypeMessage, domain.MessageParams{Text: "hi"})
	env.commands.commands[cmd.ID] = cmd

	rec := env.do(t, http.MethodGet, "/api/v1/commands/"+cmd.ID.String(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Data CommandResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ID != cmd.ID {
		t.Errorf("command id = %s, want %s", resp.Data.ID, cmd.ID)
	}
	if resp.Data.Status != string(domain.CommandStatusPending) {
		t.Errorf("status = %s, want pending", resp.Data.Status)
	}
}

func TestListCommands_InvalidRoomID(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/commands?room_id=not-a-uuid", "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetRoom(t *testing.T) {
	env := newTestEnv()
	room := &domain.Room{ID: uuid.New(), Name: "Аудитория 301"}
	env.fleet.rooms[room.ID] = room

	rec := env.do(t, http.MethodGet, "/api/v1/rooms/"+room.ID.String(), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), room.Name) {
		t.Errorf("response does not contain room name: %s", rec.Body)
	}
}

func TestListRoomComputers_UnknownRoom(t *testing.T) {
	env := newTestEnv()

	rec := env.do(t, http.MethodGet, "/api/v1/rooms/"+uuid.NewString()+"/computers", "")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitAgentResult(t *testing.T) {
	env := newTestEnv()

	body := `{"computer_id": "` + uuid.NewString() + `", "command_id": "` + uuid.NewString() + `", "status": "completed"}`
	rec := env.do(t, http.MethodPost, "/api/v1/agents/results", body)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body: %s", rec.Code, rec.Body)
	}
	if len(env.results.bodies) != 1 || string(env.results.bodies[0]) != body {
		t.Error("result sink did not receive the raw body")
	}
}

func TestSubmitAgentResult_Rejected(t *testing.T) {
	env := newTestEnv()
	env.results.err = fmt.Errorf("%w: unknown command", mq.ErrDrop)

	rec := env.do(t, http.MethodPost, "/api/v1/agents/results", `{"status": "completed"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitAgentResult_InternalError(t *testing.T) {
	env := newTestEnv()
	env.results.err = fmt.Errorf("database down")

	rec := env.do(t, http.MethodPost, "/api/v1/agents/results", `{"status": "completed"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
