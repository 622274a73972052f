package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/dispatch"
	"github.com/unilab/unilab/internal/domain"
	"github.com/unilab/unilab/internal/repo"
)

// DispatchRoomCommand отправляет команду в аудиторию.
// POST /api/v1/rooms/{id}/commands
func (h *Handler) DispatchRoomCommand(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid room id")
		return
	}

	var req DispatchCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cmdType := domain.CommandType(req.Type)
	params, err := domain.DecodeParams(cmdType, req.Params)
	if err != nil {
		BadRequest(w, "invalid command params: "+err.Error())
		return
	}

	dreq := dispatch.Request{
		RoomID: roomID,
		Type:   cmdType,
		Params: params,
	}

	switch req.Target {
	case "", string(dispatch.TargetAll):
		dreq.Target = dispatch.TargetAll

	case string(dispatch.TargetSingle):
		if req.ComputerID == nil {
			BadRequest(w, "computer_id is required for single target")
			return
		}
		dreq.Target = dispatch.TargetSingle
		dreq.ComputerID = *req.ComputerID

	case string(dispatch.TargetGroup):
		if len(req.ComputerIDs) == 0 {
			BadRequest(w, "computer_ids is required for group target")
			return
		}
		dreq.Target = dispatch.TargetGroup
		dreq.ComputerIDs = req.ComputerIDs

	default:
		BadRequest(w, "unknown target: "+req.Target)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), dreq)
	if HandleDispatchError(w, h.logger, err) {
		return
	}

	Created(w, result)
}

// DispatchComputerCommand отправляет команду одному компьютеру.
// POST /api/v1/computers/{id}/commands
func (h *Handler) DispatchComputerCommand(w http.ResponseWriter, r *http.Request) {
	computerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid computer id")
		return
	}

	var req ComputerCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	// Аудитория нужна оркестрации для проверки принадлежности
	computer, err := h.fleet.GetComputer(r.Context(), computerID)
	if HandleRepoError(w, h.logger, err, "computer not found") {
		return
	}

	cmdType := domain.CommandType(req.Type)
	params, err := domain.DecodeParams(cmdType, req.Params)
	if err != nil {
		BadRequest(w, "invalid command params: "+err.Error())
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), dispatch.Request{
		RoomID:     computer.RoomID,
		Target:     dispatch.TargetSingle,
		ComputerID: computer.ID,
		Type:       cmdType,
		Params:     params,
	})
	if HandleDispatchError(w, h.logger, err) {
		return
	}

	Created(w, result)
}

// BroadcastCommand отправляет команду всем агентам.
// POST /api/v1/commands/broadcast
func (h *Handler) BroadcastCommand(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	cmdType := domain.CommandType(req.Type)
	params, err := domain.DecodeParams(cmdType, req.Params)
	if err != nil {
		BadRequest(w, "invalid command params: "+err.Error())
		return
	}

	result, err := h.dispatcher.Broadcast(r.Context(), cmdType, params)
	if HandleDispatchError(w, h.logger, err) {
		return
	}

	Created(w, result)
}

// UpdateAgents запускает обновление всех агентов.
// POST /api/v1/agents/update
func (h *Handler) UpdateAgents(w http.ResponseWriter, r *http.Request) {
	var req UpdateAgentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	result, err := h.dispatcher.UpdateAllAgents(r.Context(), domain.UpdateParams{
		Version:      req.Version,
		Force:        req.Force,
		RestartAfter: req.RestartAfter,
	})
	if HandleDispatchError(w, h.logger, err) {
		return
	}

	Created(w, result)
}

// GetCommand возвращает команду по ID.
// GET /api/v1/commands/{id}
func (h *Handler) GetCommand(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid command id")
		return
	}

	cmd, err := h.commands.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "command not found") {
		return
	}

	Success(w, CommandFromDomain(*cmd))
}

// ListCommands возвращает историю команд с фильтрацией.
// GET /api/v1/commands?room_id=...&computer_id=...&status=...&limit=...&offset=...
func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	filter := repo.CommandFilter{Limit: 50}

	if roomIDStr := r.URL.Query().Get("room_id"); roomIDStr != "" {
		roomID, err := uuid.Parse(roomIDStr)
		if err != nil {
			BadRequest(w, "invalid room_id")
			return
		}
		filter.RoomID = &roomID
	}

	if computerIDStr := r.URL.Query().Get("computer_id"); computerIDStr != "" {
		computerID, err := uuid.Parse(computerIDStr)
		if err != nil {
			BadRequest(w, "invalid computer_id")
			return
		}
		filter.ComputerID = &computerID
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.CommandStatus(status)
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	commands, err := h.commands.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]CommandResponse, len(commands))
	for i, cmd := range commands {
		result[i] = CommandFromDomain(cmd)
	}

	List(w, result, len(result))
}
