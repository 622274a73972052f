package api

import (
	"net/http"

	"github.com/google/uuid"
)

// ListRooms возвращает список аудиторий.
// GET /api/v1/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.fleet.ListRooms(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		result[i] = RoomFromDomain(room)
	}

	List(w, result, len(result))
}

// GetRoom возвращает аудиторию по ID.
// GET /api/v1/rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid room id")
		return
	}

	room, err := h.fleet.GetRoom(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "room not found") {
		return
	}

	Success(w, RoomFromDomain(*room))
}

// ListRoomComputers возвращает компьютеры аудитории.
// GET /api/v1/rooms/{id}/computers
func (h *Handler) ListRoomComputers(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid room id")
		return
	}

	// Проверяем, что аудитория существует
	if _, err := h.fleet.GetRoom(r.Context(), roomID); HandleRepoError(w, h.logger, err, "room not found") {
		return
	}

	computers, err := h.fleet.ListComputers(r.Context(), roomID, nil)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ComputerResponse, len(computers))
	for i, c := range computers {
		result[i] = ComputerFromDomain(c)
	}

	List(w, result, len(result))
}

// GetComputer возвращает компьютер по ID.
// GET /api/v1/computers/{id}
func (h *Handler) GetComputer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid computer id")
		return
	}

	computer, err := h.fleet.GetComputer(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "computer not found") {
		return
	}

	Success(w, ComputerFromDomain(*computer))
}
