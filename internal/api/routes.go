package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Logging(h.logger),
		Recovery(),
	)

	// Rooms
	mux.Handle("GET /api/v1/rooms", chain(http.HandlerFunc(h.ListRooms)))
	mux.Handle("GET /api/v1/rooms/{id}", chain(http.HandlerFunc(h.GetRoom)))
	mux.Handle("GET /api/v1/rooms/{id}/computers", chain(http.HandlerFunc(h.ListRoomComputers)))
	mux.Handle("POST /api/v1/rooms/{id}/commands", chain(http.HandlerFunc(h.DispatchRoomCommand)))

	// Computers
	mux.Handle("GET /api/v1/computers/{id}", chain(http.HandlerFunc(h.GetComputer)))
	mux.Handle("POST /api/v1/computers/{id}/commands", chain(http.HandlerFunc(h.DispatchComputerCommand)))

	// Commands
	mux.Handle("GET /api/v1/commands", chain(http.HandlerFunc(h.ListCommands)))
	mux.Handle("GET /api/v1/commands/{id}", chain(http.HandlerFunc(h.GetCommand)))
	mux.Handle("POST /api/v1/commands/broadcast", chain(http.HandlerFunc(h.BroadcastCommand)))

	// Agents
	mux.Handle("POST /api/v1/agents/update", chain(http.HandlerFunc(h.UpdateAgents)))
	mux.Handle("POST /api/v1/agents/results", chain(http.HandlerFunc(h.SubmitAgentResult)))
}
