package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/unilab/unilab/internal/domain"
)

// Command DTOs

// DispatchCommandRequest — запрос на отправку команды в аудиторию.
type DispatchCommandRequest struct {
	Type        string         `json:"type"`
	Target      string         `json:"target,omitempty"` // single | group | all (default: all)
	ComputerID  *uuid.UUID     `json:"computer_id,omitempty"`
	ComputerIDs []uuid.UUID    `json:"computer_ids,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// ComputerCommandRequest — запрос на отправку команды одному компьютеру.
type ComputerCommandRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// BroadcastRequest — запрос на широковещательную команду.
type BroadcastRequest struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// UpdateAgentsRequest — запрос на обновление всех агентов.
type UpdateAgentsRequest struct {
	Version      string `json:"version,omitempty"`
	Force        bool   `json:"force,omitempty"`
	RestartAfter bool   `json:"restart_after,omitempty"`
}

// CommandResponse — ответ с командой.
type CommandResponse struct {
	ID          uuid.UUID      `json:"id"`
	ComputerID  *uuid.UUID     `json:"computer_id,omitempty"`
	RoomID      *uuid.UUID     `json:"room_id,omitempty"`
	IsBroadcast bool           `json:"is_broadcast,omitempty"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Params      map[string]any `json:"params,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      string         `json:"output,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CommandFromDomain конвертирует domain.Command в CommandResponse.
func CommandFromDomain(c domain.Command) CommandResponse {
	params, err := domain.EncodeParams(c.Params)
	if err != nil {
		params = nil
	}
	return CommandResponse{
		ID:          c.ID,
		ComputerID:  c.ComputerID,
		RoomID:      c.RoomID,
		IsBroadcast: c.IsBroadcast,
		Type:        string(c.Type),
		Status:      string(c.Status),
		Params:      params,
		CompletedAt: c.CompletedAt,
		Error:       c.Error,
		Output:      c.Output,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Fleet DTOs

// RoomResponse — ответ с аудиторией.
type RoomResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoomFromDomain конвертирует domain.Room в RoomResponse.
func RoomFromDomain(r domain.Room) RoomResponse {
	return RoomResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

// ComputerResponse — ответ с компьютером.
type ComputerResponse struct {
	ID              uuid.UUID  `json:"id"`
	RoomID          uuid.UUID  `json:"room_id"`
	Hostname        string     `json:"hostname"`
	MACAddress      string     `json:"mac_address"`
	IPAddress       string     `json:"ip_address,omitempty"`
	Status          string     `json:"status"`
	Available       bool       `json:"available"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	PosRow          int        `json:"pos_row"`
	PosCol          int        `json:"pos_col"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ComputerFromDomain конвертирует domain.Computer в ComputerResponse.
func ComputerFromDomain(c domain.Computer) ComputerResponse {
	return ComputerResponse{
		ID:              c.ID,
		RoomID:          c.RoomID,
		Hostname:        c.Hostname,
		MACAddress:      c.MACAddress,
		IPAddress:       c.IPAddress,
		Status:          string(c.Status),
		Available:       c.Status.IsAvailable(),
		LastHeartbeatAt: c.LastHeartbeatAt,
		PosRow:          c.PosRow,
		PosCol:          c.PosCol,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
