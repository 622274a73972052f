package mq

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload — команда на проводе.
//
// Wire-формат (читают агенты, менять поля нельзя):
//
//	{"command_id": "...", "type": "SHUTDOWN", "params": {...},
//	 "timestamp": 1700000000, "room_id": "...", "is_broadcast": true}
type Payload struct {
	// CommandID — идентификатор команды в БД.
	CommandID string `json:"command_id"`

	// Type — тип команды (LOCK, SHUTDOWN, ...).
	Type string `json:"type"`

	// Params — параметры команды.
	Params map[string]any `json:"params,omitempty"`

	// Timestamp — unix-время создания сообщения.
	Timestamp int64 `json:"timestamp"`

	// RoomID — аудитория (только для room-команд).
	RoomID string `json:"room_id,omitempty"`

	// IsBroadcast — признак общесистемной рассылки.
	IsBroadcast bool `json:"is_broadcast,omitempty"`
}

// NewPayload создаёт payload с текущим временем.
func NewPayload(commandID, cmdType string, params map[string]any) Payload {
	return Payload{
		CommandID: commandID,
		Type:      cmdType,
		Params:    params,
		Timestamp: time.Now().Unix(),
	}
}

// Encode сериализует payload в JSON.
func (p Payload) Encode() ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return body, nil
}
