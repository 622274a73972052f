package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommandType — тип команды, которую выполняет агент.
type CommandType string

const (
	CommandTypeLock         CommandType = "LOCK"
	CommandTypeMessage      CommandType = "MESSAGE"
	CommandTypeScreenshot   CommandType = "SCREENSHOT"
	CommandTypeUpdate       CommandType = "UPDATE"
	CommandTypeRestart      CommandType = "RESTART"
	CommandTypeShutdown     CommandType = "SHUTDOWN"
	CommandTypeLogOut       CommandType = "LOG_OUT"
	CommandTypeCustom       CommandType = "CUSTOM"
	CommandTypeExecute      CommandType = "EXECUTE"
	CommandTypeStatus       CommandType = "STATUS"
	CommandTypeFirewallOn   CommandType = "FIREWALL_ON"
	CommandTypeFirewallOff  CommandType = "FIREWALL_OFF"
	CommandTypeBlockWebsite CommandType = "BLOCK_WEBSITE"
)

// IsValid возвращает true для известного типа команды.
func (t CommandType) IsValid() bool {
	switch t {
	case CommandTypeLock, CommandTypeMessage, CommandTypeScreenshot,
		CommandTypeUpdate, CommandTypeRestart, CommandTypeShutdown,
		CommandTypeLogOut, CommandTypeCustom, CommandTypeExecute,
		CommandTypeStatus, CommandTypeFirewallOn, CommandTypeFirewallOff,
		CommandTypeBlockWebsite:
		return true
	default:
		return false
	}
}

// Command — команда администратора для одного или нескольких агентов.
//
// Command создаётся слоем dispatch ДО любой публикации в брокер:
// каждая попытка публикации соответствует ровно одной записи,
// и по итогу публикации запись переводится в sent либо queued.
// Команда не может потеряться молча.
//
// Адресация: либо ComputerID, либо RoomID (не оба сразу).
// Широковещательные команды не имеют ни того, ни другого
// и помечаются IsBroadcast.
type Command struct {
	// ID — уникальный идентификатор команды.
	ID uuid.UUID `json:"id"`

	// ComputerID — целевой компьютер (nil для room/broadcast команд).
	ComputerID *uuid.UUID `json:"computer_id,omitempty"`

	// RoomID — целевая аудитория (nil для single/broadcast команд).
	RoomID *uuid.UUID `json:"room_id,omitempty"`

	// IsBroadcast — команда адресована всем агентам системы.
	IsBroadcast bool `json:"is_broadcast,omitempty"`

	// Type — тип команды.
	Type CommandType `json:"type"`

	// Status — текущий статус доставки/выполнения.
	Status CommandStatus `json:"status"`

	// Params — типизированные параметры команды.
	// Nil для команд без параметров (LOCK, RESTART, ...).
	Params Params `json:"params,omitempty"`

	// CompletedAt — время завершения, сообщённое агентом.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error — текст ошибки из отчёта агента.
	Error string `json:"error,omitempty"`

	// Output — вывод команды из отчёта агента (EXECUTE, CUSTOM).
	Output string `json:"output,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCommand создаёт команду в статусе pending.
func NewCommand(cmdType CommandType, params Params) *Command {
	now := time.Now()
	return &Command{
		ID:        uuid.New(),
		Type:      cmdType,
		Status:    CommandStatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkSent переводит команду в статус sent.
func (c *Command) MarkSent() {
	c.Status = CommandStatusSent
	c.UpdatedAt = time.Now()
}

// MarkQueued переводит команду в статус queued (ждёт повторной доставки).
func (c *Command) MarkQueued() {
	c.Status = CommandStatusQueued
	c.UpdatedAt = time.Now()
}

// MarkCompleted фиксирует успешный результат от агента.
func (c *Command) MarkCompleted(completedAt time.Time, output string) {
	c.Status = CommandStatusCompleted
	c.CompletedAt = &completedAt
	c.Output = output
	c.UpdatedAt = time.Now()
}

// MarkFailed фиксирует ошибку выполнения от агента.
func (c *Command) MarkFailed(completedAt time.Time, errText, output string) {
	c.Status = CommandStatusFailed
	c.CompletedAt = &completedAt
	c.Error = errText
	c.Output = output
	c.UpdatedAt = time.Now()
}

// IsFinished возвращает true, если команда завершена.
func (c *Command) IsFinished() bool {
	return c.Status.IsTerminal()
}
