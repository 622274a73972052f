package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultHeartbeatTimeout — интервал без heartbeat, после которого
// компьютер считается offline.
const DefaultHeartbeatTimeout = 5 * time.Minute

// Computer — управляемый компьютер в аудитории.
//
// Агент на компьютере периодически шлёт heartbeat через брокер;
// по MAC-адресу вычисляется имя персональной очереди команд.
type Computer struct {
	// ID — уникальный идентификатор компьютера.
	ID uuid.UUID `json:"id"`

	// RoomID — аудитория, в которой стоит компьютер.
	RoomID uuid.UUID `json:"room_id"`

	// Hostname — сетевое имя компьютера.
	Hostname string `json:"hostname"`

	// MACAddress — стабильная идентичность устройства.
	// Из неё выводится имя персональной очереди агента.
	MACAddress string `json:"mac_address"`

	// IPAddress — последний известный IP.
	IPAddress string `json:"ip_address,omitempty"`

	// Status — текущий статус компьютера.
	Status ComputerStatus `json:"status"`

	// LastHeartbeatAt — время последнего heartbeat от агента.
	// Nil, если агент ещё ни разу не отчитывался.
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`

	// PosRow, PosCol — позиция на схеме аудитории.
	PosRow int `json:"pos_row"`
	PosCol int `json:"pos_col"`

	// CreatedAt — время регистрации компьютера.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTimedOut возвращает true, если heartbeat не приходил дольше timeout.
func (c *Computer) HasTimedOut(timeout time.Duration, now time.Time) bool {
	if c.LastHeartbeatAt == nil {
		return true
	}
	return now.Sub(*c.LastHeartbeatAt) > timeout
}

// ApplyHeartbeat обновляет состояние компьютера по heartbeat от агента.
// Возвращает true, если статус изменился.
//
// Статус maintenance heartbeat не перезаписывает: администратор
// снимает его вручную.
func (c *Computer) ApplyHeartbeat(status ComputerStatus, now time.Time) bool {
	c.LastHeartbeatAt = &now
	c.UpdatedAt = now

	if c.Status == ComputerStatusMaintenance {
		return false
	}

	changed := c.Status != status
	c.Status = status
	return changed
}

// ApplyTimeout переключает online↔offline по факту устаревшего или
// возобновившегося heartbeat. Возвращает true, если статус изменился.
//
// Maintenance не трогаем по той же причине, что и в ApplyHeartbeat.
func (c *Computer) ApplyTimeout(timeout time.Duration, now time.Time) bool {
	if c.Status == ComputerStatusMaintenance {
		return false
	}

	timedOut := c.HasTimedOut(timeout, now)

	if timedOut && c.Status != ComputerStatusOffline {
		c.Status = ComputerStatusOffline
		c.UpdatedAt = now
		return true
	}

	if !timedOut && c.Status == ComputerStatusOffline {
		c.Status = ComputerStatusOnline
		c.UpdatedAt = now
		return true
	}

	return false
}

// Room — аудитория (компьютерный класс).
type Room struct {
	// ID — уникальный идентификатор аудитории.
	ID uuid.UUID `json:"id"`

	// Name — название аудитории.
	Name string `json:"name"`

	// Description — описание (корпус, этаж и т.п.).
	Description string `json:"description,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}
