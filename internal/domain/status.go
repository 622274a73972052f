package domain

// CommandStatus — статус команды.
//
// Жизненный цикл:
//
//	PENDING → SENT → IN_PROGRESS → COMPLETED
//	        ↘ QUEUED (брокер недоступен, команда ждёт повторной доставки)
//	                               ↘ FAILED
//
// QUEUED — не терминальный статус: redelivery-воркер публикует такие
// команды повторно, как только брокер снова доступен.
type CommandStatus string

const (
	// CommandStatusPending — запись создана, публикация ещё не выполнялась.
	CommandStatusPending CommandStatus = "pending"

	// CommandStatusQueued — публикация не удалась, команда сохранена
	// в БД и ожидает повторной доставки.
	CommandStatusQueued CommandStatus = "queued"

	// CommandStatusSent — команда подтверждённо опубликована в брокер.
	CommandStatusSent CommandStatus = "sent"

	// CommandStatusInProgress — агент начал выполнение команды.
	CommandStatusInProgress CommandStatus = "in_progress"

	// CommandStatusCompleted — агент отчитался об успешном выполнении.
	CommandStatusCompleted CommandStatus = "completed"

	// CommandStatusFailed — агент отчитался об ошибке выполнения.
	CommandStatusFailed CommandStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный (команда завершена).
func (s CommandStatus) IsTerminal() bool {
	switch s {
	case CommandStatusCompleted, CommandStatusFailed:
		return true
	default:
		return false
	}
}

// NeedsRedelivery возвращает true, если команду нужно публиковать повторно.
func (s CommandStatus) NeedsRedelivery() bool {
	switch s {
	case CommandStatusPending, CommandStatusQueued:
		return true
	default:
		return false
	}
}

// ComputerStatus — статус компьютера.
//
// Единственный источник истины для всех компонентов: и consumer,
// и monitor, и dispatch сравнивают статусы только через этот тип.
type ComputerStatus string

const (
	// ComputerStatusOnline — компьютер активен и отвечает.
	ComputerStatusOnline ComputerStatus = "online"

	// ComputerStatusOffline — компьютер не отвечает.
	ComputerStatusOffline ComputerStatus = "offline"

	// ComputerStatusShuttingDown — компьютер выключается.
	ComputerStatusShuttingDown ComputerStatus = "shutting_down"

	// ComputerStatusIdle — компьютер включён, но пользователь не вошёл.
	ComputerStatusIdle ComputerStatus = "idle"

	// ComputerStatusMaintenance — компьютер на обслуживании.
	// Heartbeat и timeout-sweep этот статус не перезаписывают.
	ComputerStatusMaintenance ComputerStatus = "maintenance"
)

// IsAvailable возвращает true, если компьютер может принимать команды.
// Критерий единый для single/group/all и broadcast-рассылок.
func (s ComputerStatus) IsAvailable() bool {
	switch s {
	case ComputerStatusOnline, ComputerStatusIdle:
		return true
	default:
		return false
	}
}

// ParseComputerStatus парсит строку из heartbeat-сообщения.
// Неизвестные значения считаются offline.
func ParseComputerStatus(s string) ComputerStatus {
	switch ComputerStatus(s) {
	case ComputerStatusOnline, ComputerStatusOffline, ComputerStatusShuttingDown,
		ComputerStatusIdle, ComputerStatusMaintenance:
		return ComputerStatus(s)
	default:
		return ComputerStatusOffline
	}
}
