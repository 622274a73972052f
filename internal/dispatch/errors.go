package dispatch

import "errors"

// Ошибки слоя оркестрации команд.
//
// Все они относятся к валидации целей и возникают ДО создания записи
// команды и до любого обращения к брокеру: частичного состояния
// после них не остаётся.
var (
	// ErrRoomNotFound — аудитория не найдена.
	ErrRoomNotFound = errors.New("room not found")

	// ErrComputerNotFound — компьютер не найден или не принадлежит аудитории.
	ErrComputerNotFound = errors.New("computer not found in room")

	// ErrNoTargets — ни один из запрошенных компьютеров не найден в аудитории.
	ErrNoTargets = errors.New("no valid target computers")

	// ErrNoComputersAvailable — в аудитории нет компьютеров,
	// готовых принять команду.
	ErrNoComputersAvailable = errors.New("no computers available")

	// ErrInvalidCommandType — неизвестный тип команды.
	ErrInvalidCommandType = errors.New("invalid command type")

	// ErrInvalidTarget — некорректный тип цели.
	ErrInvalidTarget = errors.New("invalid target type")
)
