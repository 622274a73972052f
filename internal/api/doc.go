// Package api — HTTP API консоли управления.
//
// Маршруты отправки команд делегируют оркестрации dispatch, маршруты
// чтения ходят в репозитории напрямую. Приём результатов от агентов
// по HTTP использует тот же обработчик, что и очередь статусов.
package api
