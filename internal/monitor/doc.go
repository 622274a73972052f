// Package monitor — фоновая проверка состояния парка компьютеров.
//
// Sweeper по cron-расписанию сверяет время последнего heartbeat
// каждого компьютера с порогом и переключает статусы online↔offline.
// Компьютеры в maintenance проход не трогает.
package monitor
