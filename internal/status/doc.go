// Package status — обработка входящих сообщений агентов.
//
// Агенты публикуют в topic-обменник статусов два вида сообщений:
// heartbeat-и (статус машины, метаданные) и результаты выполнения
// команд. Handler разбирает общий конверт AgentMessage и обновляет
// состояние компьютеров либо финализирует команды.
//
// Неизвестный компьютер регистрируется автоматически, если аудитория
// из heartbeat-а существует; статус maintenance heartbeat-ами не
// перезаписывается.
package status
