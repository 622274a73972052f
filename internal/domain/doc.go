// Package domain содержит основные сущности системы.
//
// Типы:
//   - Command  — команда администратора для агента(ов)
//   - Computer — управляемый компьютер с heartbeat-состоянием
//   - Room     — аудитория (компьютерный класс)
//   - Params   — типизированные параметры команд
//
// Domain не зависит от инфраструктуры (БД, брокер) и описывает
// жизненные циклы статусов, из которых исходят все остальные пакеты.
package domain
