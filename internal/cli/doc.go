// Package cli — реализация команд консольного клиента unilab.
//
// Клиент работает через HTTP API и поддерживает табличный (по
// умолчанию) и JSON-вывод.
package cli
