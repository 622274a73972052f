package mq

import (
	"errors"
	"io"
	"net"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDrop — обёртка для ошибок обработчика, после которых сообщение
// нужно отклонить без возврата в очередь (reject, requeue=false).
//
// Используется для сообщений, которые не станут корректными при повторе:
// нарушение схемы, неизвестный формат. Повторная доставка таких
// сообщений только жгла бы циклы.
var ErrDrop = errors.New("drop message")

// isConnectionError разделяет транзиентные ошибки соединения
// (ретраим с backoff) и прикладные ошибки (не ретраим: повтор
// не починит неправильный exchange или routing key).
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, amqp.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// У AMQP-ошибок сервер различает channel-level (soft, Recover=true)
	// и connection-level (hard) исключения. Ретраем только последние.
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return !amqpErr.Recover
	}

	return false
}
