package mq

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 50 * time.Millisecond},
		{2, 100 * time.Millisecond},
		{3, 150 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"closed connection", amqp.ErrClosed, true},
		{"eof", io.EOF, true},
		{"net timeout", timeoutErr{}, true},
		{"amqp connection-level", &amqp.Error{Code: amqp.ConnectionForced, Reason: "forced"}, true},
		{"amqp channel-level recoverable", &amqp.Error{Code: amqp.NotFound, Reason: "no queue", Recover: true}, false},
		{"application error", errors.New("invalid payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// closedPort резервирует локальный порт и сразу освобождает его:
// подключение к нему гарантированно получит connection refused.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func brokerlessPublisher(t *testing.T) *Publisher {
	t.Helper()
	cfg := ConfigFromEnv()
	cfg.Host = "127.0.0.1"
	cfg.Port = closedPort(t)
	cfg.ConnectTimeout = 200 * time.Millisecond

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPublisher(NewManager(cfg, logger), cfg, logger)
}

func TestDoPublish_BrokerDown(t *testing.T) {
	p := brokerlessPublisher(t)

	req := publishRequest{
		exchange:   p.cfg.CommandsExchange,
		routingKey: "room.101.all",
		body:       []byte(`{}`),
	}

	start := time.Now()
	if p.doPublish(context.Background(), req) {
		t.Fatal("publish must fail without a broker")
	}
	elapsed := time.Since(start)

	p.mu.Lock()
	attempts, available := p.attempts, p.available
	p.mu.Unlock()

	if attempts != maxConnectAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxConnectAttempts)
	}
	if available {
		t.Error("publisher must mark the broker unavailable")
	}
	// Между тремя попытками — минимум 50+100 мс backoff.
	if min := backoffDelay(1) + backoffDelay(2); elapsed < min {
		t.Errorf("elapsed = %s, want at least %s of backoff", elapsed, min)
	}
}

// Исчерпанный бюджет попыток: следующая публикация отвечает false
// сразу, не трогая сокеты.
func TestDoPublish_ShortCircuitAfterExhaustion(t *testing.T) {
	p := brokerlessPublisher(t)

	req := publishRequest{
		exchange:   p.cfg.CommandsExchange,
		routingKey: "room.101.all",
		body:       []byte(`{}`),
	}

	if p.doPublish(context.Background(), req) {
		t.Fatal("publish must fail without a broker")
	}

	start := time.Now()
	if p.doPublish(context.Background(), req) {
		t.Fatal("publish must keep failing after exhaustion")
	}
	if elapsed := time.Since(start); elapsed >= backoffDelay(1) {
		t.Errorf("short-circuit took %s, want an immediate refusal", elapsed)
	}
}

func TestPayloadEncode(t *testing.T) {
	payload := NewPayload("cmd-1", "SHUTDOWN", map[string]any{"delay": float64(5)})
	payload.RoomID = "room-1"

	body, err := payload.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	if decoded["command_id"] != "cmd-1" {
		t.Errorf("command_id = %v, want cmd-1", decoded["command_id"])
	}
	if decoded["type"] != "SHUTDOWN" {
		t.Errorf("type = %v, want SHUTDOWN", decoded["type"])
	}
	if decoded["room_id"] != "room-1" {
		t.Errorf("room_id = %v, want room-1", decoded["room_id"])
	}

	// timestamp — целые unix-секунды
	ts, ok := decoded["timestamp"].(float64)
	if !ok {
		t.Fatalf("timestamp missing or not a number: %v", decoded["timestamp"])
	}
	if time.Since(time.Unix(int64(ts), 0)) > time.Minute {
		t.Errorf("timestamp too old: %v", ts)
	}

	params, ok := decoded["params"].(map[string]any)
	if !ok {
		t.Fatalf("params missing: %v", decoded["params"])
	}
	if params["delay"] != float64(5) {
		t.Errorf("params.delay = %v, want 5", params["delay"])
	}

	// is_broadcast не задан — не должен сериализоваться
	if _, present := decoded["is_broadcast"]; present {
		t.Error("is_broadcast should be omitted when false")
	}
}

func TestPayloadEncode_NoParams(t *testing.T) {
	payload := NewPayload("cmd-2", "LOCK", nil)

	body, err := payload.Encode()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	if _, present := decoded["params"]; present {
		t.Error("params should be omitted when nil")
	}
}
