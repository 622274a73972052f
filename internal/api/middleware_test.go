package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/unilab/unilab/internal/telemetry"
)

func chainWithLog(buf *bytes.Buffer, h http.HandlerFunc) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	return Chain(Logging(logger), Recovery())(h)
}

func TestLogging_RequestLoggerInContext(t *testing.T) {
	var buf bytes.Buffer

	var ctxLogger *slog.Logger
	h := chainWithLog(&buf, func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = telemetry.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if ctxLogger == slog.Default() {
		t.Error("handler must see the request-scoped logger, not the global one")
	}

	log := buf.String()
	// Лог запроса несёт метод, путь и фактический статус.
	if !strings.Contains(log, `"path":"/api/v1/rooms"`) {
		t.Errorf("request log misses path: %s", log)
	}
	if !strings.Contains(log, `"status":418`) {
		t.Errorf("request log misses written status: %s", log)
	}
}

func TestRecovery_PanicBecomes500(t *testing.T) {
	var buf bytes.Buffer

	h := chainWithLog(&buf, func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	log := buf.String()
	if !strings.Contains(log, "panic recovered") {
		t.Errorf("panic must be logged: %s", log)
	}
	// Паника логируется request-scoped логгером с атрибутами запроса.
	if !strings.Contains(log, `"path":"/api/v1/rooms"`) {
		t.Errorf("panic log misses request attributes: %s", log)
	}
	if !strings.Contains(log, `"status":500`) {
		t.Errorf("request log misses recovery status: %s", log)
	}
}
