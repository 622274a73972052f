package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/unilab/unilab/internal/mq"
)

// maxResultBodySize — предел размера тела результата команды.
const maxResultBodySize = 1 << 20 // 1 MiB

// SubmitAgentResult принимает результат выполнения команды от агента.
// POST /api/v1/agents/results
//
// HTTP-путь для агентов без доступа к брокеру; тело — тот же конверт
// AgentMessage, что и в очереди статусов.
func (h *Handler) SubmitAgentResult(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResultBodySize))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}

	if err := h.results.Handle(r.Context(), body); err != nil {
		if errors.Is(err, mq.ErrDrop) {
			BadRequest(w, err.Error())
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}
