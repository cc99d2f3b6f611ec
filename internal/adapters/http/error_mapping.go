package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/veilproof/riskscope/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps the error kind to a status code. 5xx bodies stay generic:
// internals go to the log (with redacted identifiers), never to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)

	body := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		body = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": body})
}
