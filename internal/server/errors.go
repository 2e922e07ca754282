package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// errorResponse is the JSON error envelope: the typed code in "error",
// the human-readable explanation in "detail".
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps a domain error code to an HTTP status. Caller mistakes
// are 400, environment failures the bridge cannot fix are 502, pressure is
// 503 and blown deadlines are 504.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidTradeIntent:
		return http.StatusBadRequest
	case domain.CodeOverloaded:
		return http.StatusServiceUnavailable
	case domain.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case domain.CodeTargetGuiNotRunning,
		domain.CodeWindowLost,
		domain.CodeCapsLockUnavailable,
		domain.CodeInputVerificationFailed,
		domain.CodeNavigationFailed,
		domain.CodeExportNotProduced,
		domain.CodeExportParseFailed,
		domain.CodeBalanceUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError renders err as the JSON error envelope with the mapped
// status. Overload responses carry a Retry-After hint.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing useful to write.
		return
	}

	code := domain.CodeOf(err)
	status := statusFor(code)
	if errors.Is(err, context.DeadlineExceeded) && code == "" {
		status = http.StatusGatewayTimeout
		code = domain.CodeDeadlineExceeded
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	name := string(code)
	if name == "" {
		name = "InternalError"
	}
	s.writeJSON(w, status, errorResponse{
		Error:  name,
		Detail: domain.DetailOf(err),
	})
}

// retryAfterSeconds is the hint sent with 503 responses. One automation
// task rarely takes longer than this.
const retryAfterSeconds = 5

// writeJSON renders v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
