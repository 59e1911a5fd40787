package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/teusdiniz/Tcc-Caixa-MPC/internal/common"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorInvalidInput),
		errors.Is(err, common.ErrorNoEligibleTools),
		errors.Is(err, common.ErrorNoPendingMovements):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorInvalidSessionState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// detailFor strips the sentinel suffix from client errors and hides the
// text of internal ones. Capture failures keep their cause.
func detailFor(err error, status int) string {
	if status == http.StatusInternalServerError && !errors.Is(err, common.ErrorCaptureFailed) {
		return common.ErrorInternal.Error()
	}
	msg := err.Error()
	for _, sentinel := range []error{
		common.ErrorInvalidInput,
		common.ErrorNoEligibleTools,
		common.ErrorNoPendingMovements,
		common.ErrorInvalidSessionState,
	} {
		if errors.Is(err, sentinel) {
			msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
			break
		}
	}
	return msg
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Detail: detailFor(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBody = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	_, err := readJSON(r, v)
	return err
}

// readJSON decodes the body into v and also returns it raw.
func readJSON(r *http.Request, v any) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, invalidInput("corpo da requisição ilegível")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, invalidInput("corpo JSON inválido")
	}
	return body, nil
}

func invalidInput(msg string) error {
	return &inputError{msg: msg}
}

type inputError struct{ msg string }

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Unwrap() error { return common.ErrorInvalidInput }

func intParam(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidInput("parâmetro '" + name + "' inválido")
	}
	return v, nil
}
