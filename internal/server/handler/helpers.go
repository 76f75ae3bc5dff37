package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// errorBody is every error response. Code is a stable token clients can
// switch on; Error is for humans.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: codeFor(status, nil)})
}

// errorClasses maps domain sentinels to a status and code, first match wins.
var errorClasses = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrValidation, http.StatusBadRequest, "invalid_request"},
	{domain.ErrRiskCheck, http.StatusUnprocessableEntity, "risk_rejected"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrNotRunning, http.StatusConflict, "not_running"},
	{domain.ErrAlreadyRunning, http.StatusConflict, "already_running"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrBookUnavailable, http.StatusServiceUnavailable, "book_unavailable"},
}

func statusFor(err error) int {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status
		}
	}
	return http.StatusInternalServerError
}

func codeFor(status int, err error) string {
	if err != nil {
		for _, c := range errorClasses {
			if errors.Is(err, c.err) {
				return c.code
			}
		}
	}
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal"
	}
	return ""
}

// writeDomainError answers with the status mapped from err. Server faults
// are logged and answered with msg; client faults get err's text.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+msg, slog.String("error", err.Error()))
		writeJSON(w, status, errorBody{Error: msg, Code: "internal"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: codeFor(status, err)})
}

// queryInt reads an integer query parameter in [lo, hi]. Missing means def;
// values above hi are clamped.
func queryInt(q url.Values, key string, def, lo, hi int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo {
		return 0, fmt.Errorf("%s must be an integer >= %d", key, lo)
	}
	return min(n, hi), nil
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) (domain.ListOpts, error) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit", 50, 1, 500)
	if err != nil {
		return domain.ListOpts{}, err
	}
	offset, err := queryInt(q, "offset", 0, 0, 1<<31-1)
	if err != nil {
		return domain.ListOpts{}, err
	}
	return domain.ListOpts{Limit: limit, Offset: offset}, nil
}

// page returns the window of items selected by opts.
func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return []T{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
