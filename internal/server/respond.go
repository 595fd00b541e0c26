package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"inkframe/internal/display"
	"inkframe/internal/instance"
	"inkframe/internal/orchestrator"
	"inkframe/internal/plugin"
	"inkframe/internal/schedule"
)

// envelope is the uniform response body. Every endpoint, including error
// paths, answers with one: clients never see a bare 500.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// respond answers 200 with a data payload.
func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// respondCreated answers 201 with a data payload.
func respondCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: data})
}

// respondMessage answers 200 with a human-readable confirmation.
func respondMessage(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: fmt.Sprintf(format, args...)})
}

// fail maps sentinel errors onto HTTP statuses and answers with an error
// envelope.
func fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, instance.ErrNotFound),
		errors.Is(err, orchestrator.ErrNoContent):
		status = http.StatusNotFound
	case errors.Is(err, instance.ErrUnknownPlugin),
		errors.Is(err, plugin.ErrValidation),
		errors.Is(err, schedule.ErrInvalidSlot),
		errors.Is(err, schedule.ErrInvalidTarget):
		status = http.StatusBadRequest
	case errors.Is(err, display.ErrDriver):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

// badRequest answers 400 with a formatted error.
func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, envelope{Success: false, Error: fmt.Sprintf(format, args...)})
}

// decode parses a JSON request body into v. It reports a 400 itself and
// returns false when the body is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return false
	}
	return true
}
