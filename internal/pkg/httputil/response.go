package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ignite/podmatch/internal/pkg/logger"
)

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// Success writes a 200 envelope. payload must marshal to a JSON object (or
// be nil); its fields are merged next to "success": true.
func Success(w http.ResponseWriter, payload any) {
	body := map[string]any{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			InternalError(w, fmt.Errorf("marshal payload: %w", err), "internal server error")
			return
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			InternalError(w, fmt.Errorf("payload is not an object: %w", err), "internal server error")
			return
		}
	}
	body["success"] = true
	JSON(w, http.StatusOK, body)
}

// Fail writes a failure envelope with status.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Success: false, Error: message})
}

// BadRequest writes a 400 failure.
func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 failure.
func NotFound(w http.ResponseWriter, message string) {
	Fail(w, http.StatusNotFound, message)
}

// Unauthorized writes a 401 failure.
func Unauthorized(w http.ResponseWriter, message string) {
	Fail(w, http.StatusUnauthorized, message)
}

// InternalError logs err and writes a 500 with publicMsg. The internal
// error text never reaches the client.
func InternalError(w http.ResponseWriter, err error, publicMsg string) {
	logger.Error(publicMsg, "error", err)
	Fail(w, http.StatusInternalServerError, publicMsg)
}

// Decode reads a JSON body into dst. On failure it writes a 400 and
// returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		BadRequest(w, "request body is required")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
