package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/embedding"
	"github.com/ignite/podmatch/internal/outreach"
	"github.com/ignite/podmatch/internal/pkg/distlock"
	"github.com/ignite/podmatch/internal/pkg/httputil"
	"github.com/ignite/podmatch/internal/pkg/logger"
	"github.com/ignite/podmatch/internal/storage"
)

// respondError maps err to a status and writes the failure envelope.
// 4xx messages carry the error text; 5xx messages are public-safe and the
// full error only goes to the log.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, outreach.ErrUnknownEvent):
		httputil.BadRequest(w, clientMessage(err))
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, storage.ErrRunNotFound):
		httputil.NotFound(w, clientMessage(err))
	case errors.Is(err, outreach.ErrInvalidSignature):
		httputil.Unauthorized(w, "Invalid signature")
	case errors.Is(err, embedding.ErrEmbeddingFailed):
		respondSafeError(w, http.StatusInternalServerError, err, "Failed to generate embedding")
	case errors.Is(err, config.ErrMissingConfig):
		respondSafeError(w, http.StatusInternalServerError, err, "Server configuration error")
	case errors.Is(err, distlock.ErrNotAcquired):
		httputil.Fail(w, http.StatusConflict, "Another backfill is updating this spreadsheet")
	case errors.Is(err, outreach.ErrMailerDisabled):
		respondSafeError(w, http.StatusServiceUnavailable, err, "Email sending is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		respondSafeError(w, http.StatusGatewayTimeout, err, "Request timed out")
	default:
		respondSafeError(w, http.StatusInternalServerError, err, safeErrorMessage(http.StatusInternalServerError, err))
	}
}

// clientMessage strips the sentinel prefix so "validation failed: bio is
// required" reads as "bio is required".
func clientMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrValidation, domain.ErrNotFound} {
		prefix := sentinel.Error()
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimLeft(strings.TrimPrefix(msg, prefix), ": \n")
		}
	}
	if msg == "" {
		return "Bad request"
	}
	return msg
}

// respondSafeError logs the internal error and sends publicMsg.
func respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error("request failed", "status", code, "public", publicMsg, "error", internalErr)
	}
	httputil.Fail(w, code, publicMsg)
}

// safeErrorMessage maps common internal error patterns to public-safe
// messages. 4xx errors are returned as-is.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "Bad request"
	}
	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())
	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "postgrest") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	case strings.Contains(errStr, "sheets api") ||
		strings.Contains(errStr, "outreach sheet"):
		return "Failed to update outreach sheet"

	case strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access denied"):
		return "Access denied"

	default:
		return "An internal error occurred"
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	httputil.JSON(w, status, v)
}
