package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/tribegate/tribegate/internal/logger"
	"github.com/tribegate/tribegate/internal/middleware"
	apperrors "github.com/tribegate/tribegate/pkg/errors"
)

// errorResponse is the wire shape of every error.
type errorResponse struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// messageResponse acknowledges a mutation with no other payload.
type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError renders err as {error:{code,message}}. Anything that is not an
// AppError is a 500; causes and details are logged, never rendered.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "error", err)
	} else {
		logger.Debug(r.Context(), "request rejected", "code", appErr.Code, "error", err)
	}

	writeJSON(w, appErr.StatusCode, errorResponse{Error: errorPayload{Code: appErr.Code, Message: appErr.Message}})
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.Validation("request body too large")
	}
	return apperrors.NewWithDetail(apperrors.ErrCodeBadRequest, "Invalid request body", err.Error(), http.StatusBadRequest)
}

// actorID is the authenticated account. Routes that call it sit behind
// the session middleware.
func actorID(r *http.Request) int64 {
	id, _ := middleware.GetAccountID(r.Context())
	return id
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation(name + " must be an integer")
	}
	return n, nil
}

// queryInt64Ptr parses an optional int64 query parameter.
func queryInt64Ptr(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperrors.Validation(name + " must be an integer")
	}
	return &n, nil
}

func parseAccountID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("invalid user id")
	}
	return id, nil
}
