package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/satyaLM/override-api/internal/types"
)

// maxRequestBodySize caps request bodies. A full batch with both override
// value spellings on every item stays well below it.
const maxRequestBodySize = 2 << 20

// errorEnvelope is the failure form of the batch report: the shape callers
// parse on success, with success=false, zero counts and the messages as
// details.
func errorEnvelope(code types.ErrorCode, message string, details []string, requestID string) types.BatchReport {
	items := make([]any, len(details))
	for i, d := range details {
		items[i] = d
	}
	return types.BatchReport{
		Success:   false,
		Message:   message,
		Details:   items,
		Error:     string(code),
		RequestID: requestID,
	}
}

// JSON writes data with the given status. A marshal failure becomes the 500
// envelope instead.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		types.LoggerFromContext(r.Context(), slog.Default()).ErrorContext(r.Context(), "response marshal failed", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope(types.ErrCodeInternalUnexpected, "failed to marshal response", nil,
			types.GetRequestID(r.Context())))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes err as the failure envelope. An *types.AppError anywhere in the
// chain decides the status and code; anything else is a generic 500 and its
// text is never sent to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(),
			errorEnvelope(appErr.Code, appErr.Message, appErr.ValidationMessages(), requestID))
		return
	}

	JSON(w, r, http.StatusInternalServerError,
		errorEnvelope(types.ErrCodeInternalUnexpected, "an unexpected error occurred", nil, requestID))
}

// DecodeJSON reads a single JSON value from the body into dst. Unknown fields
// are ignored since batch callers attach their own bookkeeping keys to items.
// Every failure is a validation_invalid_json AppError (400).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}
	if dec.More() {
		return invalidJSON("request body must contain a single JSON object", nil)
	}
	return nil
}

func mapDecodeError(err error) *types.AppError {
	var (
		maxBytesErr *http.MaxBytesError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return invalidJSON(fmt.Sprintf("request body must not exceed %d bytes", maxBytesErr.Limit), err)
	case errors.As(err, &syntaxErr):
		return invalidJSON(fmt.Sprintf("malformed JSON in request body at offset %d", syntaxErr.Offset), err)
	case errors.As(err, &typeErr):
		// Surface the field in details so it reaches the response envelope.
		msg := fmt.Sprintf("%s must be of type %s", fieldOrBody(typeErr.Field), typeErr.Type)
		appErr := types.NewValidationError(types.ErrCodeValidationInvalidJSON, "invalid value for field", []string{msg})
		appErr.Err = err
		return appErr
	case errors.Is(err, io.EOF):
		return invalidJSON("request body must not be empty", err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return invalidJSON("request body ended unexpectedly", err)
	default:
		return invalidJSON("invalid JSON in request body", err)
	}
}

func invalidJSON(message string, err error) *types.AppError {
	return types.NewAppError(types.ErrCodeValidationInvalidJSON, message, err)
}

func fieldOrBody(field string) string {
	if field == "" {
		return "request body"
	}
	return field
}
