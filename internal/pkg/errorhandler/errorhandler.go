package errorhandler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/worksuite/worksuite-api/internal/pkg/logger"
	"github.com/worksuite/worksuite-api/internal/pkg/response"
)

// HandleError logs a failure no domain mapping recognised and writes a generic envelope.
// err stays in the log; the client only sees code and message.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := logger.FromContext(ctx).Error()
	if status < http.StatusInternalServerError {
		event = logger.FromContext(ctx).Warn()
	}
	event.
		Str("request_id", logger.RequestID(ctx)).
		Str("error_code", code).
		Int("status_code", status).
		Err(err).
		Msg(message)

	response.Error(w, status, code, message)
}

// HandlePanicError logs a recovered panic with its stack and writes a generic 500.
func HandlePanicError(ctx context.Context, w http.ResponseWriter, r *http.Request, recovered any, stack []byte) {
	logger.FromContext(ctx).Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Interface("panic", recovered).
		Bytes("stack", stack).
		Msg("Recovered from panic")

	response.InternalError(w)
}

// LogValidationError records rejected request fields at warn level.
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	fields := zerolog.Dict()
	for field, msg := range fieldErrors {
		fields.Str(field, msg)
	}
	logger.FromContext(ctx).Warn().
		Str("request_id", logger.RequestID(ctx)).
		Dict("validation_errors", fields).
		Msg("Validation error")
}
