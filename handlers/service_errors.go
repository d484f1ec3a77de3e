package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/services"
	"github.com/farbook/far-chat/utils"
)

// HandleServiceError translates a service-layer error into the matching
// HTTP status and body. Unclassified errors fall through to a 500.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, err.Error())

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, err.Error(), details)

	case services.IsRateLimitError(err):
		writeErr = utils.WriteTooManyRequests(w, err.Error(), details)

	case services.IsExternalError(err):
		writeErr = utils.WriteBadGateway(w, err.Error(), details)

	case services.IsInternalError(err):
		// The cause goes to the log, never to the client
		logger.Error("internal failure", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unclassified error reached the handler",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError turns request parsing and validation failures into 400s.
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	message := err.Error()
	var details map[string]interface{}

	if utils.IsValidationError(err) {
		message = "Validation failed"
		fields := utils.GetValidationFields(err)
		details = make(map[string]interface{}, len(fields))
		for name, msg := range fields {
			details[name] = msg
		}
	}

	if writeErr := utils.WriteBadRequest(w, message, details); writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
