package api

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/tutor_booking/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[service.Code]int{
	service.CodeInsufficientFunds:          http.StatusPaymentRequired,
	service.CodeNoValidSlots:               http.StatusUnprocessableEntity,
	service.CodeCancellationWindowClosed:   http.StatusConflict,
	service.CodeModificationAlreadyPending: http.StatusConflict,
	service.CodeUnauthorized:               http.StatusForbidden,
	service.CodeInvalidStateTransition:     http.StatusConflict,
	service.CodeGatewayFailure:             http.StatusBadGateway,
	service.CodePersistenceFailure:         http.StatusInternalServerError,
	service.CodeNotFound:                   http.StatusNotFound,
	service.CodeInvalidRequest:             http.StatusBadRequest,
	service.CodeSlotUnavailable:            http.StatusConflict,
	service.CodeDuplicateRequest:           http.StatusConflict,
}

// StatusFor HTTP статус для кода ошибки движка
func StatusFor(code service.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	var engineErr *service.Error
	if !errors.As(err, &engineErr) {
		h.logger.Error("Unexpected error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(service.CodePersistenceFailure),
			Message: "internal error",
		})
		return
	}

	status := StatusFor(engineErr.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", string(engineErr.Code)),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    string(engineErr.Code),
		Message: engineErr.Message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Code:    string(service.CodeInvalidRequest),
		Message: message,
	})
}
