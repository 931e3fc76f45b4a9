package service

import (
	"errors"
	"fmt"
)

// Code стабильный код ошибки движка. Презентационный слой выбирает
// сообщение пользователю по коду, а не по тексту
type Code string

const (
	CodeInsufficientFunds          Code = "INSUFFICIENT_FUNDS"
	CodeNoValidSlots               Code = "NO_VALID_SLOTS"
	CodeCancellationWindowClosed   Code = "CANCELLATION_WINDOW_CLOSED"
	CodeModificationAlreadyPending Code = "MODIFICATION_ALREADY_PENDING"
	CodeUnauthorized               Code = "UNAUTHORIZED"
	CodeInvalidStateTransition     Code = "INVALID_STATE_TRANSITION"
	CodeGatewayFailure             Code = "GATEWAY_FAILURE"
	CodePersistenceFailure         Code = "PERSISTENCE_FAILURE"
	CodeNotFound                   Code = "NOT_FOUND"
	CodeInvalidRequest             Code = "INVALID_REQUEST"
	CodeSlotUnavailable            Code = "SLOT_UNAVAILABLE"
	CodeDuplicateRequest           Code = "DUPLICATE_REQUEST"
)

// Error структурированная ошибка движка
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInsufficientFunds          = &Error{Code: CodeInsufficientFunds, Message: "insufficient wallet balance, fund your wallet and retry"}
	ErrNoValidSlots               = &Error{Code: CodeNoValidSlots, Message: "no valid availability slots for the requested dates"}
	ErrCancellationWindowClosed   = &Error{Code: CodeCancellationWindowClosed, Message: "booking can no longer be cancelled"}
	ErrModificationAlreadyPending = &Error{Code: CodeModificationAlreadyPending, Message: "booking already has a pending modification"}
	ErrUnauthorized               = &Error{Code: CodeUnauthorized, Message: "actor does not own the resource"}
	ErrInvalidStateTransition     = &Error{Code: CodeInvalidStateTransition, Message: "operation is not allowed in the current state"}
	ErrGatewayFailure             = &Error{Code: CodeGatewayFailure, Message: "payment was declined"}
	ErrPersistenceFailure         = &Error{Code: CodePersistenceFailure, Message: "the operation could not be saved, no money was taken"}
	ErrNotFound                   = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrInvalidRequest             = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrSlotUnavailable            = &Error{Code: CodeSlotUnavailable, Message: "the selected slot has just been booked"}
	ErrDuplicateRequest           = &Error{Code: CodeDuplicateRequest, Message: "the same request is already being processed"}
)

func newError(base *Error, message string, cause error) *Error {
	if message == "" {
		message = base.Message
	}
	return &Error{Code: base.Code, Message: message, Cause: cause}
}

// CodeOf возвращает код ошибки движка или пустую строку для прочих ошибок
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
