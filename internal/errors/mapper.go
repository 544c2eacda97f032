// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// GenericMessage is returned for persistence and internal failures outside development.
const GenericMessage = "Something went wrong"

// Map converts repo/infra errors into classified domain errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Message: "Record not found", Err: err}

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: "Record already exists", Err: err}

	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindPersistence, Message: "Request timed out", Err: err}

	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindPersistence, Message: "Request was canceled", Err: err}

	default:
		return &Error{Kind: KindPersistence, Message: GenericMessage, Err: err}
	}
}

// Response is the transport view of an error.
type Response struct {
	Status  int
	Message string
	// Detail carries the underlying error text in development mode only.
	Detail string
}

// HTTP maps err onto a status code and a client-safe message.
func HTTP(err error, development bool) Response {
	mapped := Map(err)

	var e *Error
	if !errors.As(mapped, &e) {
		return Response{Status: http.StatusInternalServerError, Message: GenericMessage}
	}

	resp := Response{Message: e.Message}
	switch e.Kind {
	case KindValidation:
		resp.Status = http.StatusBadRequest
	case KindNotFound:
		resp.Status = http.StatusNotFound
	case KindConflict:
		resp.Status = http.StatusConflict
	case KindAuth:
		resp.Status = http.StatusUnauthorized
	case KindForbidden:
		resp.Status = http.StatusForbidden
	default:
		resp.Status = http.StatusInternalServerError
		resp.Message = GenericMessage
	}

	if development && e.Err != nil {
		resp.Detail = e.Err.Error()
	}
	return resp
}

// Public returns the client-safe message for err, used on the realtime path.
func Public(err error) string {
	return HTTP(err, false).Message
}
