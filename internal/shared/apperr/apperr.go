// Package apperr holds the error kinds services return and their HTTP mapping.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindUnauthorized
	KindConflict
	KindValidation
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Message: msg} }
func Forbidden(msg string) error    { return &Error{Kind: KindForbidden, Message: msg} }
func Unauthorized(msg string) error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Message: msg} }
func Validation(msg string) error   { return &Error{Kind: KindValidation, Message: msg} }

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTP converts a service error into the fiber error handlers return.
func HTTP(err error) *fiber.Error {
	var e *Error
	if !errors.As(err, &e) {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return fiber.NewError(statusFor(e.Kind), e.Message)
}

func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindConflict:
		return fiber.StatusConflict
	case KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
