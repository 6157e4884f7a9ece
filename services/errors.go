package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures so transport handlers can pick a
// status code without string matching.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindValidation
	KindConflict
	KindUnauthorized
	KindForbidden
)

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFoundError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func UnauthorizedError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func ForbiddenError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

func IsNotFound(err error) bool     { return isKind(err, KindNotFound) }
func IsValidation(err error) bool   { return isKind(err, KindValidation) }
func IsConflict(err error) bool     { return isKind(err, KindConflict) }
func IsUnauthorized(err error) bool { return isKind(err, KindUnauthorized) }
func IsForbidden(err error) bool    { return isKind(err, KindForbidden) }
