// Package service holds the business rules between the request
// dispatcher and the data-access layer. Every operation returns a
// Result carrying an HTTP-style code and a human message; raw driver
// text never crosses this boundary.
package service

import "github.com/harborchat/harbor/internal/v1/db"

// ErrorCode is the service-level outcome classification. Values mirror
// HTTP status codes so response envelopes can carry them directly.
type ErrorCode int

const (
	CodeSuccess       ErrorCode = 200
	CodeBadRequest    ErrorCode = 400
	CodeUnauthorized  ErrorCode = 401
	CodeForbidden     ErrorCode = 403
	CodeNotFound      ErrorCode = 404
	CodeConflict      ErrorCode = 409
	CodeInternalError ErrorCode = 500
)

// Result is the uniform service outcome.
type Result[T any] struct {
	OK      bool
	Code    ErrorCode
	Message string
	Data    T
}

// Ok wraps a successful outcome.
func Ok[T any](data T, message string) Result[T] {
	return Result[T]{OK: true, Code: CodeSuccess, Message: message, Data: data}
}

// Fail wraps a failed outcome.
func Fail[T any](code ErrorCode, message string) Result[T] {
	return Result[T]{OK: false, Code: code, Message: message}
}

// dbFailure translates gateway-level failures. Not-found outcomes carry
// operation-specific meanings and are mapped by each caller instead.
func dbFailure[T any, U any](r db.QueryResult[U]) Result[T] {
	if r.Status == db.StatusConnectionError {
		return Fail[T](CodeInternalError, "database unavailable")
	}
	return Fail[T](CodeInternalError, "internal database error")
}
