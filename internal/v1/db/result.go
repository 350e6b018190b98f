// Package db provides the pooled persistence gateway: a bounded pool of
// MySQL connections and a query gateway that executes parameterised
// statements over it, classifying driver failures into a small status
// taxonomy the data-access layer can switch on.
package db

// QueryStatus classifies the outcome of a database operation.
type QueryStatus int

const (
	StatusSuccess QueryStatus = iota
	StatusNotFound
	StatusConnectionError
	StatusInternalError
)

func (s QueryStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusConnectionError:
		return "connection_error"
	default:
		return "internal_error"
	}
}

// Sub-codes carried on non-success results so callers can distinguish
// outcomes sharing a status.
const (
	SubEmailTaken    = "email-taken"
	SubNameExhausted = "name-exhausted"
	SubWrongPassword = "wrong-password"
)

// QueryResult is the tagged result of a database operation. Data is only
// meaningful when Status is StatusSuccess.
type QueryResult[T any] struct {
	Status  QueryStatus
	Data    T
	SubCode string
	Err     string
}

// Success wraps a value in a successful result.
func Success[T any](data T) QueryResult[T] {
	return QueryResult[T]{Status: StatusSuccess, Data: data}
}

// NotFound reports an empty result set.
func NotFound[T any]() QueryResult[T] {
	return QueryResult[T]{Status: StatusNotFound}
}

// NotFoundSub reports a distinguished not-found outcome such as a
// uniqueness conflict.
func NotFoundSub[T any](subCode string) QueryResult[T] {
	return QueryResult[T]{Status: StatusNotFound, SubCode: subCode}
}

// ConnectionError reports a lost or unreachable database.
func ConnectionError[T any](err string) QueryResult[T] {
	return QueryResult[T]{Status: StatusConnectionError, Err: err}
}

// InternalError reports any other driver failure.
func InternalError[T any](err string) QueryResult[T] {
	return QueryResult[T]{Status: StatusInternalError, Err: err}
}

// IsSuccess reports whether the operation succeeded.
func (r QueryResult[T]) IsSuccess() bool { return r.Status == StatusSuccess }

// IsNotFound reports whether the operation matched nothing.
func (r QueryResult[T]) IsNotFound() bool { return r.Status == StatusNotFound }

// IsError reports a connection or internal failure.
func (r QueryResult[T]) IsError() bool {
	return r.Status == StatusConnectionError || r.Status == StatusInternalError
}

// Fail converts a failed result to a different payload type, preserving
// status, sub-code and message. Panics on success results.
func Fail[U, T any](r QueryResult[T]) QueryResult[U] {
	if r.IsSuccess() {
		panic("db: Fail called on a success result")
	}
	return QueryResult[U]{Status: r.Status, SubCode: r.SubCode, Err: r.Err}
}

// resultKind discriminates the ExecuteResult variants.
type resultKind int

const (
	kindEmpty resultKind = iota
	kindSingle
	kindMulti
)

// ExecuteResult is the sum of possible statement outcomes: no result set,
// a single row, or multiple rows. All column values are strings; the DAL
// parses them.
type ExecuteResult struct {
	kind resultKind
	row  []string
	rows [][]string
}

// EmptyResult is a statement outcome with no result set.
func EmptyResult() ExecuteResult { return ExecuteResult{kind: kindEmpty} }

// SingleRow wraps one result row.
func SingleRow(row []string) ExecuteResult {
	return ExecuteResult{kind: kindSingle, row: row}
}

// MultiRow wraps a multi-row result.
func MultiRow(rows [][]string) ExecuteResult {
	return ExecuteResult{kind: kindMulti, rows: rows}
}

// IsEmpty reports whether the statement produced no result set.
func (e ExecuteResult) IsEmpty() bool { return e.kind == kindEmpty }

// Row returns the single result row, or nil for other variants.
func (e ExecuteResult) Row() []string {
	if e.kind != kindSingle {
		return nil
	}
	return e.row
}

// Rows returns all result rows; a single-row result is returned as a
// one-element slice.
func (e ExecuteResult) Rows() [][]string {
	switch e.kind {
	case kindSingle:
		return [][]string{e.row}
	case kindMulti:
		return e.rows
	default:
		return nil
	}
}
