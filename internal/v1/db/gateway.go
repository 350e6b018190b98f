package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
)

// connectionErrorMarkers are driver error substrings classified as
// ConnectionError; everything else is InternalError.
var connectionErrorMarkers = []string{"connection", "timeout", "refused", "lost", "network"}

// Gateway executes parameterised statements over pooled connections and
// classifies driver failures. A circuit breaker sheds load while the
// database is unreachable.
type Gateway struct {
	pool           *Pool
	breaker        *gobreaker.CircuitBreaker
	acquireTimeout time.Duration
}

// NewGateway wraps a pool. acquireTimeout bounds every per-statement
// connection checkout.
func NewGateway(pool *Pool, acquireTimeout time.Duration) *Gateway {
	settings := gobreaker.Settings{
		Name:    "db-gateway",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn(context.Background(), "db circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Gateway{
		pool:           pool,
		breaker:        gobreaker.NewCircuitBreaker(settings),
		acquireTimeout: acquireTimeout,
	}
}

// Pool exposes the underlying pool for health probes.
func (g *Gateway) Pool() *Pool { return g.pool }

// Execute runs one statement on a freshly acquired connection and
// releases it on every path.
func (g *Gateway) Execute(ctx context.Context, query string, args ...Value) QueryResult[ExecuteResult] {
	conn, err := g.pool.Acquire(g.acquireTimeout)
	if err != nil {
		return ConnectionError[ExecuteResult](err.Error())
	}
	defer g.pool.Release(conn)
	return g.ExecuteOn(ctx, conn, query, args...)
}

// ExecuteOn runs one statement on an already-held connection, inside its
// open transaction when one has been begun.
func (g *Gateway) ExecuteOn(ctx context.Context, conn *Conn, query string, args ...Value) QueryResult[ExecuteResult] {
	out, err := g.breaker.Execute(func() (any, error) {
		result := runStatement(ctx, conn, query, args)
		if result.Status == StatusConnectionError {
			// Only connectivity failures feed the breaker.
			return result, errors.New(result.Err)
		}
		return result, nil
	})
	if err != nil {
		if result, ok := out.(QueryResult[ExecuteResult]); ok {
			return result
		}
		// Breaker open or half-open probe rejected.
		return ConnectionError[ExecuteResult](err.Error())
	}
	return out.(QueryResult[ExecuteResult])
}

// ExecuteTx runs fn inside a transaction on a single held connection:
// commit on success, rollback on a non-success result or panic, release
// always.
func ExecuteTx[T any](g *Gateway, ctx context.Context, fn func(conn *Conn) QueryResult[T]) (result QueryResult[T]) {
	conn, err := g.pool.Acquire(g.acquireTimeout)
	if err != nil {
		return ConnectionError[T](err.Error())
	}
	defer g.pool.Release(conn)

	if err := conn.Begin(ctx); err != nil {
		conn.MarkBroken()
		return classify[T](err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = conn.Rollback()
			logging.Error(ctx, "transaction panicked", zap.Any("panic", r))
			result = InternalError[T](fmt.Sprintf("transaction panicked: %v", r))
		}
	}()

	result = fn(conn)
	if !result.IsSuccess() {
		_ = conn.Rollback()
		return result
	}
	if err := conn.Commit(); err != nil {
		conn.MarkBroken()
		return classify[T](err)
	}
	return result
}

// runStatement executes the query, surfacing every column value as a
// string for the DAL to parse.
func runStatement(ctx context.Context, conn *Conn, query string, args []Value) QueryResult[ExecuteResult] {
	rows, err := conn.QueryContext(ctx, query, driverArgs(args)...)
	if err != nil {
		result := classify[ExecuteResult](err)
		if result.Status == StatusConnectionError {
			conn.MarkBroken()
		}
		return result
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return InternalError[ExecuteResult](err.Error())
	}
	if len(cols) == 0 {
		// INSERT / UPDATE / DELETE: no result set.
		return Success(EmptyResult())
	}

	var collected [][]string
	raw := make([]sql.RawBytes, len(cols))
	scan := make([]any, len(cols))
	for i := range raw {
		scan[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return InternalError[ExecuteResult](err.Error())
		}
		row := make([]string, len(cols))
		for i, cell := range raw {
			row[i] = string(cell)
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		result := classify[ExecuteResult](err)
		if result.Status == StatusConnectionError {
			conn.MarkBroken()
		}
		return result
	}

	switch len(collected) {
	case 0:
		return NotFound[ExecuteResult]()
	case 1:
		return Success(SingleRow(collected[0]))
	default:
		return Success(MultiRow(collected))
	}
}

// classify maps a driver error into the gateway taxonomy.
func classify[T any](err error) QueryResult[T] {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrAcquireTimeout) ||
		errors.Is(err, ErrPoolClosed) {
		return ConnectionError[T](err.Error())
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return ConnectionError[T](err.Error())
		}
	}
	return InternalError[T](err.Error())
}
