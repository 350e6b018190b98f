package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// fakeScript backs a scripted in-process driver so pool and gateway
// behavior can be tested without a MySQL server. Every physical
// connection opened through it shares the script, which records dials,
// queries and transaction calls.
type fakeScript struct {
	mu sync.Mutex

	// handler produces the result of every query.
	handler func(query string, args []driver.NamedValue) (driver.Rows, error)
	pingErr error
	dialErr error

	dials     int
	queries   []recordedQuery
	begins    int
	commits   int
	rollbacks int
	closes    int
}

type recordedQuery struct {
	query string
	args  []driver.Value
}

func (s *fakeScript) dial(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	if s.dialErr != nil {
		err := s.dialErr
		s.mu.Unlock()
		return nil, err
	}
	s.dials++
	s.mu.Unlock()

	db := sql.OpenDB(fakeConnector{script: s})
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func (s *fakeScript) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeScript) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *fakeScript) recorded() []recordedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedQuery, len(s.queries))
	copy(out, s.queries)
	return out
}

func (s *fakeScript) txCounts() (begins, commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begins, s.commits, s.rollbacks
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) { return nil, driver.ErrBadConn }

type fakeConnector struct{ script *fakeScript }

func (c fakeConnector) Connect(context.Context) (driver.Conn, error) {
	return &fakeConn{script: c.script}, nil
}

func (c fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeConn struct{ script *fakeScript }

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fake driver: prepared statements unsupported")
}

func (c *fakeConn) Close() error {
	c.script.mu.Lock()
	c.script.closes++
	c.script.mu.Unlock()
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.script.mu.Lock()
	c.script.begins++
	c.script.mu.Unlock()
	return &fakeTx{script: c.script}, nil
}

func (c *fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	c.script.mu.Lock()
	c.script.queries = append(c.script.queries, recordedQuery{query: query, args: values})
	handler := c.script.handler
	c.script.mu.Unlock()

	if handler == nil {
		return rowsOf(nil), nil
	}
	return handler(query, args)
}

func (c *fakeConn) Ping(context.Context) error {
	c.script.mu.Lock()
	defer c.script.mu.Unlock()
	return c.script.pingErr
}

type fakeTx struct{ script *fakeScript }

func (t *fakeTx) Commit() error {
	t.script.mu.Lock()
	t.script.commits++
	t.script.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback() error {
	t.script.mu.Lock()
	t.script.rollbacks++
	t.script.mu.Unlock()
	return nil
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

// rowsOf builds a scripted result set. A nil column list models a
// statement with no result set.
func rowsOf(cols []string, rows ...[]string) driver.Rows {
	converted := make([][]driver.Value, len(rows))
	for i, row := range rows {
		values := make([]driver.Value, len(row))
		for j, cell := range row {
			values[j] = []byte(cell)
		}
		converted[i] = values
	}
	return &fakeRows{cols: cols, rows: converted}
}

func (r *fakeRows) Columns() []string { return r.cols }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
