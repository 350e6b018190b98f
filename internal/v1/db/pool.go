package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/metrics"
)

// ErrAcquireTimeout is returned when no connection becomes available
// within the acquire timeout.
var ErrAcquireTimeout = errors.New("db: timeout waiting for a pooled connection")

// ErrPoolClosed is returned for operations on a closed pool.
var ErrPoolClosed = errors.New("db: pool is closed")

// PoolConfig configures a connection pool.
type PoolConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration

	// Dial overrides physical connection creation; tests inject fakes here.
	Dial func(ctx context.Context) (*sql.DB, error)
}

// Conn is an exclusively held database connection. Callers must Release
// it on every exit path. A Conn pins exactly one physical MySQL
// connection so transactions and LAST_INSERT_ID() stay on one session.
type Conn struct {
	db       *sql.DB
	tx       *sql.Tx
	lastUsed time.Time
	broken   bool
}

// QueryContext runs a statement on the held connection, inside the open
// transaction when one has been begun.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.db.QueryContext(ctx, query, args...)
}

// Begin opens a transaction on the held connection.
func (c *Conn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return errors.New("db: transaction already open")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction.
func (c *Conn) Commit() error {
	if c.tx == nil {
		return errors.New("db: no open transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback aborts the open transaction. Safe to call when none is open.
func (c *Conn) Rollback() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// MarkBroken flags the connection so Release discards it.
func (c *Conn) MarkBroken() { c.broken = true }

// Ping verifies the physical connection.
func (c *Conn) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Conn) close() {
	_ = c.Rollback()
	_ = c.db.Close()
}

// Pool maintains between MinConns and MaxConns live database
// connections with timed acquire, idle trimming and a background health
// check.
type Pool struct {
	mu      sync.Mutex
	cfg     PoolConfig
	idle    []*Conn // LIFO, most recently used last
	waiters []chan *Conn
	active  int
	total   int
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool creates the pool and eagerly opens MinConns connections. It
// fails when not a single connection can be established.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1
	}
	if cfg.MinConns < 0 {
		cfg.MinConns = 0
	}
	if cfg.MinConns > cfg.MaxConns {
		cfg.MinConns = cfg.MaxConns
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Second
	}
	if cfg.Dial == nil {
		cfg.Dial = mysqlDialer(cfg)
	}

	p := &Pool{cfg: cfg, stopCh: make(chan struct{})}

	for i := 0; i < cfg.MinConns; i++ {
		conn, err := p.dial()
		if err != nil {
			logging.Warn(context.Background(), "pool warm-up connection failed",
				zap.Int("index", i+1), zap.Int("min", cfg.MinConns), zap.Error(err))
			continue
		}
		p.idle = append(p.idle, conn)
		p.total++
	}
	if cfg.MinConns > 0 && p.total == 0 {
		return nil, fmt.Errorf("db: could not establish any of %d initial connections", cfg.MinConns)
	}
	p.updateMetricsLocked()

	p.wg.Add(1)
	go p.healthLoop()

	return p, nil
}

// Acquire returns an exclusive connection, preferring an idle one,
// creating one below MaxConns, and otherwise waiting up to timeout.
func (p *Pool) Acquire(timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = p.cfg.AcquireTimeout
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if conn := p.popIdleLocked(); conn != nil {
		p.active++
		p.updateMetricsLocked()
		p.mu.Unlock()
		return conn, nil
	}

	if p.total < p.cfg.MaxConns {
		p.total++
		p.mu.Unlock()
		conn, err := p.dial()
		p.mu.Lock()
		if err != nil {
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		p.active++
		p.updateMetricsLocked()
		p.mu.Unlock()
		return conn, nil
	}

	// Saturated: queue behind releases.
	ch := make(chan *Conn, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-ch:
		if conn == nil {
			return nil, ErrPoolClosed
		}
		return conn, nil
	case <-timer.C:
		p.removeWaiter(ch)
		// A release may have won the race against the timer.
		select {
		case conn := <-ch:
			if conn != nil {
				return conn, nil
			}
		default:
		}
		metrics.DBPoolAcquireTimeouts.Inc()
		return nil, ErrAcquireTimeout
	}
}

// Release returns a connection to the pool. Broken connections are
// discarded and replaced up to MinConns; healthy ones go back to the
// idle queue, trimmed when the queue already holds MinConns.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	// A transaction left open by a failed handler must not leak into the
	// next checkout.
	if conn.tx != nil {
		if err := conn.Rollback(); err != nil {
			conn.broken = true
		}
	}

	p.mu.Lock()
	p.active--

	if p.closed {
		p.total--
		p.updateMetricsLocked()
		p.mu.Unlock()
		conn.close()
		return
	}

	if conn.broken {
		p.total--
		refill := p.total < p.cfg.MinConns
		p.updateMetricsLocked()
		p.mu.Unlock()
		conn.close()
		if refill {
			go p.refillOne()
		}
		return
	}

	conn.lastUsed = time.Now()

	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.active++
		p.updateMetricsLocked()
		p.mu.Unlock()
		ch <- conn
		return
	}

	if len(p.idle) >= p.cfg.MinConns {
		p.total--
		p.updateMetricsLocked()
		p.mu.Unlock()
		conn.close()
		return
	}

	p.idle = append(p.idle, conn)
	p.updateMetricsLocked()
	p.mu.Unlock()
}

// Stats reports current pool occupancy.
func (p *Pool) Stats() (active, idle, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, len(p.idle), p.total
}

// Ping checks database reachability through a pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.Acquire(p.cfg.AcquireTimeout)
	if err != nil {
		return err
	}
	defer p.Release(conn)
	if err := conn.Ping(ctx); err != nil {
		conn.MarkBroken()
		return err
	}
	return nil
}

// Close stops the health check and closes every idle connection.
// Connections still checked out are closed on release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.total -= len(idle)
	waiters := p.waiters
	p.waiters = nil
	p.updateMetricsLocked()
	p.mu.Unlock()

	close(p.stopCh)
	for _, ch := range waiters {
		ch <- nil
	}
	for _, conn := range idle {
		conn.close()
	}
	p.wg.Wait()
}

// popIdleLocked returns the most recently used idle connection.
func (p *Pool) popIdleLocked() *Conn {
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		conn := p.idle[n]
		p.idle = p.idle[:n]
		if conn.broken {
			p.total--
			go conn.close()
			continue
		}
		return conn
	}
	return nil
}

func (p *Pool) removeWaiter(ch chan *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
}

func (p *Pool) refillOne() {
	conn, err := p.dial()
	if err != nil {
		logging.Warn(context.Background(), "pool refill failed", zap.Error(err))
		return
	}
	p.mu.Lock()
	if p.closed || p.total >= p.cfg.MinConns {
		p.mu.Unlock()
		conn.close()
		return
	}
	p.idle = append(p.idle, conn)
	p.total++
	p.updateMetricsLocked()
	p.mu.Unlock()
}

// healthLoop periodically pings idle connections, evicts those idle for
// longer than IdleTimeout, and refills toward MinConns.
func (p *Pool) healthLoop() {
	defer p.wg.Done()

	interval := 30 * time.Second
	if p.cfg.IdleTimeout > 0 && p.cfg.IdleTimeout/2 < interval {
		interval = p.cfg.IdleTimeout / 2
	}
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.healthCheck()
		}
	}
}

func (p *Pool) healthCheck() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	candidates := p.idle
	p.idle = nil
	p.mu.Unlock()

	var healthy []*Conn
	var dropped int
	for _, conn := range candidates {
		if p.cfg.IdleTimeout > 0 && now.Sub(conn.lastUsed) > p.cfg.IdleTimeout {
			conn.close()
			dropped++
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := conn.Ping(ctx)
		cancel()
		if err != nil {
			conn.close()
			dropped++
			continue
		}
		healthy = append(healthy, conn)
	}

	p.mu.Lock()
	p.idle = append(healthy, p.idle...)
	p.total -= dropped
	missing := p.cfg.MinConns - p.total
	p.updateMetricsLocked()
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		p.refillOne()
	}
}

func (p *Pool) dial() (*Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout())
	defer cancel()
	sqlDB, err := p.cfg.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	return &Conn{db: sqlDB, lastUsed: time.Now()}, nil
}

func (p *Pool) connectTimeout() time.Duration {
	if p.cfg.AcquireTimeout > 0 {
		return p.cfg.AcquireTimeout
	}
	return 5 * time.Second
}

func (p *Pool) updateMetricsLocked() {
	metrics.DBPoolActive.Set(float64(p.active))
	metrics.DBPoolIdle.Set(float64(len(p.idle)))
}

// mysqlDialer opens one physical MySQL connection per Conn. database/sql
// is used as a one-connection holder (MaxOpenConns=1) so each pooled
// handle maps 1:1 to a server session.
func mysqlDialer(cfg PoolConfig) func(ctx context.Context) (*sql.DB, error) {
	return func(ctx context.Context) (*sql.DB, error) {
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		mc.DBName = cfg.Database
		mc.Params = map[string]string{"charset": "utf8mb4"}

		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, err
		}
		sqlDB := sql.OpenDB(connector)
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)

		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return sqlDB, nil
	}
}
