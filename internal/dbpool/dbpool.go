// Package dbpool implements a connection pool with the exact
// acquire/release contract: scan for an idle connection, otherwise open a
// new one up to a maximum, otherwise report unavailable; on release, reset
// a connection that reports a broken status. This sits below
// database/sql's own pooling — driver.Conn values are held directly so the
// pool's scan-then-grow behavior is the thing under test, not
// database/sql's internal (different) pooling policy.
package dbpool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// MaxPoolSize is a hard ceiling applied to any requested max size.
const MaxPoolSize = 50

// ErrUnavailable is returned by Acquire when the pool is at its maximum
// size and every connection is in use.
var ErrUnavailable = errors.New("dbpool: no connection available")

type entry struct {
	conn  driver.Conn
	inUse bool
}

// Pool is a mutex-protected set of driver-level Postgres connections.
type Pool struct {
	mu          sync.Mutex
	conninfo    string
	maxSize     int
	connections []*entry
	opener      func(conninfo string) (driver.Conn, error)

	stmtMu        sync.Mutex
	stmtsOf       map[*entry]map[string]string
	preparedStmts map[*entry]map[string]*stmtCacheEntry

	backendID string
	stmtCount int64
}

func pqOpen(conninfo string) (driver.Conn, error) {
	drv := pq.Driver{}
	return drv.Open(conninfo)
}

// New opens initialSize connections immediately and allows growth up to
// maxSize (clamped to MaxPoolSize) on demand.
func New(conninfo string, initialSize, maxSize int) (*Pool, error) {
	return newWithOpener(conninfo, initialSize, maxSize, pqOpen)
}

func newWithOpener(conninfo string, initialSize, maxSize int, opener func(string) (driver.Conn, error)) (*Pool, error) {
	if initialSize < 1 || maxSize < initialSize {
		return nil, fmt.Errorf("dbpool: invalid sizes (initial=%d, max=%d)", initialSize, maxSize)
	}
	if maxSize > MaxPoolSize {
		maxSize = MaxPoolSize
	}

	p := &Pool{
		conninfo:      conninfo,
		maxSize:       maxSize,
		opener:        opener,
		stmtsOf:       map[*entry]map[string]string{},
		preparedStmts: map[*entry]map[string]*stmtCacheEntry{},
		backendID:     uuid.NewString(),
	}

	for i := 0; i < initialSize; i++ {
		e, err := p.open()
		if err != nil {
			if len(p.connections) == 0 {
				return nil, fmt.Errorf("dbpool: failed to create any initial connections: %w", err)
			}
			break
		}
		p.connections = append(p.connections, e)
	}

	return p, nil
}

func (p *Pool) open() (*entry, error) {
	c, err := p.opener(p.conninfo)
	if err != nil {
		return nil, fmt.Errorf("dbpool: connecting: %w", err)
	}
	return &entry{conn: c}, nil
}

// Conn is a leased connection; callers must call Release exactly once.
type Conn struct {
	pool  *Pool
	entry *entry
}

// Raw exposes the underlying driver connection for query execution.
func (c *Conn) Raw() driver.Conn { return c.entry.conn }

// Acquire returns an idle connection, opens a new one if the pool has room,
// or returns ErrUnavailable.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.connections {
		if !e.inUse {
			e.inUse = true
			return &Conn{pool: p, entry: e}, nil
		}
	}

	if len(p.connections) < p.maxSize {
		e, err := p.open()
		if err != nil {
			return nil, err
		}
		e.inUse = true
		p.connections = append(p.connections, e)
		return &Conn{pool: p, entry: e}, nil
	}

	return nil, ErrUnavailable
}

// Release marks the connection idle again, resetting it first if it
// reports a broken status.
func (p *Pool) Release(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pinger, ok := c.entry.conn.(interface{ Ping(context.Context) error }); ok {
		if pinger.Ping(context.Background()) != nil {
			if resetter, ok := c.entry.conn.(interface{ ResetSession(context.Context) error }); ok {
				_ = resetter.ResetSession(context.Background())
			}
		}
	}
	c.entry.inUse = false
}

// CloseAll closes every connection and clears the pool. The pool must not
// be used afterward.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, e := range p.connections {
		if err := e.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.connections = nil
	return firstErr
}

// PrepareName returns the process-unique prepared-statement name for sql
// on the given connection, assigning a new name on first use and reusing it
// on subsequent calls. isNew reports whether this call assigned the name;
// the statement itself is compiled by prepared.
func (p *Pool) PrepareName(c *Conn, sql string) (name string, isNew bool) {
	p.stmtMu.Lock()
	defer p.stmtMu.Unlock()

	names, ok := p.stmtsOf[c.entry]
	if !ok {
		names = map[string]string{}
		p.stmtsOf[c.entry] = names
	}

	if existing, ok := names[sql]; ok {
		return existing, false
	}

	n := atomic.AddInt64(&p.stmtCount, 1)
	name = fmt.Sprintf("wds_%s_%d", p.backendID, n)
	names[sql] = name
	return name, true
}
