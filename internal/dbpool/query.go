package dbpool

import (
	"database/sql/driver"
	"fmt"
	"io"
)

// stmtCacheEntry pairs the generated name with the driver.Stmt compiled
// for it. Query and Exec send the SQL text through the connection's own
// Query/Exec first and run this cached statement only when that call fails.
type stmtCacheEntry struct {
	name string
	stmt driver.Stmt
}

// prepared returns the cached driver.Stmt for sql on c, compiling it with
// conn.Prepare on first use. isNew mirrors PrepareName's bookkeeping so
// callers (and tests) can observe the compile-once contract.
func (p *Pool) prepared(c *Conn, sql string) (driver.Stmt, bool, error) {
	name, isNew := p.PrepareName(c, sql)

	p.stmtMu.Lock()
	cache, ok := p.preparedStmts[c.entry]
	if !ok {
		cache = map[string]*stmtCacheEntry{}
		p.preparedStmts[c.entry] = cache
	}
	if e, ok := cache[sql]; ok {
		p.stmtMu.Unlock()
		return e.stmt, false, nil
	}
	p.stmtMu.Unlock()

	stmt, err := c.entry.conn.Prepare(sql)
	if err != nil {
		return nil, isNew, fmt.Errorf("dbpool: preparing statement %q: %w", name, err)
	}

	p.stmtMu.Lock()
	cache[sql] = &stmtCacheEntry{name: name, stmt: stmt}
	p.stmtMu.Unlock()
	return stmt, isNew, nil
}

// Row is one result row, column name to scanned value.
type Row = map[string]any

// Query prepares (and caches) the statement for sql on c, then executes the
// SQL text with positional args ($1, $2, ...) through the connection's
// Query, falling back to the cached statement only if that call fails, and
// returns every row with column names as keys. Both static and dynamic SQL
// steps feed through this single path.
func (p *Pool) Query(c *Conn, sql string, args []driver.Value) ([]Row, error) {
	stmt, _, err := p.prepared(c, sql)
	if err != nil {
		return nil, err
	}

	queryer, ok := c.entry.conn.(driver.Queryer)
	if !ok {
		return nil, fmt.Errorf("dbpool: connection does not support Query")
	}

	rows, err := queryer.Query(sql, args)
	if err != nil {
		// Fall back to the prepared statement directly if the raw
		// connection-level Query path isn't usable for this driver.
		rows, err = stmt.Query(args)
		if err != nil {
			return nil, fmt.Errorf("dbpool: executing query: %w", err)
		}
	}
	defer rows.Close()

	cols := rows.Columns()
	var out []Row
	dest := make([]driver.Value, len(cols))
	for {
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("dbpool: reading rows: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = dest[i]
		}
		out = append(out, row)
	}
	return out, nil
}

// Exec executes sql (an INSERT/UPDATE/DELETE) with positional args and
// returns the number of rows affected. Like Query, it prepares and caches
// the statement but runs the SQL text through the connection's Exec first,
// using the cached statement only if that call fails.
func (p *Pool) Exec(c *Conn, sql string, args []driver.Value) (int64, error) {
	stmt, _, err := p.prepared(c, sql)
	if err != nil {
		return 0, err
	}

	if execer, ok := c.entry.conn.(driver.Execer); ok {
		res, err := execer.Exec(sql, args)
		if err == nil {
			return res.RowsAffected()
		}
	}

	res, err := stmt.Exec(args)
	if err != nil {
		return 0, fmt.Errorf("dbpool: executing statement: %w", err)
	}
	return res.RowsAffected()
}
