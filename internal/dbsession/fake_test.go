package dbsession

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// fakeDB - сценарный драйвер, считающий физические операции.
type fakeDB struct {
	bind int

	opens, closes, commits, rollbacks int
	rowsClosed                        int

	connectErr  error
	execErr     error
	commitErr   error
	rollbackErr error

	cols []string
	rows [][]any

	lastQuery string
	lastArgs  []any

	staged  []string
	durable []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{bind: sqlx.QUESTION}
}

func (f *fakeDB) Connect(context.Context) (Conn, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	f.opens++
	return &fakeConn{db: f}, nil
}

func (f *fakeDB) BindType() int { return f.bind }

type fakeConn struct {
	db     *fakeDB
	closed bool
}

var errClosedConn = errors.New("fake: connection closed")

func (c *fakeConn) Query(_ context.Context, query string, args ...any) (Rows, error) {
	if c.closed {
		return nil, errClosedConn
	}
	c.db.lastQuery, c.db.lastArgs = query, args
	return &fakeRows{db: c.db, cols: c.db.cols, rows: c.db.rows, idx: -1}, nil
}

func (c *fakeConn) Exec(_ context.Context, query string, args ...any) (int64, error) {
	if c.closed {
		return 0, errClosedConn
	}
	c.db.lastQuery, c.db.lastArgs = query, args
	if c.db.execErr != nil {
		return 0, c.db.execErr
	}
	c.db.staged = append(c.db.staged, query)
	return 1, nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.db.commits++
	if c.db.commitErr != nil {
		return c.db.commitErr
	}
	c.db.durable = append(c.db.durable, c.db.staged...)
	c.db.staged = nil
	return nil
}

func (c *fakeConn) Rollback(context.Context) error {
	c.db.rollbacks++
	if c.db.rollbackErr != nil {
		return c.db.rollbackErr
	}
	c.db.staged = nil
	return nil
}

func (c *fakeConn) Close(context.Context) error {
	if c.closed {
		return errors.New("fake: double close")
	}
	c.closed = true
	c.db.closes++
	c.db.staged = nil
	return nil
}

type fakeRows struct {
	db   *fakeDB
	cols []string
	rows [][]any
	idx  int
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) { return r.rows[r.idx], nil }

func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) Close() error {
	r.db.rowsClosed++
	return nil
}
