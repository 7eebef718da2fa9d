package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"recomail/internal/types"
)

// mockDBTX implements DBTX for repository tests. Queued results are returned
// in call order; the SQL of every call is recorded for assertions.
type mockDBTX struct {
	calls   []string
	args    [][]any
	results []queryResult
}

type queryResult struct {
	rows *mockRows
	err  error
}

func (m *mockDBTX) queue(rows *mockRows, err error) {
	m.results = append(m.results, queryResult{rows: rows, err: err})
}

func (m *mockDBTX) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.calls = append(m.calls, sql)
	m.args = append(m.args, args)
	if len(m.results) == 0 {
		return &mockRows{}, nil
	}
	res := m.results[0]
	m.results = m.results[1:]
	if res.err != nil {
		return nil, res.err
	}
	if res.rows == nil {
		return &mockRows{}, nil
	}
	return res.rows, nil
}

func (m *mockDBTX) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	m.calls = append(m.calls, sql)
	return pgconn.CommandTag{}, nil
}

func (m *mockDBTX) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	m.calls = append(m.calls, sql)
	return &mockRows{}
}

// mockRows implements pgx.Rows over a slice of value rows. Scan copies each
// source value into the matching destination pointer, supporting the
// concrete types the repositories scan into.
type mockRows struct {
	data   [][]any
	idx    int
	closed bool
	errVal error
}

func (r *mockRows) Next() bool {
	if r.closed || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		if err := scanValue(d, row[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func scanValue(dest, src any) error {
	switch d := dest.(type) {
	case *int64:
		v, ok := src.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", src)
		}
		*d = v
	case *float64:
		v, ok := src.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", src)
		}
		*d = v
	case *string:
		v, ok := src.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", src)
		}
		*d = v
	case **string:
		switch v := src.(type) {
		case nil:
			*d = nil
		case string:
			s := v
			*d = &s
		case *string:
			*d = v
		default:
			return fmt.Errorf("expected nullable string, got %T", src)
		}
	case *time.Time:
		v, ok := src.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", src)
		}
		*d = v
	default:
		return fmt.Errorf("unsupported destination type %T", dest)
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// testLogger is a no-op types.Logger for repository tests.
type testLogger struct{}

func (testLogger) Info(string, ...any)            {}
func (testLogger) Warn(string, ...any)            {}
func (testLogger) Error(string, ...any)           {}
func (l testLogger) With(...any) types.Logger     { return l }
