package store

import (
	"context"
	"errors"
	"testing"

	"turnstile/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type scanRow func(dest ...any) error

func (f scanRow) Scan(dest ...any) error { return f(dest...) }

// bufferRows yields (key, state) pairs the way a turn_buffers scan would
type bufferRows struct {
	data   [][2]string
	idx    int
	err    error
	closed bool
}

func (r *bufferRows) Close()                        { r.closed = true }
func (r *bufferRows) Err() error                    { return r.err }
func (r *bufferRows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }
func (r *bufferRows) FieldDescriptions() []pgconn.FieldDescription {
	return []pgconn.FieldDescription{{Name: "buffer_key"}, {Name: "state"}}
}
func (r *bufferRows) Next() bool {
	if r.err != nil || r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}
func (r *bufferRows) Scan(dest ...any) error {
	if len(dest) != 2 {
		return errors.New("want 2 columns")
	}
	*dest[0].(*string), *dest[1].(*string) = r.data[r.idx-1][0], r.data[r.idx-1][1]
	return nil
}
func (r *bufferRows) Values() ([]any, error) { return nil, nil }
func (r *bufferRows) RawValues() [][]byte    { return nil }
func (r *bufferRows) Conn() *pgx.Conn        { return nil }

type fakeQuerier struct {
	err  error
	rows *bufferRows
	row  scanRow
}

func (f *fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), f.err
}
func (f *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}
func (f *fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return f.row }

type recTracer struct{ events []pg.QueryEvent }

func (r *recTracer) OnQuery(_ context.Context, ev pg.QueryEvent) { r.events = append(r.events, ev) }

func TestTraced_ReportsEveryStatement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	br := &bufferRows{data: [][2]string{{"c1|v1|0", "armed"}, {"c1|v1|1", "idle"}}}
	tr := &recTracer{}
	q := traced{
		q: &fakeQuerier{rows: br, row: func(dest ...any) error {
			*dest[0].(*int) = 3
			return nil
		}},
		tracer: tr,
		slowUS: 0,
	}

	ct, err := q.Exec(ctx, "UPDATE turn_buffers SET state = $1", "claimed")
	if err != nil || ct.String() != "UPDATE 1" || ct.RowsAffected() != 1 {
		t.Fatalf("Exec = %v %v", ct, err)
	}

	rs, err := q.Query(ctx, "SELECT buffer_key, state FROM turn_buffers")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if cols := rs.Columns(); len(cols) != 2 || cols[0] != "buffer_key" {
		t.Fatalf("Columns = %v", cols)
	}
	var states []string
	for rs.Next() {
		var key, state string
		if err := rs.Scan(&key, &state); err != nil {
			t.Fatal(err)
		}
		states = append(states, state)
	}
	rs.Close()
	if rs.Err() != nil || !br.closed || len(states) != 2 || states[0] != "armed" {
		t.Fatalf("rows: states=%v closed=%v err=%v", states, br.closed, rs.Err())
	}

	var n int
	if err := q.QueryRow(ctx, "SELECT count(*) FROM turn_outbox").Scan(&n); err != nil || n != 3 {
		t.Fatalf("QueryRow = %d %v", n, err)
	}

	if len(tr.events) != 3 {
		t.Fatalf("events = %d want 3", len(tr.events))
	}
	for _, ev := range tr.events {
		if !ev.Slow || ev.Err != nil {
			t.Fatalf("with a zero threshold every statement is slow: %+v", ev)
		}
	}
}

func TestTraced_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("boom")

	tr := &recTracer{}
	q := traced{q: &fakeQuerier{err: boom, row: func(...any) error { return boom }}, tracer: tr, slowUS: -1}

	if _, err := q.Exec(ctx, "x"); !errors.Is(err, boom) {
		t.Fatalf("Exec err = %v", err)
	}
	if _, err := q.Query(ctx, "x"); !errors.Is(err, boom) {
		t.Fatalf("Query err = %v", err)
	}
	if err := q.QueryRow(ctx, "x").Scan(new(int)); !errors.Is(err, boom) {
		t.Fatalf("Scan err = %v", err)
	}
	for _, ev := range tr.events {
		if !errors.Is(ev.Err, boom) || ev.Slow {
			t.Fatalf("event = %+v", ev)
		}
	}
}

func TestTraced_NoRowsIsNotAFailure(t *testing.T) {
	t.Parallel()
	tr := &recTracer{}
	q := traced{q: &fakeQuerier{row: func(...any) error { return pgx.ErrNoRows }}, tracer: tr, slowUS: -1}

	if err := q.QueryRow(context.Background(), "SELECT 1 WHERE false").Scan(new(int)); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("caller must still see ErrNoRows, got %v", err)
	}
	if len(tr.events) != 1 || tr.events[0].Err != nil {
		t.Fatalf("events = %+v", tr.events)
	}
}

func TestTraced_NilTracer(t *testing.T) {
	t.Parallel()
	q := traced{q: &fakeQuerier{}}
	if _, err := q.Exec(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
}
