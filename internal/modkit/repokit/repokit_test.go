package repokit

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type fakeTag struct{}

func (fakeTag) String() string      { return "SELECT 1" }
func (fakeTag) RowsAffected() int64 { return 1 }

// recorder logs every statement and the point where a tx opens
type recorder struct {
	log []string
}

func (r *recorder) Exec(_ context.Context, sql string, _ ...any) (CommandTag, error) {
	r.log = append(r.log, sql)
	return fakeTag{}, nil
}
func (r *recorder) Query(context.Context, string, ...any) (Rows, error) { return nil, nil }
func (r *recorder) QueryRow(context.Context, string, ...any) Row        { return nil }
func (r *recorder) Tx(ctx context.Context, fn func(Queryer) error) error {
	r.log = append(r.log, "BEGIN")
	return fn(r)
}

func TestWithBeginHooks_RunsHooksFirst(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	db := WithBeginHooks(rec, LockTimeout("2s"))

	err := db.Tx(context.Background(), func(q Queryer) error {
		_, err := q.Exec(context.Background(), "UPDATE turn_buffers SET state = 'claimed'")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"BEGIN", "SELECT set_config('lock_timeout', $1, true)", "UPDATE turn_buffers SET state = 'claimed'"}
	if !reflect.DeepEqual(rec.log, want) {
		t.Fatalf("log = %q", rec.log)
	}

	rec.log = nil
	if _, err := db.Exec(context.Background(), "SELECT 1"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.log, []string{"SELECT 1"}) {
		t.Fatalf("plain statements should skip hooks, log = %q", rec.log)
	}
}

func TestWithBeginHooks_HookErrorStopsTx(t *testing.T) {
	t.Parallel()
	boom := errors.New("lock timeout refused")
	called := false
	db := WithBeginHooks(&recorder{}, func(context.Context, Queryer) error { return boom })

	err := db.Tx(context.Background(), func(Queryer) error {
		called = true
		return nil
	})
	if !errors.Is(err, boom) || called {
		t.Fatalf("err = %v called = %v", err, called)
	}
}

func TestRequireQueryer(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	if RequireQueryer(rec) != Queryer(rec) {
		t.Fatal("should return its argument")
	}
	defer func() {
		if recover() == nil {
			t.Fatal("nil Queryer should panic")
		}
	}()
	RequireQueryer(nil)
}
