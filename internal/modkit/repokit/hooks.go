package repokit

import "context"

// BeginHook runs first inside every transaction with the tx bound Queryer
type BeginHook func(ctx context.Context, q Queryer) error

// WithBeginHooks wraps inner so each Tx runs hooks before fn
// statements outside a transaction pass straight through
func WithBeginHooks(inner TxRunner, hooks ...BeginHook) TxRunner {
	return hookedTx{TxRunner: inner, hooks: hooks}
}

type hookedTx struct {
	TxRunner
	hooks []BeginHook
}

func (h hookedTx) Tx(ctx context.Context, fn func(q Queryer) error) error {
	return h.TxRunner.Tx(ctx, func(q Queryer) error {
		for _, hk := range h.hooks {
			if err := hk(ctx, q); err != nil {
				return err
			}
		}
		return fn(q)
	})
}

// LockTimeout bounds row lock waits inside the tx
// a worker that cannot take a buffer lock in time gives up and lets redelivery retry
func LockTimeout(d string) BeginHook {
	return func(ctx context.Context, q Queryer) error {
		_, err := q.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", d)
		return err
	}
}
