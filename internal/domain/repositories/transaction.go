package repositories

import "context"

// TxFn runs within a transaction; the transaction travels in ctx.
type TxFn func(ctx context.Context) error

// TransactionManager handles database transactions.
type TransactionManager interface {
	// ExecTx executes fn within a transaction, committing on nil return
	// and rolling back otherwise.
	ExecTx(ctx context.Context, fn TxFn) error
}
