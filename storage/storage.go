package storage

import (
	"context"
	"errors"
	"fmt"
)

// TxID identifies a transaction; it is assigned by the Ledger.
type TxID uint64

// EntryID addresses a row, a metadata record, or an index root in a Store.
type EntryID uint64

const (
	NullEntry EntryID = 0
)

type Isolation int

const (
	RepeatableRead Isolation = iota
	ReadCommitted
)

func (iso Isolation) String() string {
	switch iso {
	case RepeatableRead:
		return "repeatable read"
	case ReadCommitted:
		return "read committed"
	}
	return fmt.Sprintf("isolation(%d)", int(iso))
}

type TxState int

const (
	Active TxState = iota
	Committed
	Aborted
)

func (ts TxState) String() string {
	switch ts {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("txstate(%d)", int(ts))
}

var (
	ErrNotFound        = errors.New("storage: entry not found")
	ErrDeleted         = errors.New("storage: entry deleted")
	ErrConflict        = errors.New("storage: write conflict")
	ErrNoTransaction   = errors.New("storage: no such transaction")
	ErrTransactionDone = errors.New("storage: transaction already completed")
)

// Ledger assigns transaction ids and tracks whether each transaction is active, committed,
// or aborted.
type Ledger interface {
	Begin(iso Isolation) (TxID, error)
	// Commit makes the writes of xid visible; on ErrConflict the transaction is aborted.
	Commit(ctx context.Context, xid TxID) error
	Abort(xid TxID) error
	State(xid TxID) TxState
}

// Store holds versioned entries. Reads see the snapshot of the transaction plus its own
// writes. Writes are not visible to other transactions until commit.
type Store interface {
	Insert(ctx context.Context, xid TxID, payload []byte) (EntryID, error)
	// Read returns ErrNotFound if id was never visible to xid and ErrDeleted if it was
	// deleted.
	Read(ctx context.Context, xid TxID, id EntryID) ([]byte, error)
	Update(ctx context.Context, xid TxID, id EntryID, payload []byte) error
	Delete(ctx context.Context, xid TxID, id EntryID) error

	// NewIndex allocates the root of an ordered index of (key, id) entries.
	NewIndex(ctx context.Context, xid TxID) (EntryID, error)
	IndexInsert(ctx context.Context, xid TxID, root EntryID, key []byte, id EntryID) error
	// IndexScan returns the ids with min <= key <= max in key order; a nil bound is
	// unbounded.
	IndexScan(ctx context.Context, xid TxID, root EntryID, min, max []byte) ([]EntryID,
		error)

	// NextStmt is called before each statement of a transaction.
	NextStmt(xid TxID)
}

type Engine interface {
	Ledger
	Store
	Close() error
}
