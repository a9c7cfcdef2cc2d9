package evaluate

import (
	"context"
	"fmt"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/stmt"
	"github.com/xianghua-2/MYDB/storage"
)

func malformed(format string, args ...interface{}) error {
	return &catalog.ClientInputError{
		Err: fmt.Errorf("%w: %s", catalog.ErrMalformed, fmt.Sprintf(format, args...)),
	}
}

func validateCond(c *stmt.Cond) error {
	if c.Field == "" {
		return malformed("condition without a field")
	}
	if c.Value == nil {
		return malformed("condition on %s without a value", c.Field)
	}
	switch c.Op {
	case stmt.EqualOp, stmt.LessOp, stmt.GreaterOp, stmt.LessEqualOp, stmt.GreaterEqualOp:
	default:
		return malformed("condition on %s with %s", c.Field, c.Op)
	}
	return nil
}

func validateWhere(w *stmt.Where) error {
	if w == nil {
		return nil
	}
	err := validateCond(&w.Left)
	if err != nil {
		return err
	}
	switch w.Logic {
	case stmt.NoLogic:
		if w.Right != nil {
			return malformed("second condition without and or or")
		}
	case stmt.AndLogic, stmt.OrLogic:
		if w.Right == nil {
			return malformed("%s without a second condition", w.Logic)
		}
		return validateCond(w.Right)
	default:
		return malformed("logic %d", int(w.Logic))
	}
	return nil
}

// Validate checks the structure of s; the returned error is a ClientInputError.
func Validate(s stmt.Stmt) error {
	switch s := s.(type) {
	case nil:
		return malformed("no statement")
	case *stmt.Begin:
		if s.Isolation != storage.RepeatableRead && s.Isolation != storage.ReadCommitted {
			return malformed("isolation level %s", s.Isolation)
		}
	case *stmt.Commit, *stmt.Abort, *stmt.Show:
	case *stmt.Create:
		if s.Table == "" {
			return malformed("create without a table")
		}
		for _, fd := range s.Fields {
			if fd.Name == "" || fd.Type == "" {
				return malformed("create %s: incomplete field", s.Table)
			}
		}
	case *stmt.Insert:
		if s.Table == "" {
			return malformed("insert without a table")
		}
		if len(s.Values) == 0 {
			return malformed("insert into %s without values", s.Table)
		}
		for _, v := range s.Values {
			if v == nil {
				return malformed("insert into %s: missing value", s.Table)
			}
		}
	case *stmt.Select:
		if s.Table == "" {
			return malformed("select without a table")
		}
		if s.Fields != nil && len(s.Fields) == 0 {
			return malformed("select from %s without fields", s.Table)
		}
		for _, nam := range s.Fields {
			if nam == "" {
				return malformed("select from %s: empty field", s.Table)
			}
		}
		return validateWhere(s.Where)
	case *stmt.Update:
		if s.Table == "" {
			return malformed("update without a table")
		}
		if len(s.Set) == 0 {
			return malformed("update %s without assignments", s.Table)
		}
		for _, a := range s.Set {
			if a.Field == "" || a.Value == nil {
				return malformed("update %s: incomplete assignment", s.Table)
			}
		}
		return validateWhere(s.Where)
	case *stmt.Delete:
		if s.Table == "" {
			return malformed("delete without a table")
		}
		return validateWhere(s.Where)
	default:
		return malformed("unexpected statement %T", s)
	}
	return nil
}

// Dispatch runs s in the active transaction xid and returns the encoded response. Begin is
// not allowed: xid is already active.
func Dispatch(ctx context.Context, m *catalog.Manager, xid storage.TxID,
	s stmt.Stmt) ([]byte, error) {

	switch s := s.(type) {
	case *stmt.Begin:
		return nil, &catalog.ClientInputError{
			Err: fmt.Errorf("evaluate: transaction %d already active", xid),
		}
	case *stmt.Commit:
		return m.Commit(ctx, xid)
	case *stmt.Abort:
		return m.Abort(xid)
	case *stmt.Show:
		return m.Show(ctx, xid)
	case *stmt.Create:
		return m.Create(ctx, xid, s)
	case *stmt.Insert:
		return m.Insert(ctx, xid, s)
	case *stmt.Select:
		return m.Read(ctx, xid, s)
	case *stmt.Update:
		return m.Update(ctx, xid, s)
	case *stmt.Delete:
		return m.Delete(ctx, xid, s)
	default:
		panic(fmt.Sprintf("unexpected statement: %#v", s))
	}
}
