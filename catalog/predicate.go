package catalog

import (
	"context"
	"errors"

	"github.com/xianghua-2/MYDB/flags"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/stmt"
	"github.com/xianghua-2/MYDB/storage"
	"github.com/xianghua-2/MYDB/storage/encode"
)

type cond struct {
	col int
	op  stmt.Op
	val sql.Value
}

func (c cond) holds(row []sql.Value) bool {
	cmp, err := row[c.col].Compare(c.val)
	if err != nil {
		return false
	}
	return c.op.Holds(cmp)
}

type predicate struct {
	conds []cond
	logic stmt.Logic
}

func bindWhere(tbl *Table, w *stmt.Where) (*predicate, error) {
	if w == nil {
		return nil, nil
	}

	pred := predicate{logic: w.Logic}
	for _, c := range w.Conds() {
		col, ok := tbl.Field(c.Field)
		if !ok {
			return nil, clientError(ErrFieldMismatch, "unknown field %s", c.Field)
		}
		val, err := convertValue(tbl.Fields[col], c.Value)
		if err != nil {
			return nil, err
		}
		pred.conds = append(pred.conds, cond{col: col, op: c.Op, val: val})
	}
	return &pred, nil
}

func (pred *predicate) holds(row []sql.Value) bool {
	if pred == nil {
		return true
	}

	switch pred.logic {
	case stmt.AndLogic:
		return pred.conds[0].holds(row) && pred.conds[1].holds(row)
	case stmt.OrLogic:
		return pred.conds[0].holds(row) || pred.conds[1].holds(row)
	}
	return pred.conds[0].holds(row)
}

// indexRange returns the range of keys of an index on the field of c that contains every
// row for which c holds.
func (c cond) indexRange() ([]byte, []byte) {
	key := encode.MakeKey(c.val)
	switch c.op {
	case stmt.EqualOp:
		return key, key
	case stmt.LessOp, stmt.LessEqualOp:
		return nil, key
	}
	return key, nil
}

func (m *Manager) indexScan(ctx context.Context, xid storage.TxID, tbl *Table,
	c cond) ([]storage.EntryID, error) {

	min, max := c.indexRange()
	return m.engine.IndexScan(ctx, xid, tbl.Fields[c.col].Index, min, max)
}

// candidates returns the ids of the rows which might satisfy pred. A predicate on an indexed
// field is narrowed to a range of the field index; for or, both conditions must be on
// indexed fields. The ids may contain duplicates and rows which do not satisfy pred.
func (m *Manager) candidates(ctx context.Context, xid storage.TxID, tbl *Table,
	pred *predicate) ([]storage.EntryID, error) {

	if pred != nil && m.flgs.GetFlag(flags.IndexLookup) {
		indexed := func(c cond) bool {
			return tbl.Fields[c.col].Indexed()
		}

		switch pred.logic {
		case stmt.OrLogic:
			if indexed(pred.conds[0]) && indexed(pred.conds[1]) {
				ids, err := m.indexScan(ctx, xid, tbl, pred.conds[0])
				if err != nil {
					return nil, err
				}
				more, err := m.indexScan(ctx, xid, tbl, pred.conds[1])
				if err != nil {
					return nil, err
				}
				return append(ids, more...), nil
			}
		default:
			for _, c := range pred.conds {
				if indexed(c) {
					return m.indexScan(ctx, xid, tbl, c)
				}
			}
		}
	}

	return m.engine.IndexScan(ctx, xid, tbl.Rows, nil, nil)
}

// scan calls fn for each visible row of tbl which satisfies pred.
func (m *Manager) scan(ctx context.Context, xid storage.TxID, tbl *Table, pred *predicate,
	fn func(id storage.EntryID, row []sql.Value) error) error {

	ids, err := m.candidates(ctx, xid, tbl, pred)
	if err != nil {
		return storageError(err)
	}

	seen := make(map[storage.EntryID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		buf, err := m.engine.Read(ctx, xid, id)
		if errors.Is(err, storage.ErrDeleted) || errors.Is(err, storage.ErrNotFound) {
			continue
		} else if err != nil {
			return storageError(err)
		}
		row, err := tbl.DecodeRow(buf)
		if err != nil {
			return fatalError(err)
		}
		if !pred.holds(row) {
			continue
		}

		err = fn(id, row)
		if err != nil {
			return err
		}
	}
	return nil
}
