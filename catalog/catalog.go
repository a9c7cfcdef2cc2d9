package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/flags"
	"github.com/xianghua-2/MYDB/rootptr"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/stmt"
	"github.com/xianghua-2/MYDB/storage"
	"github.com/xianghua-2/MYDB/storage/encode"
)

// The anchor is the first entry of every store; it holds the id of the most recently
// created table. Creates write it, so two transactions creating tables at the same time
// conflict when the second one commits.
const anchorID storage.EntryID = 1

// Manager executes statements against the tables reachable from the anchor. The root
// pointer file is a durable copy of the committed anchor.
type Manager struct {
	engine    storage.Engine
	root      *rootptr.Store
	flgs      flags.Flags
	rootMutex sync.Mutex
	mutex     sync.Mutex
	tables    map[storage.EntryID]*Table
	staged    map[storage.TxID]storage.EntryID
}

func newManager(e storage.Engine, root *rootptr.Store, flgs flags.Flags) *Manager {
	if flgs == nil {
		flgs = flags.Default()
	}
	return &Manager{
		engine: e,
		root:   root,
		flgs:   flgs,
		tables: map[storage.EntryID]*Table{},
		staged: map[storage.TxID]storage.EntryID{},
	}
}

func encodeAnchor(head storage.EntryID) []byte {
	return encode.EncodeUint64(make([]byte, 0, 8), uint64(head))
}

// Create initializes the catalog of a new, empty store.
func Create(ctx context.Context, e storage.Engine, root *rootptr.Store,
	flgs flags.Flags) (*Manager, error) {

	xid, err := e.Begin(storage.RepeatableRead)
	if err != nil {
		return nil, err
	}
	id, err := e.Insert(ctx, xid, encodeAnchor(storage.NullEntry))
	if err != nil {
		e.Abort(xid)
		return nil, err
	}
	if id != anchorID {
		e.Abort(xid)
		return nil, fmt.Errorf("catalog: store is not empty: anchor got id %d", id)
	}
	err = e.Commit(ctx, xid)
	if err != nil {
		return nil, err
	}

	err = root.Update(storage.NullEntry)
	if err != nil {
		return nil, fatalError(err)
	}
	return newManager(e, root, flgs), nil
}

// Open starts a catalog on an existing store and brings the root pointer file up to date
// with the committed anchor.
func Open(ctx context.Context, e storage.Engine, root *rootptr.Store,
	flgs flags.Flags) (*Manager, error) {

	m := newManager(e, root, flgs)
	err := m.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Reconcile rewrites the root pointer file from the committed anchor. It is needed after a
// commit whose root pointer update failed.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.rootMutex.Lock()
	defer m.rootMutex.Unlock()

	xid, err := m.engine.Begin(storage.RepeatableRead)
	if err != nil {
		return err
	}
	head, err := m.readAnchor(ctx, xid)
	m.engine.Abort(xid)
	if err != nil {
		return err
	}

	if cur := m.root.Load(); cur != head {
		log.WithFields(log.Fields{
			"file":   cur,
			"anchor": head,
			"path":   m.root.Path(),
		}).Warn("catalog: reconciling root pointer")
		err = m.root.Update(head)
		if err != nil {
			return fatalError(err)
		}
	}
	return nil
}

// Head returns the id of the most recently created table that has been durably committed.
func (m *Manager) Head() storage.EntryID {
	return m.root.Load()
}

func (m *Manager) readAnchor(ctx context.Context, xid storage.TxID) (storage.EntryID, error) {
	buf, err := m.engine.Read(ctx, xid, anchorID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDeleted) {
		return storage.NullEntry, fatalError(fmt.Errorf("%w: catalog anchor missing",
			ErrCorrupt))
	} else if err != nil {
		return storage.NullEntry, storageError(err)
	}

	head, ok := encode.DecodeUint64(buf)
	if !ok || len(buf) != 8 {
		return storage.NullEntry, fatalError(fmt.Errorf("%w: catalog anchor: %v", ErrCorrupt,
			buf))
	}
	return storage.EntryID(head), nil
}

func (m *Manager) readRecord(ctx context.Context, xid storage.TxID, id storage.EntryID,
	v interface{}) error {

	buf, err := m.engine.Read(ctx, xid, id)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrDeleted) {
		return fatalError(fmt.Errorf("%w: catalog entry %d missing", ErrCorrupt, id))
	} else if err != nil {
		return storageError(err)
	}
	err = decodeRecord(buf, v)
	if err != nil {
		return fatalError(fmt.Errorf("%w: catalog entry %d: %s", ErrCorrupt, id, err))
	}
	return nil
}

func (m *Manager) loadTable(ctx context.Context, xid storage.TxID,
	id storage.EntryID) (*Table, error) {

	m.mutex.Lock()
	tbl, ok := m.tables[id]
	m.mutex.Unlock()
	if ok {
		return tbl, nil
	}

	var tr tableRecord
	err := m.readRecord(ctx, xid, id, &tr)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, len(tr.Fields))
	for _, fid := range tr.Fields {
		var fr fieldRecord
		err = m.readRecord(ctx, xid, fid, &fr)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: fr.Name, Type: fr.Type, Index: fr.Index})
	}

	tbl = newTable(id, &tr, fields)
	m.mutex.Lock()
	m.tables[id] = tbl
	m.mutex.Unlock()
	return tbl, nil
}

// walk calls fn for each table visible to xid, most recently created first, until fn
// returns false.
func (m *Manager) walk(ctx context.Context, xid storage.TxID, fn func(tbl *Table) bool) error {
	id, err := m.readAnchor(ctx, xid)
	if err != nil {
		return err
	}

	seen := map[storage.EntryID]struct{}{}
	for id != storage.NullEntry {
		if _, ok := seen[id]; ok {
			return fatalError(fmt.Errorf("%w: catalog chain has a cycle at %d", ErrCorrupt,
				id))
		}
		seen[id] = struct{}{}

		tbl, err := m.loadTable(ctx, xid, id)
		if err != nil {
			return err
		}
		if !fn(tbl) {
			break
		}
		id = tbl.Next
	}
	return nil
}

func (m *Manager) lookup(ctx context.Context, xid storage.TxID, nam string) (*Table, error) {
	var tbl *Table
	err := m.walk(ctx, xid,
		func(t *Table) bool {
			if t.Name == nam {
				tbl = t
				return false
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	if tbl == nil {
		return nil, clientError(ErrNoSuchTable, "%s", nam)
	}
	return tbl, nil
}

func (m *Manager) Tables(ctx context.Context, xid storage.TxID) ([]*Table, error) {
	var tbls []*Table
	err := m.walk(ctx, xid,
		func(tbl *Table) bool {
			tbls = append(tbls, tbl)
			return true
		})
	return tbls, err
}

func (m *Manager) NextStmt(xid storage.TxID) {
	m.engine.NextStmt(xid)
}

func (m *Manager) State(xid storage.TxID) storage.TxState {
	return m.engine.State(xid)
}

func respond(r *Response) ([]byte, error) {
	return EncodeResponse(r)
}

func (m *Manager) Begin(iso storage.Isolation) (storage.TxID, []byte, error) {
	xid, err := m.engine.Begin(iso)
	if err != nil {
		return 0, nil, stmtError("begin", "", storageError(err))
	}
	buf, err := respond(&Response{Tag: BeginTag})
	if err != nil {
		m.engine.Abort(xid)
		return 0, nil, err
	}
	return xid, buf, nil
}

// Commit commits xid and then, if it created tables, updates the root pointer file. If the
// file can not be updated, the transaction is committed but the error is a FatalIOError;
// Reconcile brings the file up to date.
func (m *Manager) Commit(ctx context.Context, xid storage.TxID) ([]byte, error) {
	m.mutex.Lock()
	head, staged := m.staged[xid]
	delete(m.staged, xid)
	m.mutex.Unlock()

	if staged {
		m.rootMutex.Lock()
		defer m.rootMutex.Unlock()
	}

	err := m.engine.Commit(ctx, xid)
	if err != nil {
		return nil, stmtError("commit", "", storageError(err))
	}

	if staged {
		err = m.root.Update(head)
		if err != nil {
			log.WithFields(log.Fields{
				"xid":   xid,
				"head":  head,
				"error": err.Error(),
			}).Error("catalog: root pointer not updated after commit")
			return nil, stmtError("commit", "", fatalError(err))
		}
	}
	return respond(&Response{Tag: CommitTag})
}

func (m *Manager) Abort(xid storage.TxID) ([]byte, error) {
	m.mutex.Lock()
	delete(m.staged, xid)
	m.mutex.Unlock()

	err := m.engine.Abort(xid)
	if err != nil {
		return nil, stmtError("abort", "", storageError(err))
	}
	return respond(&Response{Tag: AbortTag})
}

func (m *Manager) Show(ctx context.Context, xid storage.TxID) ([]byte, error) {
	r := Response{Tag: ShowTag}
	err := m.walk(ctx, xid,
		func(tbl *Table) bool {
			r.Tables = append(r.Tables, tbl.Schema())
			return true
		})
	if err != nil {
		return nil, stmtError("show", "", err)
	}
	r.Count = int64(len(r.Tables))
	return respond(&r)
}

func (m *Manager) Create(ctx context.Context, xid storage.TxID, s *stmt.Create) ([]byte,
	error) {

	tbl, err := m.create(ctx, xid, s)
	if err != nil {
		return nil, stmtError("create", s.Table, err)
	}

	log.WithFields(log.Fields{
		"xid":   xid,
		"table": tbl.Name,
		"id":    tbl.ID,
	}).Debug("catalog: table created")
	return respond(&Response{Tag: CreateTag, Count: 1, Tables: []Schema{tbl.Schema()}})
}

func (m *Manager) create(ctx context.Context, xid storage.TxID, s *stmt.Create) (*Table,
	error) {

	if len(s.Fields) == 0 {
		return nil, clientError(ErrEmptyFieldList, "table %s", s.Table)
	}

	fields := make([]Field, 0, len(s.Fields))
	declared := map[string]int{}
	for i, fd := range s.Fields {
		if _, ok := declared[fd.Name]; ok {
			return nil, clientError(ErrMalformed, "duplicate field %s", fd.Name)
		}
		declared[fd.Name] = i
		t, ok := sql.ParseType(fd.Type)
		if !ok {
			return nil, clientError(ErrInvalidFieldType, "field %s: %s", fd.Name, fd.Type)
		}
		fields = append(fields, Field{Name: fd.Name, Type: t})
	}

	indexed := make([]bool, len(fields))
	for _, idx := range s.Indexes {
		i, ok := declared[idx]
		if !ok {
			return nil, clientError(ErrFieldMismatch, "index of unknown field %s", idx)
		}
		indexed[i] = true
	}

	head, err := m.readAnchor(ctx, xid)
	if err != nil {
		return nil, err
	}
	var dup bool
	err = m.walk(ctx, xid,
		func(tbl *Table) bool {
			dup = tbl.Name == s.Table
			return !dup
		})
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, &SchemaConflictError{
			Err: fmt.Errorf("%w: %s", ErrDuplicateTableName, s.Table),
		}
	}

	tr := tableRecord{
		Name: s.Table,
		Next: head,
	}
	for i := range fields {
		if indexed[i] {
			fields[i].Index, err = m.engine.NewIndex(ctx, xid)
			if err != nil {
				return nil, storageError(err)
			}
		}
		buf, err := encodeRecord(&fieldRecord{
			Name:  fields[i].Name,
			Type:  fields[i].Type,
			Index: fields[i].Index,
		})
		if err != nil {
			return nil, err
		}
		fid, err := m.engine.Insert(ctx, xid, buf)
		if err != nil {
			return nil, storageError(err)
		}
		tr.Fields = append(tr.Fields, fid)
	}

	tr.Rows, err = m.engine.NewIndex(ctx, xid)
	if err != nil {
		return nil, storageError(err)
	}
	buf, err := encodeRecord(&tr)
	if err != nil {
		return nil, err
	}
	id, err := m.engine.Insert(ctx, xid, buf)
	if err != nil {
		return nil, storageError(err)
	}
	err = m.engine.Update(ctx, xid, anchorID, encodeAnchor(id))
	if err != nil {
		return nil, storageError(err)
	}

	tbl := newTable(id, &tr, fields)
	m.mutex.Lock()
	m.tables[id] = tbl
	m.staged[xid] = id
	m.mutex.Unlock()
	return tbl, nil
}

func convertValue(f Field, v sql.Value) (sql.Value, error) {
	cv, ok := sql.Convert(f.Type, v)
	if !ok {
		return nil, clientError(ErrFieldMismatch, "field %s: want %s got %s", f.Name, f.Type,
			sql.Format(v))
	}
	return cv, nil
}

func rowKey(id storage.EntryID) []byte {
	return encode.EncodeUint64(make([]byte, 0, 8), uint64(id))
}

func (m *Manager) Insert(ctx context.Context, xid storage.TxID, s *stmt.Insert) ([]byte,
	error) {

	n, err := m.insert(ctx, xid, s)
	if err != nil {
		return nil, stmtError("insert", s.Table, err)
	}
	return respond(&Response{Tag: InsertTag, Count: n})
}

func (m *Manager) insert(ctx context.Context, xid storage.TxID, s *stmt.Insert) (int64,
	error) {

	tbl, err := m.lookup(ctx, xid, s.Table)
	if err != nil {
		return 0, err
	}
	if len(s.Values) != len(tbl.Fields) {
		return 0, clientError(ErrFieldMismatch, "%d values for %d fields", len(s.Values),
			len(tbl.Fields))
	}

	row := make([]sql.Value, 0, len(s.Values))
	for i, v := range s.Values {
		cv, err := convertValue(tbl.Fields[i], v)
		if err != nil {
			return 0, err
		}
		row = append(row, cv)
	}
	buf, err := tbl.EncodeRow(row)
	if err != nil {
		return 0, &ClientInputError{Err: err}
	}

	id, err := m.engine.Insert(ctx, xid, buf)
	if err != nil {
		return 0, storageError(err)
	}
	err = m.engine.IndexInsert(ctx, xid, tbl.Rows, rowKey(id), id)
	if err != nil {
		return 0, storageError(err)
	}
	for i, f := range tbl.Fields {
		if f.Indexed() {
			err = m.engine.IndexInsert(ctx, xid, f.Index, encode.MakeKey(row[i]), id)
			if err != nil {
				return 0, storageError(err)
			}
		}
	}
	return 1, nil
}

func (m *Manager) Read(ctx context.Context, xid storage.TxID, s *stmt.Select) ([]byte,
	error) {

	r, err := m.read(ctx, xid, s)
	if err != nil {
		return nil, stmtError("select", s.Table, err)
	}
	return respond(r)
}

func (m *Manager) read(ctx context.Context, xid storage.TxID, s *stmt.Select) (*Response,
	error) {

	tbl, err := m.lookup(ctx, xid, s.Table)
	if err != nil {
		return nil, err
	}

	var cols []int
	if s.Fields == nil {
		for i := range tbl.Fields {
			cols = append(cols, i)
		}
	} else {
		for _, nam := range s.Fields {
			i, ok := tbl.Field(nam)
			if !ok {
				return nil, clientError(ErrFieldMismatch, "unknown field %s", nam)
			}
			cols = append(cols, i)
		}
	}
	pred, err := bindWhere(tbl, s.Where)
	if err != nil {
		return nil, err
	}

	r := Response{Tag: SelectTag}
	for _, col := range cols {
		r.Columns = append(r.Columns, Column{Name: tbl.Fields[col].Name,
			Type: tbl.Fields[col].Type})
	}
	err = m.scan(ctx, xid, tbl, pred,
		func(id storage.EntryID, row []sql.Value) error {
			out := make([]sql.Value, 0, len(cols))
			for _, col := range cols {
				out = append(out, row[col])
			}
			r.Rows = append(r.Rows, out)
			return nil
		})
	if err != nil {
		return nil, err
	}
	r.Count = int64(len(r.Rows))
	return &r, nil
}

type assignment struct {
	col int
	val sql.Value
}

func (m *Manager) Update(ctx context.Context, xid storage.TxID, s *stmt.Update) ([]byte,
	error) {

	n, err := m.update(ctx, xid, s)
	if err != nil {
		return nil, stmtError("update", s.Table, err)
	}
	return respond(&Response{Tag: UpdateTag, Count: n})
}

func (m *Manager) update(ctx context.Context, xid storage.TxID, s *stmt.Update) (int64,
	error) {

	tbl, err := m.lookup(ctx, xid, s.Table)
	if err != nil {
		return 0, err
	}

	var set []assignment
	for _, a := range s.Set {
		col, ok := tbl.Field(a.Field)
		if !ok {
			return 0, clientError(ErrFieldMismatch, "unknown field %s", a.Field)
		}
		val, err := convertValue(tbl.Fields[col], a.Value)
		if err != nil {
			return 0, err
		}
		set = append(set, assignment{col: col, val: val})
	}
	pred, err := bindWhere(tbl, s.Where)
	if err != nil {
		return 0, err
	}

	var n int64
	err = m.scan(ctx, xid, tbl, pred,
		func(id storage.EntryID, row []sql.Value) error {
			updated := append(make([]sql.Value, 0, len(row)), row...)
			for _, a := range set {
				updated[a.col] = a.val
			}
			buf, err := tbl.EncodeRow(updated)
			if err != nil {
				return err
			}
			err = m.engine.Update(ctx, xid, id, buf)
			if err != nil {
				return storageError(err)
			}

			for col, f := range tbl.Fields {
				if !f.Indexed() {
					continue
				}
				if cmp, err := row[col].Compare(updated[col]); err == nil && cmp == 0 {
					continue
				}
				err = m.engine.IndexInsert(ctx, xid, f.Index, encode.MakeKey(updated[col]), id)
				if err != nil {
					return storageError(err)
				}
			}
			n += 1
			return nil
		})
	return n, err
}

func (m *Manager) Delete(ctx context.Context, xid storage.TxID, s *stmt.Delete) ([]byte,
	error) {

	n, err := m.delete(ctx, xid, s)
	if err != nil {
		return nil, stmtError("delete", s.Table, err)
	}
	return respond(&Response{Tag: DeleteTag, Count: n})
}

func (m *Manager) delete(ctx context.Context, xid storage.TxID, s *stmt.Delete) (int64,
	error) {

	tbl, err := m.lookup(ctx, xid, s.Table)
	if err != nil {
		return 0, err
	}
	pred, err := bindWhere(tbl, s.Where)
	if err != nil {
		return 0, err
	}

	var n int64
	err = m.scan(ctx, xid, tbl, pred,
		func(id storage.EntryID, row []sql.Value) error {
			err := m.engine.Delete(ctx, xid, id)
			if err != nil {
				return storageError(err)
			}
			n += 1
			return nil
		})
	return n, err
}
