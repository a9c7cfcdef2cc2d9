package catalog

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/storage"
)

// tableRecord and fieldRecord are immutable once written; a table links to the table
// created before it.
type tableRecord struct {
	Name   string            `msgpack:"name"`
	Next   storage.EntryID   `msgpack:"next"`
	Rows   storage.EntryID   `msgpack:"rows"`
	Fields []storage.EntryID `msgpack:"fields"`
}

type fieldRecord struct {
	Name  string          `msgpack:"name"`
	Type  sql.Type        `msgpack:"type"`
	Index storage.EntryID `msgpack:"index"`
}

type Field struct {
	Name string
	Type sql.Type
	// Index is the root of the index on the field or storage.NullEntry.
	Index storage.EntryID
}

func (f Field) Indexed() bool {
	return f.Index != storage.NullEntry
}

type Table struct {
	ID     storage.EntryID
	Name   string
	Next   storage.EntryID
	Rows   storage.EntryID
	Fields []Field
	types  []sql.Type
}

func newTable(id storage.EntryID, tr *tableRecord, fields []Field) *Table {
	tbl := &Table{
		ID:     id,
		Name:   tr.Name,
		Next:   tr.Next,
		Rows:   tr.Rows,
		Fields: fields,
	}
	for _, f := range fields {
		tbl.types = append(tbl.types, f.Type)
	}
	return tbl
}

func (tbl *Table) Field(nam string) (int, bool) {
	for i, f := range tbl.Fields {
		if f.Name == nam {
			return i, true
		}
	}
	return -1, false
}

func (tbl *Table) Schema() Schema {
	s := Schema{Name: tbl.Name}
	for _, f := range tbl.Fields {
		s.Fields = append(s.Fields, Column{Name: f.Name, Type: f.Type, Indexed: f.Indexed()})
	}
	return s
}

func (tbl *Table) EncodeRow(row []sql.Value) ([]byte, error) {
	return EncodeRow(tbl.types, row)
}

func (tbl *Table) DecodeRow(buf []byte) ([]sql.Value, error) {
	return DecodeRow(tbl.types, buf)
}

func encodeRecord(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decodeRecord(buf []byte, v interface{}) error {
	return msgpack.Unmarshal(buf, v)
}
