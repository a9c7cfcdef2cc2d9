package catalog

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xianghua-2/MYDB/sql"
)

const (
	BeginTag  = "BEGIN"
	CommitTag = "COMMIT"
	AbortTag  = "ABORT"
	CreateTag = "CREATE"
	ShowTag   = "SHOW"
	InsertTag = "INSERT"
	SelectTag = "SELECT"
	UpdateTag = "UPDATE"
	DeleteTag = "DELETE"
)

type Column struct {
	Name    string   `msgpack:"name"`
	Type    sql.Type `msgpack:"type"`
	Indexed bool     `msgpack:"indexed,omitempty"`
}

type Schema struct {
	Name   string   `msgpack:"name"`
	Fields []Column `msgpack:"fields"`
}

// Response is the result of one statement. Count is the number of rows inserted, returned,
// updated, or deleted, or the number of tables shown.
type Response struct {
	Tag     string
	Count   int64
	Tables  []Schema
	Columns []Column
	Rows    [][]sql.Value
}

type envelope struct {
	Tag     string   `msgpack:"tag"`
	Count   int64    `msgpack:"count"`
	Tables  []Schema `msgpack:"tables,omitempty"`
	Columns []Column `msgpack:"columns,omitempty"`
	Rows    [][]byte `msgpack:"rows,omitempty"`
}

func (r *Response) String() string {
	switch r.Tag {
	case SelectTag:
		return fmt.Sprintf("SELECT %d", r.Count)
	case ShowTag:
		return fmt.Sprintf("SHOW %d", r.Count)
	case InsertTag, UpdateTag, DeleteTag:
		return fmt.Sprintf("%s %d", r.Tag, r.Count)
	}
	return r.Tag
}

// ShowColumns are the columns of ShowRows.
var ShowColumns = []Column{
	{Name: "table", Type: sql.StringType},
	{Name: "field", Type: sql.StringType},
	{Name: "type", Type: sql.StringType},
	{Name: "indexed", Type: sql.StringType},
}

// ShowRows returns the schemas of a SHOW response as rows, one per field.
func (r *Response) ShowRows() [][]sql.Value {
	var rows [][]sql.Value
	for _, tbl := range r.Tables {
		for _, col := range tbl.Fields {
			indexed := "no"
			if col.Indexed {
				indexed = "yes"
			}
			rows = append(rows, []sql.Value{
				sql.StringValue(tbl.Name),
				sql.StringValue(col.Name),
				sql.StringValue(col.Type.String()),
				sql.StringValue(indexed),
			})
		}
	}
	return rows
}

func columnTypes(cols []Column) []sql.Type {
	types := make([]sql.Type, 0, len(cols))
	for _, col := range cols {
		types = append(types, col.Type)
	}
	return types
}

// EncodeResponse encodes r so that it can be decoded without knowing the schema of the
// table it came from.
func EncodeResponse(r *Response) ([]byte, error) {
	env := envelope{
		Tag:     r.Tag,
		Count:   r.Count,
		Tables:  r.Tables,
		Columns: r.Columns,
	}

	types := columnTypes(r.Columns)
	for _, row := range r.Rows {
		buf, err := EncodeRow(types, row)
		if err != nil {
			return nil, err
		}
		env.Rows = append(env.Rows, buf)
	}
	return msgpack.Marshal(&env)
}

func DecodeResponse(buf []byte) (*Response, error) {
	var env envelope
	err := msgpack.Unmarshal(buf, &env)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode response: %w", err)
	}

	r := Response{
		Tag:     env.Tag,
		Count:   env.Count,
		Tables:  env.Tables,
		Columns: env.Columns,
	}
	types := columnTypes(env.Columns)
	for _, buf := range env.Rows {
		row, err := DecodeRow(types, buf)
		if err != nil {
			return nil, err
		}
		r.Rows = append(r.Rows, row)
	}
	return &r, nil
}
