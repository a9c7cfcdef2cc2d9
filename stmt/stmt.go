package stmt

import (
	"fmt"

	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/storage"
)

// Stmt is one of the statements below; no other package can add a case.
type Stmt interface {
	fmt.Stringer
	stmt()
}

type Begin struct {
	Isolation storage.Isolation
}

type Commit struct{}

type Abort struct{}

type Show struct{}

func (*Begin) stmt()  {}
func (*Commit) stmt() {}
func (*Abort) stmt()  {}
func (*Show) stmt()   {}
func (*Create) stmt() {}
func (*Insert) stmt() {}
func (*Select) stmt() {}
func (*Update) stmt() {}
func (*Delete) stmt() {}

func (stmt *Begin) String() string {
	if stmt.Isolation == storage.ReadCommitted {
		return "BEGIN ISOLATION LEVEL READ COMMITTED"
	}
	return "BEGIN"
}

func (*Commit) String() string {
	return "COMMIT"
}

func (*Abort) String() string {
	return "ABORT"
}

func (*Show) String() string {
	return "SHOW"
}

// Kind returns the lower case name of the statement, as used in responses and metrics.
func Kind(s Stmt) string {
	switch s.(type) {
	case *Begin:
		return "begin"
	case *Commit:
		return "commit"
	case *Abort:
		return "abort"
	case *Show:
		return "show"
	case *Create:
		return "create"
	case *Insert:
		return "insert"
	case *Select:
		return "select"
	case *Update:
		return "update"
	case *Delete:
		return "delete"
	}
	return "unknown"
}

type FieldDef struct {
	Name string
	Type string
}

type Create struct {
	Table   string
	Fields  []FieldDef
	Indexes []string
}

func (stmt *Create) String() string {
	s := fmt.Sprintf("CREATE TABLE %s", stmt.Table)
	for i, fd := range stmt.Fields {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf(" %s %s", fd.Name, fd.Type)
	}
	if len(stmt.Indexes) > 0 {
		s += ", (INDEX"
		for _, idx := range stmt.Indexes {
			s += " " + idx
		}
		s += ")"
	}
	return s
}

type Insert struct {
	Table  string
	Values []sql.Value
}

func (stmt *Insert) String() string {
	s := fmt.Sprintf("INSERT INTO %s VALUES", stmt.Table)
	for _, v := range stmt.Values {
		s += " " + sqlString(v)
	}
	return s
}

type Select struct {
	Table string
	// Fields is nil for *.
	Fields []string
	Where  *Where
}

func (stmt *Select) String() string {
	s := "SELECT "
	if stmt.Fields == nil {
		s += "*"
	} else {
		for i, f := range stmt.Fields {
			if i > 0 {
				s += ", "
			}
			s += f
		}
	}
	s += " FROM " + stmt.Table
	if stmt.Where != nil {
		s += " WHERE " + stmt.Where.String()
	}
	return s
}

type Assignment struct {
	Field string
	Value sql.Value
}

type Update struct {
	Table string
	Set   []Assignment
	Where *Where
}

func (stmt *Update) String() string {
	s := fmt.Sprintf("UPDATE %s SET ", stmt.Table)
	for i, a := range stmt.Set {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s = %s", a.Field, sqlString(a.Value))
	}
	if stmt.Where != nil {
		s += " WHERE " + stmt.Where.String()
	}
	return s
}

type Delete struct {
	Table string
	Where *Where
}

func (stmt *Delete) String() string {
	s := fmt.Sprintf("DELETE FROM %s", stmt.Table)
	if stmt.Where != nil {
		s += " WHERE " + stmt.Where.String()
	}
	return s
}

func sqlString(v sql.Value) string {
	if v == nil {
		return "NULL"
	}
	return v.String()
}
