package stmt

import (
	"fmt"

	"github.com/xianghua-2/MYDB/sql"
)

type Op int

const (
	EqualOp Op = iota
	LessOp
	GreaterOp
	LessEqualOp
	GreaterEqualOp
)

func (op Op) String() string {
	switch op {
	case EqualOp:
		return "="
	case LessOp:
		return "<"
	case GreaterOp:
		return ">"
	case LessEqualOp:
		return "<="
	case GreaterEqualOp:
		return ">="
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Holds reports whether cmp, the result of comparing a field to the value of a condition,
// satisfies op.
func (op Op) Holds(cmp int) bool {
	switch op {
	case EqualOp:
		return cmp == 0
	case LessOp:
		return cmp < 0
	case GreaterOp:
		return cmp > 0
	case LessEqualOp:
		return cmp <= 0
	case GreaterEqualOp:
		return cmp >= 0
	}
	return false
}

type Cond struct {
	Field string
	Op    Op
	Value sql.Value
}

func (c Cond) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, sqlString(c.Value))
}

type Logic int

const (
	NoLogic Logic = iota
	AndLogic
	OrLogic
)

func (l Logic) String() string {
	switch l {
	case AndLogic:
		return "AND"
	case OrLogic:
		return "OR"
	}
	return ""
}

// Where is one condition, or two joined by and / or.
type Where struct {
	Left  Cond
	Logic Logic
	Right *Cond
}

func (w *Where) String() string {
	switch w.Logic {
	case AndLogic:
		return fmt.Sprintf("%s AND %s", w.Left, w.Right)
	case OrLogic:
		return fmt.Sprintf("%s OR %s", w.Left, w.Right)
	}
	return w.Left.String()
}

// Conds returns the conditions of the predicate.
func (w *Where) Conds() []Cond {
	if w.Right == nil {
		return []Cond{w.Left}
	}
	return []Cond{w.Left, *w.Right}
}
