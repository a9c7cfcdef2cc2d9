package evaluate_test

import (
	"errors"
	"testing"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/stmt"
)

func TestValidate(t *testing.T) {
	one := sql.Int64Value(1)
	cases := []struct {
		s  stmt.Stmt
		ok bool
	}{
		{nil, false},
		{&stmt.Begin{}, true},
		{&stmt.Begin{Isolation: 7}, false},
		{&stmt.Commit{}, true},
		{&stmt.Show{}, true},
		{&stmt.Create{Table: "t"}, true},
		{&stmt.Create{}, false},
		{&stmt.Create{Table: "t", Fields: []stmt.FieldDef{{Name: "a"}}}, false},
		{&stmt.Insert{Table: "t", Values: []sql.Value{one}}, true},
		{&stmt.Insert{Values: []sql.Value{one}}, false},
		{&stmt.Insert{Table: "t"}, false},
		{&stmt.Insert{Table: "t", Values: []sql.Value{nil}}, false},
		{&stmt.Select{Table: "t"}, true},
		{&stmt.Select{Table: "t", Fields: []string{}}, false},
		{&stmt.Select{Table: "t", Fields: []string{""}}, false},
		{&stmt.Select{Table: "t", Where: &stmt.Where{Left: stmt.Cond{Field: "a", Value: one}}}, true},
		{&stmt.Select{Table: "t", Where: &stmt.Where{Left: stmt.Cond{Value: one}}}, false},
		{&stmt.Select{Table: "t", Where: &stmt.Where{Left: stmt.Cond{Field: "a"}}}, false},
		{
			&stmt.Select{Table: "t", Where: &stmt.Where{
				Left:  stmt.Cond{Field: "a", Value: one},
				Logic: stmt.OrLogic,
			}},
			false,
		},
		{
			&stmt.Select{Table: "t", Where: &stmt.Where{
				Left:  stmt.Cond{Field: "a", Value: one},
				Right: &stmt.Cond{Field: "b", Value: one},
			}},
			false,
		},
		{
			&stmt.Select{Table: "t", Where: &stmt.Where{
				Left:  stmt.Cond{Field: "a", Value: one},
				Logic: stmt.AndLogic,
				Right: &stmt.Cond{Field: "b", Op: stmt.GreaterEqualOp, Value: one},
			}},
			true,
		},
		{&stmt.Select{Table: "t", Where: &stmt.Where{Left: stmt.Cond{Field: "a", Op: 9,
			Value: one}}}, false},
		{&stmt.Update{Table: "t", Set: []stmt.Assignment{{Field: "a", Value: one}}}, true},
		{&stmt.Update{Table: "t"}, false},
		{&stmt.Update{Table: "t", Set: []stmt.Assignment{{Field: "a"}}}, false},
		{&stmt.Delete{Table: "t"}, true},
		{&stmt.Delete{}, false},
	}

	for _, c := range cases {
		err := evaluate.Validate(c.s)
		if c.ok {
			if err != nil {
				t.Errorf("Validate(%v) failed with %s", c.s, err)
			}
			continue
		}
		var cie *catalog.ClientInputError
		if !errors.As(err, &cie) || !errors.Is(err, catalog.ErrMalformed) {
			t.Errorf("Validate(%v) got %v want malformed statement", c.s, err)
		}
	}
}
