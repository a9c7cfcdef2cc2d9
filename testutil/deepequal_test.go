package testutil_test

import (
	"testing"

	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/testutil"
)

func TestDeepEqual(t *testing.T) {
	cases := []struct {
		a, b interface{}
		ret  bool
	}{
		{1, 2, false},
		{"abc", "abc", true},
		{[]string{"abc", "def"}, []string{"abc", "def"}, true},
		{sql.Int32Value(1), sql.Int32Value(1), true},
		{sql.Int32Value(1), sql.Int64Value(1), false},
		{sql.StringValue("id"), sql.StringValue("di"), false},
		{[]sql.Value{}, []sql.Value{}, true},
		{[]sql.Value{}, []sql.Value(nil), true},
		{[]sql.Value{nil}, []sql.Value(nil), false},
		{[][]sql.Value{}, [][]sql.Value{}, true},
		{[][]sql.Value{{sql.Int64Value(1), nil}}, [][]sql.Value{{sql.Int64Value(1), nil}}, true},
		{[][]sql.Value{{sql.Int64Value(1)}}, [][]sql.Value{{sql.Int64Value(2)}}, false},
		{struct{ A []int }{}, struct{ A []int }{A: []int{}}, true},
		{map[string]int{"a": 1}, map[string]int{"a": 1}, true},
		{map[string]int{"a": 1}, map[string]int{"a": 2}, false},
	}

	for _, c := range cases {
		if testutil.DeepEqual(c.a, c.b) != c.ret {
			t.Errorf("DeepEqual(%v, %v) got %v want %v", c.a, c.b, !c.ret, c.ret)
		}
	}

	for _, c := range cases {
		var s string
		testutil.DeepEqual(c.a, c.b, &s)
		if c.ret {
			if s != "" {
				t.Errorf("DeepEqual(%v, %v, &s) succeeded; got %q for s; want \"\"", c.a, c.b, s)
			}
		} else {
			if s == "" {
				t.Errorf("DeepEqual(%v, %v, &s) failed; got \"\" for s", c.a, c.b)
			}
		}
	}

	var s string
	testutil.DeepEqual([][]sql.Value{{sql.StringValue("a"), sql.Int32Value(1)}},
		[][]sql.Value{{sql.StringValue("a"), sql.Int32Value(2)}}, &s)
	if s != "[0][1]: 1 != 2" {
		t.Errorf("DeepEqual(rows) got %q for the difference", s)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("DeepEqual(123, 123, &s1, &s2) did not panic")
		}
	}()
	var s1, s2 string
	testutil.DeepEqual(123, 123, &s1, &s2)
}

func TestSortRows(t *testing.T) {
	rows := [][]sql.Value{
		{sql.Int32Value(2), sql.StringValue("b")},
		{sql.Int32Value(1), sql.StringValue("z")},
		{sql.Int32Value(2), sql.StringValue("a")},
	}
	testutil.SortRows(rows, 0, 1)
	want := [][]sql.Value{
		{sql.Int32Value(1), sql.StringValue("z")},
		{sql.Int32Value(2), sql.StringValue("a")},
		{sql.Int32Value(2), sql.StringValue("b")},
	}
	if !testutil.DeepEqual(rows, want) {
		t.Errorf("SortRows() got %v want %v", rows, want)
	}
}
