package repl_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreyvit/diff"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/parser"
	"github.com/xianghua-2/MYDB/repl"
	"github.com/xianghua-2/MYDB/rootptr"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/storage/keyval"
)

const (
	script = `
create table t id int32, name string;
insert into t values 1 'amy';
insert into t values 2 'bob';
select * from t;
show;
commit;
select * from nope;
begin;
insert into t values 3 'cy';
abort;
update t set name = 'cat' where id = 2;
select name from t where id = 2;
`

	output = `CREATE
INSERT 1
INSERT 1
+----+------+
| id | name |
+----+------+
|  1 | amy  |
|  2 | bob  |
+----+------+
(2 rows)
+-------+-------+--------+---------+
| table | field |  type  | indexed |
+-------+-------+--------+---------+
| t     | id    | int32  | no      |
| t     | name  | string | no      |
+-------+-------+--------+---------+
(2 rows)
evaluate: no active transaction: COMMIT
select nope: catalog: no such table: nope
BEGIN
INSERT 1
ABORT
UPDATE 1
+------+
| name |
+------+
| cat  |
+------+
(1 rows)
`
)

func TestReplSQL(t *testing.T) {
	root, err := rootptr.Create(filepath.Join(t.TempDir(), "test.bt"))
	if err != nil {
		t.Fatal(err)
	}
	st, err := keyval.NewMemoryStore()
	if err != nil {
		t.Fatal(err)
	}
	m, err := catalog.Create(context.Background(), st, root, nil)
	if err != nil {
		t.Fatal(err)
	}

	ses := evaluate.NewSession(m, "tester", "test", "")
	defer ses.Close()

	var b bytes.Buffer
	repl.ReplSQL(ses, parser.NewParser(strings.NewReader(script), "script"), &b)
	if b.String() != output {
		t.Errorf("ReplSQL() got:\n%s", diff.LineDiff(output, b.String()))
	}
}

func TestRender(t *testing.T) {
	cases := []struct {
		r    catalog.Response
		want string
	}{
		{
			r:    catalog.Response{Tag: catalog.DeleteTag, Count: 3},
			want: "DELETE 3\n",
		},
		{
			r:    catalog.Response{Tag: catalog.CreateTag},
			want: "CREATE\n",
		},
		{
			r: catalog.Response{
				Tag:     catalog.SelectTag,
				Columns: []catalog.Column{{Name: "count", Type: sql.Int64Type}},
			},
			want: `+-------+
| count |
+-------+
+-------+
(0 rows)
`,
		},
	}

	for _, c := range cases {
		var b bytes.Buffer
		repl.Render(&b, &c.r)
		if b.String() != c.want {
			t.Errorf("Render(%s) got:\n%s", c.r.Tag, diff.LineDiff(c.want, b.String()))
		}
	}
}
