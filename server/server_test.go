package server_test

import (
	"bufio"
	"bytes"
	"context"
	dbsql "database/sql"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/rootptr"
	"github.com/xianghua-2/MYDB/server"
	"github.com/xianghua-2/MYDB/sql"
	"github.com/xianghua-2/MYDB/storage/keyval"
	"github.com/xianghua-2/MYDB/testutil"
)

func newManager(t *testing.T) *catalog.Manager {
	t.Helper()

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
	return m
}

// startServer runs serve on a new listener and returns its address and a function which
// closes the server and waits for serve to return.
func startServer(t *testing.T, svr *server.Server,
	serve func(l net.Listener) error) (string, func()) {

	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- serve(l)
	}()

	return l.Addr().String(), func() {
		svr.Close()
		err := <-done
		if err != server.ErrServerClosed {
			t.Errorf("serve returned with %v", err)
		}
	}
}

func TestPackage(t *testing.T) {
	var b bytes.Buffer
	err := server.WritePackage(&b, server.DataFlag, []byte("show"))
	if err != nil {
		t.Fatal(err)
	}
	err = server.WritePackage(&b, server.ErrorFlag, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.String() != "0073686f77\n01\n" {
		t.Errorf("WritePackage() got %q", b.String())
	}
	b.WriteString("xyz\n\n")

	r := bufio.NewReader(&b)
	flag, payload, err := server.ReadPackage(r)
	if err != nil || flag != server.DataFlag || string(payload) != "show" {
		t.Errorf("ReadPackage() got %d, %q, %v", flag, payload, err)
	}
	flag, payload, err = server.ReadPackage(r)
	if err != nil || flag != server.ErrorFlag || len(payload) != 0 {
		t.Errorf("ReadPackage() got %d, %q, %v", flag, payload, err)
	}
	for i := 0; i < 2; i += 1 {
		_, _, err = server.ReadPackage(r)
		if !errors.Is(err, server.ErrBadPackage) {
			t.Errorf("ReadPackage(bad) got %v want %s", err, server.ErrBadPackage)
		}
	}
}

type nativeConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (nc *nativeConn) request(flag byte, s string) (byte, []byte) {
	nc.t.Helper()

	err := server.WritePackage(nc.conn, flag, []byte(s))
	if err != nil {
		nc.t.Fatal(err)
	}
	flag, payload, err := server.ReadPackage(nc.r)
	if err != nil {
		nc.t.Fatalf("ReadPackage() failed with %s", err)
	}
	return flag, payload
}

func (nc *nativeConn) execute(s string) *catalog.Response {
	nc.t.Helper()

	flag, payload := nc.request(server.DataFlag, s)
	if flag != server.DataFlag {
		nc.t.Fatalf("request(%s) failed with %s", s, payload)
	}
	r, err := catalog.DecodeResponse(payload)
	if err != nil {
		nc.t.Fatal(err)
	}
	return r
}

func (nc *nativeConn) expectError(flag byte, s, msg string) {
	nc.t.Helper()

	flag, payload := nc.request(flag, s)
	if flag != server.ErrorFlag || !strings.Contains(string(payload), msg) {
		nc.t.Errorf("request(%s) got %d, %s want error containing %s", s, flag, payload, msg)
	}
}

func TestNative(t *testing.T) {
	svr := &server.Server{Manager: newManager(t)}
	addr, stop := startServer(t, svr, svr.ServeNative)
	defer stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	nc := &nativeConn{t: t, conn: conn, r: bufio.NewReader(conn)}

	r := nc.execute("create table t id int32, name string")
	if r.Tag != catalog.CreateTag {
		t.Errorf("create got %v", r)
	}
	r = nc.execute("insert into t values 1 'one'; insert into t values 2 'two'")
	if r.String() != "INSERT 1" {
		t.Errorf("insert got %v", r)
	}
	r = nc.execute("select name from t where id > 1")
	if !testutil.DeepEqual(r.Rows, [][]sql.Value{{sql.StringValue("two")}}) {
		t.Errorf("select got %v", r.Rows)
	}

	nc.expectError(server.DataFlag, "commit", "no active transaction")
	nc.expectError(server.DataFlag, "select * from", "")
	nc.expectError(server.DataFlag, "-- nothing", "empty request")
	nc.expectError(server.ErrorFlag, "show", "bad package")
	_, err = conn.Write([]byte("not hex\n"))
	if err != nil {
		t.Fatal(err)
	}
	flag, _, err := server.ReadPackage(nc.r)
	if err != nil || flag != server.ErrorFlag {
		t.Errorf("bad line got %d, %v", flag, err)
	}

	r = nc.execute("show")
	if len(r.Tables) != 1 || r.Tables[0].Name != "t" {
		t.Errorf("show got %v", r.Tables)
	}
}

func TestProto3(t *testing.T) {
	svr := &server.Server{Manager: newManager(t)}
	addr, stop := startServer(t, svr, svr.ServeProto3)
	defer stop()

	db, err := sqlx.Open("postgres",
		fmt.Sprintf("postgres://tester@%s/mydb?sslmode=disable", addr))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_, err = db.Exec("create table people id int64, name string, (index id)")
	if err != nil {
		t.Fatalf("Exec(create) failed with %s", err)
	}
	res, err := db.Exec("insert into people values 1 'alice'")
	if err != nil {
		t.Fatalf("Exec(insert) failed with %s", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		t.Errorf("RowsAffected() got %d, %v", n, err)
	}

	tx := db.MustBegin()
	tx.MustExec("insert into people values 2 'bob'")
	tx.MustExec("insert into people values 3 'carol'")
	err = tx.Commit()
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}

	tx = db.MustBegin()
	tx.MustExec("insert into people values 4 'dave'")
	err = tx.Rollback()
	if err != nil {
		t.Fatalf("Rollback() failed with %s", err)
	}

	rtx, err := db.BeginTxx(context.Background(),
		&dbsql.TxOptions{Isolation: dbsql.LevelReadCommitted})
	if err != nil {
		t.Fatalf("BeginTxx(read committed) failed with %s", err)
	}
	rtx.MustExec("update people set name = 'Bob' where id = 2")
	err = rtx.Commit()
	if err != nil {
		t.Fatalf("Commit(read committed) failed with %s", err)
	}
	_, err = db.BeginTx(context.Background(), &dbsql.TxOptions{ReadOnly: true})
	if err == nil {
		t.Errorf("BeginTx(read only) did not fail")
	}

	type person struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
	}
	var people []person
	err = db.Select(&people, "select id, name from people where id >= 2")
	if err != nil {
		t.Fatalf("Select() failed with %s", err)
	}
	want := []person{{2, "Bob"}, {3, "carol"}}
	if len(people) == 2 && people[0].ID > people[1].ID {
		people[0], people[1] = people[1], people[0]
	}
	if !testutil.DeepEqual(people, want) {
		t.Errorf("Select() got %v want %v", people, want)
	}

	var cnt int
	rows, err := db.Queryx("show")
	if err != nil {
		t.Fatalf("Queryx(show) failed with %s", err)
	}
	for rows.Next() {
		var tbl, field, typ, indexed string
		err = rows.Scan(&tbl, &field, &typ, &indexed)
		if err != nil {
			t.Fatal(err)
		}
		if field == "id" && (typ != "int64" || indexed != "yes") {
			t.Errorf("show got %s %s %s %s", tbl, field, typ, indexed)
		}
		cnt += 1
	}
	rows.Close()
	if cnt != 2 {
		t.Errorf("show got %d rows want 2", cnt)
	}

	_, err = db.Exec("insert into nowhere values 1")
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "42P01" {
		t.Errorf("Exec(insert into nowhere) got %v want 42P01", err)
	}
	_, err = db.Exec("create table people id int64")
	if !errors.As(err, &pqErr) || pqErr.Code != "42P07" {
		t.Errorf("Exec(create duplicate) got %v want 42P07", err)
	}
}

func TestShutdown(t *testing.T) {
	svr := &server.Server{Manager: newManager(t)}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- svr.ServeNative(l)
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	nc := &nativeConn{t: t, conn: conn, r: bufio.NewReader(conn)}
	nc.execute("show")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = svr.Shutdown(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown() with an active connection got %v", err)
	}
	if err := <-done; err != server.ErrServerClosed {
		t.Errorf("ServeNative() returned with %v", err)
	}

	conn.Close()
	err = svr.Shutdown(context.Background())
	if err != nil {
		t.Errorf("Shutdown() failed with %s", err)
	}
	svr.Close()
}
