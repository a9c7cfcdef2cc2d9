package keyval_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/xianghua-2/MYDB/storage/keyval"
	"github.com/xianghua-2/MYDB/testutil"
)

func setKeys(t *testing.T, kv keyval.KV, ver uint64, keys ...string) {
	t.Helper()

	upd, err := kv.Update(ver)
	if err != nil {
		t.Fatalf("Update(%d) failed with %s", ver, err)
	}
	for _, key := range keys {
		err = upd.Set([]byte(key), []byte(key+"@"+string(rune('0'+ver))))
		if err != nil {
			t.Fatalf("Set(%s) failed with %s", key, err)
		}
	}
	err = upd.Commit()
	if err != nil {
		t.Fatalf("Commit() failed with %s", err)
	}
}

func getAt(t *testing.T, kv keyval.KV, ver uint64, key string) (string, uint64) {
	t.Helper()

	var ret string
	var retVer uint64
	err := kv.GetAt(ver, []byte(key),
		func(val []byte, ver uint64) error {
			ret = string(val)
			retVer = ver
			return nil
		})
	if err == io.EOF {
		return "", 0
	} else if err != nil {
		t.Fatalf("GetAt(%d, %s) failed with %s", ver, key, err)
	}
	return ret, retVer
}

func iterate(t *testing.T, kv keyval.KV, ver uint64, key string) []string {
	t.Helper()

	it, err := kv.Iterate(ver, []byte(key))
	if err != nil {
		t.Fatalf("Iterate(%d, %s) failed with %s", ver, key, err)
	}
	defer it.Close()

	var ret []string
	for {
		err = it.Item(
			func(key, val []byte, ver uint64) error {
				ret = append(ret, string(val))
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("Item() failed with %s", err)
		}
	}
	return ret
}

func testKV(t *testing.T, kv keyval.KV) {
	t.Helper()

	setKeys(t, kv, 1, "aaa", "bbb", "ccc")
	setKeys(t, kv, 2, "bbb")
	setKeys(t, kv, 3, "aaa", "ddd")

	cases := []struct {
		ver uint64
		key string
		val string
		got uint64
	}{
		{ver: 0, key: "aaa"},
		{ver: 1, key: "aaa", val: "aaa@1", got: 1},
		{ver: 2, key: "aaa", val: "aaa@1", got: 1},
		{ver: 3, key: "aaa", val: "aaa@3", got: 3},
		{ver: 9, key: "bbb", val: "bbb@2", got: 2},
		{ver: 1, key: "bbb", val: "bbb@1", got: 1},
		{ver: 2, key: "ddd"},
		{ver: 3, key: "ddd", val: "ddd@3", got: 3},
		{ver: 3, key: "eee"},
	}
	for _, c := range cases {
		val, ver := getAt(t, kv, c.ver, c.key)
		if val != c.val || ver != c.got {
			t.Errorf("GetAt(%d, %s) got %s@%d want %s@%d", c.ver, c.key, val, ver, c.val,
				c.got)
		}
	}

	if !testutil.DeepEqual(iterate(t, kv, 1, "a"), []string{"aaa@1", "bbb@1", "ccc@1"}) {
		t.Errorf("Iterate(1) got %v", iterate(t, kv, 1, "a"))
	}
	if !testutil.DeepEqual(iterate(t, kv, 3, "b"), []string{"bbb@2", "ccc@1", "ddd@3"}) {
		t.Errorf("Iterate(3) got %v", iterate(t, kv, 3, "b"))
	}

	upd, err := kv.Update(4)
	if err != nil {
		t.Fatal(err)
	}
	err = upd.Get([]byte("aaa"),
		func(val []byte, ver uint64) error {
			if ver != 3 || string(val) != "aaa@3" {
				t.Errorf("Updater.Get(aaa) got %s@%d want aaa@3@3", val, ver)
			}
			return nil
		})
	if err != nil {
		t.Errorf("Updater.Get(aaa) failed with %s", err)
	}
	err = upd.Get([]byte("zzz"), func(val []byte, ver uint64) error { return nil })
	if err != io.EOF {
		t.Errorf("Updater.Get(zzz) got %v want io.EOF", err)
	}
	upd.Set([]byte("aaa"), []byte("rolled back"))
	upd.Rollback()

	if val, _ := getAt(t, kv, 9, "aaa"); val != "aaa@3" {
		t.Errorf("GetAt(aaa) after rollback got %s", val)
	}
}

func cleanDir(t *testing.T) {
	t.Helper()

	err := testutil.CleanDir("testdata", []string{".gitignore"})
	if err != nil {
		t.Fatal(err)
	}
	err = os.MkdirAll("testdata", 0755)
	if err != nil {
		t.Fatal(err)
	}
}

func TestBTreeKV(t *testing.T) {
	kv, err := keyval.MakeBTreeKV()
	if err != nil {
		t.Fatal(err)
	}
	testKV(t, kv)
}

func TestBBoltKV(t *testing.T) {
	cleanDir(t)

	kv, err := keyval.MakeBBoltKV(filepath.Join("testdata", "kv.db"), keyval.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	testKV(t, kv)
}

func TestBadgerKV(t *testing.T) {
	cleanDir(t)

	kv, err := keyval.MakeBadgerKV(filepath.Join("testdata", "kv.badger"),
		keyval.Options{
			Logger: testutil.SetupLogger(filepath.Join("testdata", "badger_kv.log")),
		})
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	testKV(t, kv)
}

func TestPebbleKV(t *testing.T) {
	cleanDir(t)

	kv, err := keyval.MakePebbleKV(filepath.Join("testdata", "kv.pebble"),
		keyval.Options{
			MemSize: 8 << 20,
			Logger:  testutil.SetupLogger(filepath.Join("testdata", "pebble_kv.log")),
		})
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	testKV(t, kv)
}
