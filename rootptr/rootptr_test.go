package rootptr_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xianghua-2/MYDB/rootptr"
	"github.com/xianghua-2/MYDB/storage"
)

const helperEnv = "MYDB_ROOTPTR_HELPER"

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bt")

	rp, err := rootptr.Create(path)
	require.NoError(t, err)
	assert.Equal(t, storage.NullEntry, rp.Load())

	_, err = rootptr.Create(path)
	assert.Error(t, err, "Create of an existing root pointer")

	require.NoError(t, rp.Update(123))
	assert.Equal(t, storage.EntryID(123), rp.Load())

	rp, err = rootptr.Open(path)
	require.NoError(t, err)
	assert.Equal(t, storage.EntryID(123), rp.Load())

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(12), fi.Size())
	_, err = os.Stat(path + "_tmp")
	assert.True(t, os.IsNotExist(err), "temporary file left behind")
}

func TestOpenCorrupt(t *testing.T) {
	dir := t.TempDir()

	_, err := rootptr.Open(filepath.Join(dir, "missing.bt"))
	assert.Error(t, err)

	cases := [][]byte{
		{},
		{0, 0, 0, 0, 0, 0, 0, 1},
		{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0},
	}
	for i, c := range cases {
		path := filepath.Join(dir, "corrupt.bt")
		require.NoError(t, os.WriteFile(path, c, 0666))
		_, err = rootptr.Open(path)
		assert.True(t, errors.Is(err, rootptr.ErrCorrupt), "case %d: got %v", i, err)
	}
}

func TestUpdateFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	require.NoError(t, os.Mkdir(dir, 0755))
	path := filepath.Join(dir, "test.bt")

	rp, err := rootptr.Create(path)
	require.NoError(t, err)
	require.NoError(t, rp.Update(7))

	require.NoError(t, os.RemoveAll(dir))
	err = rp.Update(8)
	assert.Error(t, err)
	assert.Equal(t, storage.EntryID(7), rp.Load())
}

// TestHelperProcess is run as a subprocess by TestCrashAtomic; it updates the root pointer
// until it is killed.
func TestHelperProcess(t *testing.T) {
	path := os.Getenv(helperEnv)
	if path == "" {
		return
	}

	rp, err := rootptr.Open(path)
	if err != nil {
		os.Exit(2)
	}
	for id := rp.Load() + 1; ; id += 1 {
		if rp.Update(id) != nil {
			os.Exit(3)
		}
	}
}

func TestCrashAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.bt")
	_, err := rootptr.Create(path)
	require.NoError(t, err)

	var last storage.EntryID
	for n := 0; n < 5; n += 1 {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(), helperEnv+"="+path)
		require.NoError(t, cmd.Start())

		time.Sleep(time.Duration(50+n*20) * time.Millisecond)
		require.NoError(t, cmd.Process.Kill())
		cmd.Wait()

		rp, err := rootptr.Open(path)
		require.NoError(t, err, "root pointer torn after kill %d", n)
		assert.GreaterOrEqual(t, uint64(rp.Load()), uint64(last))
		last = rp.Load()
	}
}
