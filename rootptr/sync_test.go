package rootptr

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xianghua-2/MYDB/storage"
)

func TestUpdateSyncDirFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.bt")
	rp, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, rp.Update(3))

	syncDirFunc = func(dir string) error {
		return errors.New("disk on fire")
	}
	defer func() {
		syncDirFunc = syncDir
	}()

	err = rp.Update(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncDir))
	assert.Equal(t, storage.EntryID(4), rp.Load())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	id, err := decodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, storage.EntryID(4), id)
}
