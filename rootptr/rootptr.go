package rootptr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/xianghua-2/MYDB/storage"
)

const recordSize = 12

var (
	ErrCorrupt  = errors.New("rootptr: corrupt root pointer")
	ErrSyncDir  = errors.New("rootptr: sync directory")
	syncDirFunc = syncDir
)

// Store persists the identifier of the head of the catalog in a single small file. The
// file is always replaced as a whole, so after a crash it holds either the old or the new
// identifier.
type Store struct {
	path  string
	mutex sync.Mutex
	id    storage.EntryID
}

func encodeRecord(id storage.EntryID) []byte {
	buf := make([]byte, recordSize)
	binary.BigEndian.PutUint64(buf, uint64(id))
	binary.BigEndian.PutUint32(buf[8:], crc32.ChecksumIEEE(buf[:8]))
	return buf
}

func decodeRecord(buf []byte) (storage.EntryID, error) {
	if len(buf) != recordSize {
		return storage.NullEntry, fmt.Errorf("%w: length %d", ErrCorrupt, len(buf))
	}
	if crc32.ChecksumIEEE(buf[:8]) != binary.BigEndian.Uint32(buf[8:]) {
		return storage.NullEntry, fmt.Errorf("%w: bad checksum", ErrCorrupt)
	}
	return storage.EntryID(binary.BigEndian.Uint64(buf)), nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func writeRecord(path string, id storage.EntryID) error {
	tmp := path + "_tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	_, err = f.Write(encodeRecord(id))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	err = syncDirFunc(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSyncDir, err)
	}
	return nil
}

// Create makes a new root pointer file at path holding storage.NullEntry.
func Create(path string) (*Store, error) {
	_, err := os.Stat(path)
	if err == nil {
		return nil, fmt.Errorf("rootptr: %s already exists", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("rootptr: %s: %w", path, err)
	}

	err = writeRecord(path, storage.NullEntry)
	if err != nil {
		return nil, fmt.Errorf("rootptr: create %s: %w", path, err)
	}
	return &Store{path: path}, nil
}

func Open(path string) (*Store, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rootptr: open %s: %w", path, err)
	}
	id, err := decodeRecord(buf)
	if err != nil {
		return nil, fmt.Errorf("rootptr: open %s: %w", path, err)
	}
	return &Store{path: path, id: id}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() storage.EntryID {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.id
}

// Update durably replaces the persisted identifier. If it fails with ErrSyncDir the file
// already holds id but the rename may not survive a crash; Load returns id, matching the
// file. On any other failure both the file and Load still return the previous identifier.
func (s *Store) Update(id storage.EntryID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := writeRecord(s.path, id)
	if err != nil {
		if errors.Is(err, ErrSyncDir) {
			s.id = id
		}
		return fmt.Errorf("rootptr: update %s: %w", s.path, err)
	}
	s.id = id
	return nil
}
