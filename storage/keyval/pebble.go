package keyval

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleKV struct {
	mutex sync.Mutex
	db    *pebble.DB
	cache *pebble.Cache
	sync  bool
}

type pebbleCursor struct {
	snap *pebble.Snapshot
	it   *pebble.Iterator
	key  []byte
}

type pebbleUpdater struct {
	kv    *pebbleKV
	batch *pebble.Batch
	ver   uint64
}

func MakePebbleKV(dataDir string, opts Options) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	popts := &pebble.Options{Logger: logger}
	var cache *pebble.Cache
	if opts.MemSize > 0 {
		cache = pebble.NewCache(opts.MemSize)
		popts.Cache = cache
	}
	db, err := pebble.Open(dataDir, popts)
	if err != nil {
		if cache != nil {
			cache.Unref()
		}
		return nil, err
	}
	return &pebbleKV{
		db:    db,
		cache: cache,
		sync:  opts.Sync,
	}, nil
}

func (pkv *pebbleKV) Iterate(ver uint64, key []byte) (Iterator, error) {
	snap := pkv.db.NewSnapshot()
	return newSuffixIterator(ver,
		&pebbleCursor{
			snap: snap,
			it:   snap.NewIter(nil),
			key:  key,
		}), nil
}

func (pc *pebbleCursor) first() ([]byte, []byte) {
	if !pc.it.SeekGE(pc.key) {
		return nil, nil
	}
	return pc.it.Key(), pc.it.Value()
}

func (pc *pebbleCursor) next() ([]byte, []byte) {
	if !pc.it.Next() {
		return nil, nil
	}
	return pc.it.Key(), pc.it.Value()
}

func (pc *pebbleCursor) close() {
	pc.it.Close()
	if pc.snap != nil {
		pc.snap.Close()
	}
}

func (pkv *pebbleKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(pkv, ver, key, fn)
}

func (pkv *pebbleKV) Update(ver uint64) (Updater, error) {
	pkv.mutex.Lock()

	return pebbleUpdater{
		kv:    pkv,
		batch: pkv.db.NewIndexedBatch(),
		ver:   ver,
	}, nil
}

func (pkv *pebbleKV) Close() error {
	err := pkv.db.Close()
	if pkv.cache != nil {
		pkv.cache.Unref()
	}
	return err
}

func (pu pebbleUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	it := pu.batch.NewIter(nil)
	defer it.Close()

	if !it.SeekGE(latestKey(key)) {
		return io.EOF
	}
	found, ver := decodeKey(it.Key())
	if !bytes.Equal(found, key) {
		return io.EOF
	}
	return fn(it.Value(), ver)
}

func (pu pebbleUpdater) Set(key, val []byte) error {
	return pu.batch.Set(encodeKey(key, pu.ver), val, nil)
}

func (pu pebbleUpdater) Commit() error {
	opt := pebble.NoSync
	if pu.kv.sync {
		opt = pebble.Sync
	}
	err := pu.batch.Commit(opt)
	pu.kv.mutex.Unlock()
	return err
}

func (pu pebbleUpdater) Rollback() {
	pu.batch.Close()
	pu.kv.mutex.Unlock()
}
