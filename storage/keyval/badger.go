package keyval

import (
	"io"
	"math"
	"os"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

type badgerKV struct {
	db *badger.DB
}

type badgerIterator struct {
	tx *badger.Txn
	it *badger.Iterator
}

type badgerUpdater struct {
	tx  *badger.Txn
	ver uint64
}

func MakeBadgerKV(dataDir string, opts Options) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	bopts := badger.DefaultOptions(dataDir)
	bopts = bopts.WithBypassLockGuard(true)
	bopts = bopts.WithLogger(logger)
	bopts = bopts.WithSyncWrites(opts.Sync)
	db, err := badger.OpenManaged(bopts)
	if err != nil {
		return nil, err
	}
	return badgerKV{
		db: db,
	}, nil
}

func (bkv badgerKV) Iterate(ver uint64, key []byte) (Iterator, error) {
	tx := bkv.db.NewTransactionAt(ver, false)
	it := tx.NewIterator(badger.DefaultIteratorOptions)
	it.Seek(key)

	return badgerIterator{
		tx: tx,
		it: it,
	}, nil
}

func (bit badgerIterator) Item(fn func(key, val []byte, ver uint64) error) error {
	if !bit.it.Valid() {
		return io.EOF
	}

	item := bit.it.Item()
	key := item.KeyCopy(nil)
	ver := item.Version()
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}

	bit.it.Next()
	return fn(key, val, ver)
}

func (bit badgerIterator) Close() {
	bit.it.Close()
	bit.tx.Discard()
}

func (bkv badgerKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	tx := bkv.db.NewTransactionAt(ver, false)
	defer tx.Discard()

	return get(tx, key, fn)
}

func (bkv badgerKV) Update(ver uint64) (Updater, error) {
	return badgerUpdater{
		tx:  bkv.db.NewTransactionAt(math.MaxUint64, true),
		ver: ver,
	}, nil
}

func (bkv badgerKV) Close() error {
	return bkv.db.Close()
}

func (bu badgerUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	return get(bu.tx, key, fn)
}

func get(tx *badger.Txn, key []byte, fn func(val []byte, ver uint64) error) error {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return io.EOF
		}
		return err
	}
	return item.Value(
		func(val []byte) error {
			return fn(val, item.Version())
		})
}

func (bu badgerUpdater) Set(key, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	return bu.tx.Set(key, val)
}

func (bu badgerUpdater) Commit() error {
	return bu.tx.CommitAt(bu.ver, nil)
}

func (bu badgerUpdater) Rollback() {
	bu.tx.Discard()
}
