package keyval

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.etcd.io/bbolt"
)

var (
	mydbBucket = []byte{'m', 'y', 'd', 'b'}
)

type bboltKV struct {
	db *bbolt.DB
}

type bboltCursor struct {
	tx  *bbolt.Tx
	cr  *bbolt.Cursor
	key []byte
}

type bboltUpdater struct {
	tx  *bbolt.Tx
	bkt *bbolt.Bucket
	ver uint64
}

func MakeBBoltKV(path string, opts Options) (KV, error) {
	bopts := *bbolt.DefaultOptions
	bopts.Timeout = time.Second
	if opts.MemSize > 0 {
		bopts.InitialMmapSize = int(opts.MemSize)
	}
	db, err := bbolt.Open(path, 0644, &bopts)
	if err != nil {
		return nil, err
	}
	if !opts.Sync {
		db.NoFreelistSync = true
		db.NoSync = true
	}

	tx, err := db.Begin(true)
	if err != nil {
		db.Close()
		return nil, err
	}
	if tx.Bucket(mydbBucket) == nil {
		_, err = tx.CreateBucket(mydbBucket)
		if err != nil {
			tx.Rollback()
			db.Close()
			return nil, err
		}
		err = tx.Commit()
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		tx.Rollback()
	}

	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) Iterate(ver uint64, key []byte) (Iterator, error) {
	tx, err := bkv.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(mydbBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errors.New("bbolt: missing mydb bucket")
	}

	return newSuffixIterator(ver,
		&bboltCursor{
			tx:  tx,
			cr:  bkt.Cursor(),
			key: key,
		}), nil
}

func (bc *bboltCursor) first() ([]byte, []byte) {
	return bc.cr.Seek(bc.key)
}

func (bc *bboltCursor) next() ([]byte, []byte) {
	return bc.cr.Next()
}

func (bc *bboltCursor) close() {
	bc.tx.Rollback()
}

func (bkv bboltKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(bkv, ver, key, fn)
}

func (bkv bboltKV) Update(ver uint64) (Updater, error) {
	tx, err := bkv.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(mydbBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errors.New("bbolt: missing mydb bucket")
	}
	return bboltUpdater{
		tx:  tx,
		bkt: bkt,
		ver: ver,
	}, nil
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}

func (bu bboltUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	cr := bu.bkt.Cursor()
	kbuf, val := cr.Seek(latestKey(key))
	if kbuf == nil {
		return io.EOF
	}
	found, ver := decodeKey(kbuf)
	if !bytes.Equal(found, key) {
		return io.EOF
	}
	return fn(val, ver)
}

func (bu bboltUpdater) Set(key, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	return bu.bkt.Put(encodeKey(key, bu.ver), val)
}

func (bu bboltUpdater) Commit() error {
	return bu.tx.Commit()
}

func (bu bboltUpdater) Rollback() {
	bu.tx.Rollback()
}
