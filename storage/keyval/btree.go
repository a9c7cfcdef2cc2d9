package keyval

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/btree"
)

type btreeKV struct {
	treeMutex   sync.Mutex
	updateMutex sync.Mutex
	tree        *btree.BTree
}

type btreeCursor struct {
	tree *btree.BTree
	key  []byte
}

type btreeUpdater struct {
	bkv  *btreeKV
	tree *btree.BTree
	ver  uint64
}

type btreeItem struct {
	key []byte
	val []byte
}

func (bi btreeItem) Less(item btree.Item) bool {
	return bytes.Compare(bi.key, item.(btreeItem).key) < 0
}

// MakeBTreeKV returns a KV held in memory; it is not durable.
func MakeBTreeKV() (KV, error) {
	return &btreeKV{
		tree: btree.New(16),
	}, nil
}

func (bkv *btreeKV) snapshot() *btree.BTree {
	bkv.treeMutex.Lock()
	defer bkv.treeMutex.Unlock()

	return bkv.tree.Clone()
}

func (bkv *btreeKV) Iterate(ver uint64, key []byte) (Iterator, error) {
	return newSuffixIterator(ver,
		&btreeCursor{
			tree: bkv.snapshot(),
			key:  key,
		}), nil
}

func (bc *btreeCursor) seek(pivot []byte, after bool) ([]byte, []byte) {
	var found *btreeItem
	bc.tree.AscendGreaterOrEqual(btreeItem{key: pivot},
		func(item btree.Item) bool {
			bi := item.(btreeItem)
			if after && bytes.Equal(bi.key, pivot) {
				return true
			}
			found = &bi
			return false
		})
	if found == nil {
		bc.key = nil
		return nil, nil
	}
	bc.key = found.key
	return found.key, found.val
}

func (bc *btreeCursor) first() ([]byte, []byte) {
	return bc.seek(bc.key, false)
}

func (bc *btreeCursor) next() ([]byte, []byte) {
	if bc.key == nil {
		return nil, nil
	}
	return bc.seek(bc.key, true)
}

func (bc *btreeCursor) close() {
	// Nothing.
}

func (bkv *btreeKV) GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	return getAt(bkv, ver, key, fn)
}

func (bkv *btreeKV) Update(ver uint64) (Updater, error) {
	bkv.updateMutex.Lock()

	return btreeUpdater{
		bkv:  bkv,
		tree: bkv.snapshot(),
		ver:  ver,
	}, nil
}

func (bkv *btreeKV) Close() error {
	return nil
}

func (bu btreeUpdater) Get(key []byte, fn func(val []byte, ver uint64) error) error {
	var err error = io.EOF
	bu.tree.AscendGreaterOrEqual(btreeItem{key: latestKey(key)},
		func(item btree.Item) bool {
			bi := item.(btreeItem)
			found, ver := decodeKey(bi.key)
			if bytes.Equal(found, key) {
				err = fn(bi.val, ver)
			}
			return false
		})
	return err
}

func (bu btreeUpdater) Set(key, val []byte) error {
	bu.tree.ReplaceOrInsert(btreeItem{key: encodeKey(key, bu.ver), val: val})
	return nil
}

func (bu btreeUpdater) Commit() error {
	bu.bkv.treeMutex.Lock()
	bu.bkv.tree = bu.tree
	bu.bkv.treeMutex.Unlock()

	bu.bkv.updateMutex.Unlock()
	return nil
}

func (bu btreeUpdater) Rollback() {
	bu.bkv.updateMutex.Unlock()
}
