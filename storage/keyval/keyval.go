package keyval

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/google/btree"
	log "github.com/sirupsen/logrus"

	"github.com/xianghua-2/MYDB/storage"
	"github.com/xianghua-2/MYDB/storage/encode"
)

// Keys start with an 8 byte area; every key must be prefix free among all keys because
// the suffix encoded stores append the version to the key.
const (
	metaArea         = 0
	transactionsArea = 1
	entriesArea      = 2
	indexesArea      = 3
)

var (
	errEmptyPayload = errors.New("keyval: empty payload")
	errStop         = errors.New("keyval: stop iteration")

	versionKey  = []byte{0, 0, 0, 0, 0, 0, 0, 0, 'v', 'e', 'r', 's', 'i', 'o', 'n'}
	epochKey    = []byte{0, 0, 0, 0, 0, 0, 0, 0, 'e', 'p', 'o', 'c', 'h'}
	sequenceKey = []byte{0, 0, 0, 0, 0, 0, 0, 0, 's', 'e', 'q', 'u', 'e', 'n', 'c', 'e'}
)

// Store is an optimistic multi-version store: writes are buffered per transaction and
// checked for conflicts at commit; the first committer wins.
type Store struct {
	kv           KV
	mutex        sync.Mutex
	ver          uint64
	epoch        uint64
	lastTID      uint64
	lastID       uint64
	active       map[storage.TxID]*transaction
	transactions map[storage.TxID]*transactionData
	commitMutex  sync.Mutex
}

type transaction struct {
	xid   storage.TxID
	iso   storage.Isolation
	ver   uint64
	delta *btree.BTree
}

type deltaItem struct {
	key []byte
	val []byte
	// When check is set, the key conflicts with any version committed after ver.
	ver   uint64
	check bool
}

func (di deltaItem) Less(item btree.Item) bool {
	return bytes.Compare(di.key, item.(deltaItem).key) < 0
}

func NewBBoltStore(path string, opts Options) (*Store, error) {
	kv, err := MakeBBoltKV(path, opts)
	if err != nil {
		return nil, err
	}
	return openStore(kv)
}

func NewBadgerStore(dataDir string, opts Options) (*Store, error) {
	kv, err := MakeBadgerKV(dataDir, opts)
	if err != nil {
		return nil, err
	}
	return openStore(kv)
}

func NewPebbleStore(dataDir string, opts Options) (*Store, error) {
	kv, err := MakePebbleKV(dataDir, opts)
	if err != nil {
		return nil, err
	}
	return openStore(kv)
}

func NewMemoryStore() (*Store, error) {
	kv, err := MakeBTreeKV()
	if err != nil {
		return nil, err
	}
	return openStore(kv)
}

func openStore(kv KV) (*Store, error) {
	st, err := Open(kv)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return st, nil
}

func getUint64(kv KV, key []byte) (uint64, error) {
	var u64 uint64
	err := kv.GetAt(math.MaxUint64, key,
		func(val []byte, ver uint64) error {
			var ok bool
			u64, ok = encode.DecodeUint64(val)
			if !ok || len(val) != 8 {
				return fmt.Errorf("keyval: key %v: len(val) != 8: %d", key, len(val))
			}
			return nil
		})
	if err == io.EOF {
		return 0, nil
	}
	return u64, err
}

func transactionKey(tid uint64) []byte {
	return encode.EncodeUint64(encode.EncodeUint64(make([]byte, 0, 16), transactionsArea),
		tid)
}

func entryKey(id storage.EntryID) []byte {
	return encode.EncodeUint64(encode.EncodeUint64(make([]byte, 0, 16), entriesArea),
		uint64(id))
}

func indexPrefix(root storage.EntryID) []byte {
	return encode.EncodeUint64(encode.EncodeUint64(make([]byte, 0, 16), indexesArea),
		uint64(root))
}

func loadTransactions(kv KV) (map[storage.TxID]*transactionData, error) {
	prefix := encode.EncodeUint64(make([]byte, 0, 8), transactionsArea)
	it, err := kv.Iterate(math.MaxUint64, prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	transactions := map[storage.TxID]*transactionData{}
	for {
		err = it.Item(
			func(key, val []byte, ver uint64) error {
				if !bytes.HasPrefix(key, prefix) {
					return io.EOF
				}
				if len(key) != 16 {
					return fmt.Errorf("keyval: transaction key wrong length: %v", key)
				}
				tid, _ := encode.DecodeUint64(key[8:])

				var td transactionData
				err := td.unmarshal(val)
				if err != nil {
					return err
				}

				transactions[storage.TxID(tid)] = &td
				return nil
			})
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
	}

	return transactions, nil
}

// Open starts a store on kv. Transactions left active by a previous process are marked
// aborted; their writes never reached kv.
func Open(kv KV) (*Store, error) {
	ver, err := getUint64(kv, versionKey)
	if err != nil {
		return nil, err
	}
	epoch, err := getUint64(kv, epochKey)
	if err != nil {
		return nil, err
	}
	epoch += 1
	lastID, err := getUint64(kv, sequenceKey)
	if err != nil {
		return nil, err
	}

	transactions, err := loadTransactions(kv)
	if err != nil {
		return nil, err
	}

	st := &Store{
		kv:           kv,
		ver:          ver,
		epoch:        epoch,
		lastID:       lastID,
		active:       map[storage.TxID]*transaction{},
		transactions: transactions,
	}

	var aborted int
	err = st.update(
		func(upd Updater) error {
			var err error
			aborted, err = st.startup(upd)
			return err
		})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"version": st.ver,
		"epoch":   epoch,
		"aborted": aborted,
	}).Info("keyval: store opened")
	return st, nil
}

func (st *Store) startup(upd Updater) (int, error) {
	err := upd.Set(epochKey, encode.EncodeUint64(make([]byte, 0, 8), st.epoch))
	if err != nil {
		return 0, err
	}

	var aborted int
	for tid, td := range st.transactions {
		if uint64(tid) > st.lastTID {
			st.lastTID = uint64(tid)
		}
		if td.state == storage.Active {
			td.state = storage.Aborted
			err = upd.Set(transactionKey(uint64(tid)), td.marshal())
			if err != nil {
				return 0, err
			}
			aborted += 1
		}
	}

	return aborted, nil
}

func (st *Store) Close() error {
	return st.kv.Close()
}

// update writes records which are not part of any transaction at the next version; badger
// in managed mode can not commit at version 0.
func (st *Store) update(fn func(upd Updater) error) error {
	st.commitMutex.Lock()
	defer st.commitMutex.Unlock()

	st.mutex.Lock()
	ver := st.ver + 1
	st.mutex.Unlock()

	upd, err := st.kv.Update(ver)
	if err != nil {
		return err
	}
	err = fn(upd)
	if err == nil {
		err = upd.Set(versionKey, encode.EncodeUint64(make([]byte, 0, 8), ver))
	}
	if err != nil {
		upd.Rollback()
		return err
	}
	err = upd.Commit()
	if err != nil {
		return err
	}

	st.mutex.Lock()
	st.ver = ver
	st.mutex.Unlock()
	return nil
}

func (st *Store) setTransactionData(tid storage.TxID, td *transactionData) error {
	return st.update(
		func(upd Updater) error {
			return upd.Set(transactionKey(uint64(tid)), td.marshal())
		})
}

func (st *Store) Begin(iso storage.Isolation) (storage.TxID, error) {
	st.mutex.Lock()
	st.lastTID += 1
	xid := storage.TxID(st.lastTID)
	td := &transactionData{
		state: storage.Active,
		epoch: st.epoch,
	}
	st.transactions[xid] = td
	st.active[xid] = &transaction{
		xid:   xid,
		iso:   iso,
		ver:   st.ver,
		delta: btree.New(16),
	}
	st.mutex.Unlock()

	err := st.setTransactionData(xid, td)
	if err != nil {
		st.mutex.Lock()
		delete(st.active, xid)
		td.state = storage.Aborted
		st.mutex.Unlock()
		return 0, err
	}
	return xid, nil
}

func (st *Store) transaction(xid storage.TxID) (*transaction, error) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	tx, ok := st.active[xid]
	if !ok {
		if _, ok := st.transactions[xid]; ok {
			return nil, storage.ErrTransactionDone
		}
		return nil, storage.ErrNoTransaction
	}
	return tx, nil
}

func (st *Store) finish(xid storage.TxID, td *transactionData) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	delete(st.active, xid)
	st.transactions[xid] = td
}

func (st *Store) State(xid storage.TxID) storage.TxState {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if td, ok := st.transactions[xid]; ok {
		return td.state
	}
	return storage.Aborted
}

func (st *Store) NextStmt(xid storage.TxID) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	if tx, ok := st.active[xid]; ok && tx.iso == storage.ReadCommitted {
		tx.ver = st.ver
	}
}

func (st *Store) Commit(ctx context.Context, xid storage.TxID) error {
	tx, err := st.transaction(xid)
	if err != nil {
		return err
	}

	if tx.delta.Len() == 0 {
		td := &transactionData{
			state:   storage.Committed,
			epoch:   st.epoch,
			version: tx.ver,
		}
		st.finish(xid, td)
		return st.setTransactionData(xid, td)
	}

	err = st.commit(tx)
	if err != nil {
		td := &transactionData{
			state: storage.Aborted,
			epoch: st.epoch,
		}
		st.finish(xid, td)
		if serr := st.setTransactionData(xid, td); serr != nil {
			log.WithFields(log.Fields{
				"xid":   xid,
				"error": serr.Error(),
			}).Error("keyval: abort after failed commit")
		}
		return err
	}
	return nil
}

func (st *Store) commit(tx *transaction) error {
	st.commitMutex.Lock()
	defer st.commitMutex.Unlock()

	st.mutex.Lock()
	ver := st.ver + 1
	lastID := st.lastID
	st.mutex.Unlock()

	upd, err := st.kv.Update(ver)
	if err != nil {
		return err
	}

	tx.delta.Ascend(
		func(item btree.Item) bool {
			di := item.(deltaItem)
			if di.check {
				err = upd.Get(di.key,
					func(val []byte, keyVer uint64) error {
						if keyVer > di.ver {
							return storage.ErrConflict
						}
						return nil
					})
				if err == io.EOF {
					err = nil
				}
				if err != nil {
					return false
				}
			}
			err = upd.Set(di.key, di.val)
			return err == nil
		})

	td := &transactionData{
		state:   storage.Committed,
		epoch:   st.epoch,
		version: ver,
	}
	if err == nil {
		err = upd.Set(versionKey, encode.EncodeUint64(make([]byte, 0, 8), ver))
	}
	if err == nil {
		err = upd.Set(sequenceKey, encode.EncodeUint64(make([]byte, 0, 8), lastID))
	}
	if err == nil {
		err = upd.Set(transactionKey(uint64(tx.xid)), td.marshal())
	}
	if err != nil {
		upd.Rollback()
		return err
	}

	err = upd.Commit()
	if err != nil {
		return err
	}

	st.mutex.Lock()
	st.ver = ver
	delete(st.active, tx.xid)
	st.transactions[tx.xid] = td
	st.mutex.Unlock()

	return nil
}

func (st *Store) Abort(xid storage.TxID) error {
	_, err := st.transaction(xid)
	if err != nil {
		return err
	}

	td := &transactionData{
		state: storage.Aborted,
		epoch: st.epoch,
	}
	st.finish(xid, td)
	return st.setTransactionData(xid, td)
}

func (st *Store) nextID() storage.EntryID {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	st.lastID += 1
	return storage.EntryID(st.lastID)
}

func (st *Store) get(tx *transaction, key []byte) ([]byte, error) {
	if item := tx.delta.Get(deltaItem{key: key}); item != nil {
		val := item.(deltaItem).val
		if len(val) == 0 {
			return nil, storage.ErrDeleted
		}
		return val, nil
	}

	var ret []byte
	err := st.kv.GetAt(tx.ver, key,
		func(val []byte, ver uint64) error {
			if len(val) == 0 {
				return storage.ErrDeleted
			}
			ret = append(make([]byte, 0, len(val)), val...)
			return nil
		})
	if err == io.EOF {
		return nil, storage.ErrNotFound
	}
	return ret, err
}

// set buffers a write of key; a write to a key that was read from the snapshot will be
// checked for conflicts when the transaction commits.
func (tx *transaction) set(key, val []byte, check bool) {
	di := deltaItem{
		key:   key,
		val:   val,
		ver:   tx.ver,
		check: check,
	}
	if item := tx.delta.Get(deltaItem{key: key}); item != nil {
		prev := item.(deltaItem)
		di.ver = prev.ver
		di.check = prev.check
	}
	tx.delta.ReplaceOrInsert(di)
}

func (st *Store) Insert(ctx context.Context, xid storage.TxID, payload []byte) (storage.EntryID,
	error) {

	if len(payload) == 0 {
		return storage.NullEntry, errEmptyPayload
	}
	tx, err := st.transaction(xid)
	if err != nil {
		return storage.NullEntry, err
	}

	id := st.nextID()
	tx.set(entryKey(id), payload, false)
	return id, nil
}

func (st *Store) Read(ctx context.Context, xid storage.TxID, id storage.EntryID) ([]byte,
	error) {

	tx, err := st.transaction(xid)
	if err != nil {
		return nil, err
	}
	return st.get(tx, entryKey(id))
}

func (st *Store) Update(ctx context.Context, xid storage.TxID, id storage.EntryID,
	payload []byte) error {

	if len(payload) == 0 {
		return errEmptyPayload
	}
	tx, err := st.transaction(xid)
	if err != nil {
		return err
	}

	key := entryKey(id)
	_, err = st.get(tx, key)
	if err != nil {
		return err
	}
	tx.set(key, payload, true)
	return nil
}

func (st *Store) Delete(ctx context.Context, xid storage.TxID, id storage.EntryID) error {
	tx, err := st.transaction(xid)
	if err != nil {
		return err
	}

	key := entryKey(id)
	_, err = st.get(tx, key)
	if err != nil {
		return err
	}
	tx.set(key, []byte{}, true)
	return nil
}

func (st *Store) NewIndex(ctx context.Context, xid storage.TxID) (storage.EntryID, error) {
	_, err := st.transaction(xid)
	if err != nil {
		return storage.NullEntry, err
	}
	return st.nextID(), nil
}

func (st *Store) IndexInsert(ctx context.Context, xid storage.TxID, root storage.EntryID,
	key []byte, id storage.EntryID) error {

	tx, err := st.transaction(xid)
	if err != nil {
		return err
	}

	buf := append(indexPrefix(root), key...)
	tx.set(encode.EncodeUint64(buf, uint64(id)), []byte{1}, false)
	return nil
}

type indexEntry struct {
	key []byte
	id  storage.EntryID
}

func inRange(prefix, key, min, max []byte) (indexEntry, bool, bool) {
	if !bytes.HasPrefix(key, prefix) || len(key) < len(prefix)+8 {
		return indexEntry{}, false, true
	}
	k := key[len(prefix) : len(key)-8]
	if max != nil && bytes.Compare(k, max) > 0 {
		return indexEntry{}, false, true
	}
	if min != nil && bytes.Compare(k, min) < 0 {
		return indexEntry{}, false, false
	}
	id, _ := encode.DecodeUint64(key[len(key)-8:])
	return indexEntry{key: key, id: storage.EntryID(id)}, true, false
}

func (st *Store) IndexScan(ctx context.Context, xid storage.TxID, root storage.EntryID, min,
	max []byte) ([]storage.EntryID, error) {

	tx, err := st.transaction(xid)
	if err != nil {
		return nil, err
	}

	prefix := indexPrefix(root)
	start := append(append(make([]byte, 0, len(prefix)+len(min)), prefix...), min...)

	var committed []indexEntry
	it, err := st.kv.Iterate(tx.ver, start)
	if err != nil {
		return nil, err
	}
	for {
		err = it.Item(
			func(key, val []byte, ver uint64) error {
				ie, ok, done := inRange(prefix, key, min, max)
				if done {
					return errStop
				}
				if ok && len(val) > 0 {
					committed = append(committed, ie)
				}
				return nil
			})
		if err != nil {
			break
		}
	}
	it.Close()
	if err != io.EOF && err != errStop {
		return nil, err
	}

	var pending []indexEntry
	tx.delta.AscendGreaterOrEqual(deltaItem{key: start},
		func(item btree.Item) bool {
			di := item.(deltaItem)
			ie, ok, done := inRange(prefix, di.key, min, max)
			if done {
				return false
			}
			if ok && len(di.val) > 0 {
				pending = append(pending, ie)
			}
			return true
		})

	ids := make([]storage.EntryID, 0, len(committed)+len(pending))
	for len(committed) > 0 || len(pending) > 0 {
		var ie indexEntry
		if len(pending) == 0 {
			ie, committed = committed[0], committed[1:]
		} else if len(committed) == 0 {
			ie, pending = pending[0], pending[1:]
		} else {
			cmp := bytes.Compare(committed[0].key, pending[0].key)
			if cmp < 0 {
				ie, committed = committed[0], committed[1:]
			} else {
				if cmp == 0 {
					committed = committed[1:]
				}
				ie, pending = pending[0], pending[1:]
			}
		}
		ids = append(ids, ie.id)
	}
	return ids, nil
}
