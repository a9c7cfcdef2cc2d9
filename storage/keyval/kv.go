package keyval

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	log "github.com/sirupsen/logrus"
)

// Updater writes a batch of keys at a single version; Get returns the latest version of a
// key regardless of the version being written.
type Updater interface {
	Get(key []byte, fn func(val []byte, ver uint64) error) error
	Set(key, val []byte) error
	Commit() error
	Rollback()
}

// Iterator returns, in key order, the latest version no newer than the iteration version
// of each key; it returns io.EOF when there are no more keys.
type Iterator interface {
	Item(fn func(key, val []byte, ver uint64) error) error
	Close()
}

type KV interface {
	Iterate(ver uint64, key []byte) (Iterator, error)
	GetAt(ver uint64, key []byte, fn func(val []byte, ver uint64) error) error
	Update(ver uint64) (Updater, error)
	Close() error
}

type Options struct {
	// MemSize is the memory budget of the store in bytes; zero uses the store default.
	MemSize int64
	// Sync makes every commit durable before it returns.
	Sync   bool
	Logger *log.Logger
}

func encodeKey(key []byte, ver uint64) []byte {
	buf := append(make([]byte, 0, len(key)+8), key...)
	ver = ^ver
	return append(buf, byte(ver>>56), byte(ver>>48), byte(ver>>40), byte(ver>>32),
		byte(ver>>24), byte(ver>>16), byte(ver>>8), byte(ver))
}

func decodeKey(buf []byte) ([]byte, uint64) {
	if len(buf) < 8 {
		panic(fmt.Sprintf("keyval: decode key too short: %v", buf))
	}

	return buf[:len(buf)-8], ^binary.BigEndian.Uint64(buf[len(buf)-8:])
}

// cursor walks raw keys of a store that keeps versions as key suffixes (see encodeKey).
// The returned slices are only valid until the next call.
type cursor interface {
	first() ([]byte, []byte)
	next() ([]byte, []byte)
	close()
}

type suffixIterator struct {
	ver uint64
	cr  cursor
	key []byte
	val []byte
}

func newSuffixIterator(ver uint64, cr cursor) *suffixIterator {
	key, val := cr.first()
	return &suffixIterator{
		ver: ver,
		cr:  cr,
		key: key,
		val: val,
	}
}

func (sit *suffixIterator) Item(fn func(key, val []byte, ver uint64) error) error {
	for sit.key != nil {
		key, ver := decodeKey(sit.key)
		if ver <= sit.ver {
			key = append([]byte(nil), key...)
			val := append([]byte(nil), sit.val...)

			for {
				sit.key, sit.val = sit.cr.next()
				if sit.key == nil {
					break
				}
				k, _ := decodeKey(sit.key)
				if !bytes.Equal(k, key) {
					break
				}
			}

			return fn(key, val, ver)
		}

		sit.key, sit.val = sit.cr.next()
	}

	return io.EOF
}

func (sit *suffixIterator) Close() {
	sit.cr.close()
}

func getAt(kv KV, ver uint64, key []byte, fn func(val []byte, ver uint64) error) error {
	it, err := kv.Iterate(ver, key)
	if err != nil {
		return err
	}
	defer it.Close()

	return it.Item(
		func(itemKey, val []byte, ver uint64) error {
			if !bytes.Equal(itemKey, key) {
				return io.EOF
			}
			return fn(val, ver)
		})
}

func latestKey(key []byte) []byte {
	return encodeKey(key, math.MaxUint64)
}
