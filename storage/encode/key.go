package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/xianghua-2/MYDB/sql"
)

const (
	// Values are encoded as a tag followed by a binary representation of the value, so
	// that the byte order of two keys is the order of their values.
	Int64NegKeyTag    = 130
	Int64NotNegKeyTag = 131
	StringKeyTag      = 150
)

func EncodeUint64(buf []byte, u uint64) []byte {
	return append(buf, byte(u>>56), byte(u>>48), byte(u>>40), byte(u>>32), byte(u>>24),
		byte(u>>16), byte(u>>8), byte(u))
}

func DecodeUint64(buf []byte) (uint64, bool) {
	if len(buf) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(buf), true
}

func encodeKeyBytes(buf []byte, bytes []byte) []byte {
	for _, b := range bytes {
		if b == 0 || b == 1 {
			buf = append(buf, 1)
		}
		buf = append(buf, b)
	}
	return append(buf, 0)
}

func encodeInt64(buf []byte, i int64) []byte {
	if i < 0 {
		buf = append(buf, Int64NegKeyTag)
	} else {
		buf = append(buf, Int64NotNegKeyTag)
	}
	return EncodeUint64(buf, uint64(i))
}

// MakeKey returns the order-preserving encoding of val. Int32 and int64 values with the
// same numeric value have the same key.
func MakeKey(val sql.Value) []byte {
	switch val := val.(type) {
	case sql.Int32Value:
		return encodeInt64(make([]byte, 0, 9), int64(val))
	case sql.Int64Value:
		return encodeInt64(make([]byte, 0, 9), int64(val))
	case sql.StringValue:
		return encodeKeyBytes(append(make([]byte, 0, len(val)+2), StringKeyTag), []byte(val))
	default:
		panic(fmt.Sprintf("unexpected type for sql.Value: %T: %v", val, val))
	}
}
