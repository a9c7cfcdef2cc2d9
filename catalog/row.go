package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/xianghua-2/MYDB/sql"
)

// EncodeRow encodes row positionally against types: int32 as 4 bytes, int64 as 8 bytes,
// both big endian, and string as a 4 byte length followed by the bytes.
func EncodeRow(types []sql.Type, row []sql.Value) ([]byte, error) {
	if len(types) != len(row) {
		return nil, fmt.Errorf("%w: %d values for %d fields", ErrFieldMismatch, len(row),
			len(types))
	}

	var buf []byte
	for i, t := range types {
		switch t {
		case sql.Int32Type:
			v, ok := row[i].(sql.Int32Value)
			if !ok {
				return nil, fmt.Errorf("%w: value %d: want int32 got %v", ErrFieldMismatch, i,
					row[i])
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(v))
		case sql.Int64Type:
			v, ok := row[i].(sql.Int64Value)
			if !ok {
				return nil, fmt.Errorf("%w: value %d: want int64 got %v", ErrFieldMismatch, i,
					row[i])
			}
			buf = binary.BigEndian.AppendUint64(buf, uint64(v))
		case sql.StringType:
			v, ok := row[i].(sql.StringValue)
			if !ok {
				return nil, fmt.Errorf("%w: value %d: want string got %v", ErrFieldMismatch, i,
					row[i])
			}
			if uint64(len(v)) > math.MaxUint32 {
				return nil, fmt.Errorf("%w: value %d: string too long", ErrFieldMismatch, i)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
			buf = append(buf, v...)
		default:
			return nil, fmt.Errorf("%w: %s", ErrInvalidFieldType, t)
		}
	}
	return buf, nil
}

// DecodeRow is the inverse of EncodeRow; a buffer that does not match types exactly is
// ErrCorrupt.
func DecodeRow(types []sql.Type, buf []byte) ([]sql.Value, error) {
	row := make([]sql.Value, 0, len(types))
	for i, t := range types {
		switch t {
		case sql.Int32Type:
			if len(buf) < 4 {
				return nil, fmt.Errorf("%w: row value %d: short int32", ErrCorrupt, i)
			}
			row = append(row, sql.Int32Value(int32(binary.BigEndian.Uint32(buf))))
			buf = buf[4:]
		case sql.Int64Type:
			if len(buf) < 8 {
				return nil, fmt.Errorf("%w: row value %d: short int64", ErrCorrupt, i)
			}
			row = append(row, sql.Int64Value(int64(binary.BigEndian.Uint64(buf))))
			buf = buf[8:]
		case sql.StringType:
			if len(buf) < 4 {
				return nil, fmt.Errorf("%w: row value %d: short string length", ErrCorrupt, i)
			}
			n := binary.BigEndian.Uint32(buf)
			buf = buf[4:]
			if uint64(len(buf)) < uint64(n) {
				return nil, fmt.Errorf("%w: row value %d: short string", ErrCorrupt, i)
			}
			s := buf[:n]
			if !utf8.Valid(s) {
				return nil, fmt.Errorf("%w: row value %d: invalid utf-8", ErrCorrupt, i)
			}
			row = append(row, sql.StringValue(s))
			buf = buf[n:]
		default:
			return nil, fmt.Errorf("%w: field type %s", ErrCorrupt, t)
		}
	}
	if len(buf) != 0 {
		return nil, fmt.Errorf("%w: %d extra bytes in row", ErrCorrupt, len(buf))
	}
	return row, nil
}
