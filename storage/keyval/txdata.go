package keyval

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xianghua-2/MYDB/storage"
)

const (
	stateField   protowire.Number = 1
	epochField   protowire.Number = 2
	versionField protowire.Number = 3
)

var errBadTransactionData = errors.New("keyval: bad transaction data")

// transactionData is the persisted ledger record of a transaction, encoded in protobuf
// wire format.
type transactionData struct {
	state   storage.TxState
	epoch   uint64
	version uint64
}

func (td *transactionData) marshal() []byte {
	var buf []byte
	buf = protowire.AppendTag(buf, stateField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(td.state))
	buf = protowire.AppendTag(buf, epochField, protowire.VarintType)
	buf = protowire.AppendVarint(buf, td.epoch)
	if td.version > 0 {
		buf = protowire.AppendTag(buf, versionField, protowire.VarintType)
		buf = protowire.AppendVarint(buf, td.version)
	}
	return buf
}

func (td *transactionData) unmarshal(buf []byte) error {
	*td = transactionData{}
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return protowire.ParseError(n)
			}
			buf = buf[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return protowire.ParseError(n)
		}
		buf = buf[n:]

		switch num {
		case stateField:
			if v > uint64(storage.Aborted) {
				return errBadTransactionData
			}
			td.state = storage.TxState(v)
		case epochField:
			td.epoch = v
		case versionField:
			td.version = v
		}
	}
	return nil
}
