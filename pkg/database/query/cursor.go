package query

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// Cursor is the big endian id of the last record a caller has seen.
type Cursor []byte

var (
	EmptyCursor Cursor = Cursor([]byte{})
)

func ToCursor(val uint64) Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	return b
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}

func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}

// FromBase58 parses a cursor previously returned by ToBase58.
func FromBase58(val string) (Cursor, error) {
	decoded, err := base58.Decode(val)
	if err != nil {
		return nil, err
	}
	return Cursor(decoded), nil
}
