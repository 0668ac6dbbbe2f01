package shortvec

import (
	"fmt"
	"io"
	"math"
)

const maxEncodingLength = 3

// EncodeLen encodes the specified len into the writer.
//
// If len > math.MaxUint16, an error is returned.
func EncodeLen(w io.Writer, len int) (n int, err error) {
	if len < 0 || len > math.MaxUint16 {
		return 0, fmt.Errorf("len out of range [0, %d]", math.MaxUint16)
	}

	written := 0
	valBuf := make([]byte, 1)

	for {
		valBuf[0] = byte(len & 0x7f)
		len >>= 7
		if len == 0 {
			n, err := w.Write(valBuf)
			written += n

			return written, err
		}

		valBuf[0] |= 0x80
		n, err := w.Write(valBuf)
		written += n
		if err != nil {
			return written, err
		}
	}
}

// DecodeLen decodes a shortvec encoded len from the reader.
//
// Only the canonical encoding of a value is accepted: a trailing zero byte
// after a continuation bit, a fourth byte, or a value above math.MaxUint16
// are all rejected.
func DecodeLen(r io.Reader) (val int, err error) {
	valBuf := make([]byte, 1)

	for offset := 0; offset < maxEncodingLength; offset++ {
		if _, err := io.ReadFull(r, valBuf); err != nil {
			return 0, err
		}

		elem := int(valBuf[0])
		if elem == 0 && offset != 0 {
			return 0, fmt.Errorf("alias encoding at byte %d", offset)
		}

		val |= (elem & 0x7f) << (offset * 7)
		if val > math.MaxUint16 {
			return 0, fmt.Errorf("value exceeds %d", math.MaxUint16)
		}

		if elem&0x80 == 0 {
			return val, nil
		}
	}

	return 0, fmt.Errorf("invalid size: more than %d bytes", maxEncodingLength)
}
