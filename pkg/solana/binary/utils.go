// Package binary holds the little endian field helpers shared by the on-chain
// account layouts. Each helper advances offset by the number of bytes it
// consumed.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"
)

var (
	ErrInvalidOptionTag = errors.New("invalid option tag")
	ErrInvalidBool      = errors.New("invalid bool value")
)

func PutKey32(dst []byte, src []byte, offset *int) {
	copy(dst, src)
	*offset += ed25519.PublicKeySize
}

// PutOptionalKey32 writes a COption<Pubkey>: an optionSize tag followed by the
// key, or all zeros when src is empty.
func PutOptionalKey32(dst []byte, src []byte, offset *int, optionSize int) {
	if len(src) > 0 {
		dst[0] = 1
		copy(dst[optionSize:], src)
	}

	*offset += optionSize + ed25519.PublicKeySize
}

func PutUint64(dst []byte, v uint64, offset *int) {
	binary.LittleEndian.PutUint64(dst, v)
	*offset += 8
}

func PutUint8(dst []byte, v uint8, offset *int) {
	dst[0] = v
	*offset += 1
}

func PutBool(dst []byte, v bool, offset *int) {
	if v {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	*offset += 1
}

func PutOptionalUint64(dst []byte, v *uint64, offset *int, optionSize int) {
	if v != nil {
		dst[0] = 1
		binary.LittleEndian.PutUint64(dst[optionSize:], *v)
	}
	*offset += optionSize + 8
}

func GetKey32(src []byte, dst *ed25519.PublicKey, offset *int) {
	*dst = make([]byte, ed25519.PublicKeySize)
	copy(*dst, src)
	*offset += ed25519.PublicKeySize
}

// GetOptionalKey32 reads a COption<Pubkey>. Only the tags 0 and 1 are valid.
func GetOptionalKey32(src []byte, dst *ed25519.PublicKey, offset *int, optionSize int) error {
	isSome, err := getOptionTag(src[:optionSize])
	if err != nil {
		return err
	}

	*dst = nil
	if isSome {
		*dst = make([]byte, ed25519.PublicKeySize)
		copy(*dst, src[optionSize:])
	}
	*offset += optionSize + ed25519.PublicKeySize
	return nil
}

func GetUint64(src []byte, dst *uint64, offset *int) {
	*dst = binary.LittleEndian.Uint64(src)
	*offset += 8
}

func GetUint8(src []byte, dst *uint8, offset *int) {
	*dst = src[0]
	*offset += 1
}

// GetBool reads a single byte flag, rejecting anything other than 0 or 1.
func GetBool(src []byte, dst *bool, offset *int) error {
	switch src[0] {
	case 0:
		*dst = false
	case 1:
		*dst = true
	default:
		return ErrInvalidBool
	}
	*offset += 1
	return nil
}

func GetOptionalUint64(src []byte, dst **uint64, offset *int, optionSize int) error {
	isSome, err := getOptionTag(src[:optionSize])
	if err != nil {
		return err
	}

	*dst = nil
	if isSome {
		val := binary.LittleEndian.Uint64(src[optionSize:])
		*dst = &val
	}
	*offset += optionSize + 8
	return nil
}

func getOptionTag(tag []byte) (bool, error) {
	var value uint64
	switch len(tag) {
	case 1:
		value = uint64(tag[0])
	case 4:
		value = uint64(binary.LittleEndian.Uint32(tag))
	default:
		return false, errors.Errorf("unsupported option size: %d", len(tag))
	}

	switch value {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidOptionTag
	}
}
