package system

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const (
	// RentSize is the serialized size of the Rent sysvar.
	RentSize = 8 + 8 + 1

	// AccountStorageOverhead is the number of bytes charged for every account
	// on top of its data.
	//
	// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/rent.rs#L38
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 3480
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50
)

var ErrInvalidRentSize = errors.New("invalid rent sysvar size")

// Rent mirrors the runtime's rent configuration. Every persisted account must
// hold at least MinimumBalance lamports for its size.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent returns the parameters used on every public cluster.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the lamports required for an account holding
// dataLen bytes to be exempt from rent.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := AccountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether balance covers the minimum for dataLen bytes.
func (r Rent) IsExempt(balance, dataLen uint64) bool {
	return balance >= r.MinimumBalance(dataLen)
}

func (r Rent) Marshal() []byte {
	b := make([]byte, RentSize)
	binary.LittleEndian.PutUint64(b, r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(r.ExemptionThreshold))
	b[16] = r.BurnPercent
	return b
}

func (r *Rent) Unmarshal(b []byte) error {
	if len(b) != RentSize {
		return ErrInvalidRentSize
	}

	r.LamportsPerByteYear = binary.LittleEndian.Uint64(b)
	r.ExemptionThreshold = math.Float64frombits(binary.LittleEndian.Uint64(b[8:]))
	r.BurnPercent = b[16]

	if r.BurnPercent > 100 {
		return errors.Errorf("invalid burn percent: %d", r.BurnPercent)
	}
	if math.IsNaN(r.ExemptionThreshold) || r.ExemptionThreshold < 0 {
		return errors.Errorf("invalid exemption threshold: %v", r.ExemptionThreshold)
	}

	return nil
}
