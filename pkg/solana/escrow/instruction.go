package escrow

import (
	"encoding/binary"
	"fmt"
)

type Command byte

const (
	CommandInitEscrow Command = iota
	CommandExchange
)

// InstructionSize is the size of a packed instruction. Decoding ignores any
// bytes past it.
const InstructionSize = 1 + 8

func (c Command) String() string {
	switch c {
	case CommandInitEscrow:
		return "InitEscrow"
	case CommandExchange:
		return "Exchange"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// Instruction is a decoded escrow instruction.
//
// For InitEscrow, Amount is what the initializer expects to receive. For
// Exchange, Amount is what the taker expects to receive, and must match the
// escrowed balance.
type Instruction struct {
	Command Command
	Amount  uint64
}

// UnpackInstruction decodes instruction data of the form [tag u8][amount u64 LE].
func UnpackInstruction(data []byte) (*Instruction, error) {
	if len(data) < InstructionSize {
		return nil, ErrorInvalidInstruction
	}

	cmd := Command(data[0])
	switch cmd {
	case CommandInitEscrow, CommandExchange:
	default:
		return nil, ErrorInvalidInstruction
	}

	return &Instruction{
		Command: cmd,
		Amount:  binary.LittleEndian.Uint64(data[1:InstructionSize]),
	}, nil
}

func (i *Instruction) Pack() []byte {
	data := make([]byte, InstructionSize)
	data[0] = byte(i.Command)
	binary.LittleEndian.PutUint64(data[1:], i.Amount)
	return data
}
