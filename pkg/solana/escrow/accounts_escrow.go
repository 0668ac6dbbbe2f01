package escrow

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/binary"
)

const EscrowAccountSize = (1 + // is_initialized
	32 + // initializer
	32 + // temp_token_account
	32 + // initializer_receiving_account
	8) // expected_amount

// EscrowAccount is the state of one swap, stored in an account owned by the
// escrow program.
type EscrowAccount struct {
	IsInitialized bool

	// Initializer created the escrow and receives the counter asset.
	Initializer ed25519.PublicKey

	// TempTokenAccount holds the escrowed asset. The custodian owns it
	// once the escrow is initialized.
	TempTokenAccount ed25519.PublicKey

	// InitializerReceivingAccount is the token account the taker pays into.
	InitializerReceivingAccount ed25519.PublicKey

	// ExpectedAmount is what the initializer expects to receive.
	ExpectedAmount uint64
}

func (obj *EscrowAccount) Marshal() []byte {
	data := make([]byte, EscrowAccountSize)

	var offset int
	binary.PutBool(data, obj.IsInitialized, &offset)
	binary.PutKey32(data[offset:], obj.Initializer, &offset)
	binary.PutKey32(data[offset:], obj.TempTokenAccount, &offset)
	binary.PutKey32(data[offset:], obj.InitializerReceivingAccount, &offset)
	binary.PutUint64(data[offset:], obj.ExpectedAmount, &offset)

	return data
}

func (obj *EscrowAccount) Unmarshal(data []byte) error {
	if len(data) != EscrowAccountSize {
		return errors.Wrapf(ErrInvalidAccountData, "invalid escrow account size: %d", len(data))
	}

	var offset int
	if err := binary.GetBool(data, &obj.IsInitialized, &offset); err != nil {
		return errors.Wrap(ErrInvalidAccountData, "invalid initialized flag")
	}
	binary.GetKey32(data[offset:], &obj.Initializer, &offset)
	binary.GetKey32(data[offset:], &obj.TempTokenAccount, &offset)
	binary.GetKey32(data[offset:], &obj.InitializerReceivingAccount, &offset)
	binary.GetUint64(data[offset:], &obj.ExpectedAmount, &offset)

	return nil
}

func (obj *EscrowAccount) String() string {
	return fmt.Sprintf(
		"EscrowAccount{is_initialized=%t, initializer=%s, temp_token_account=%s, initializer_receiving_account=%s, expected_amount=%d}",
		obj.IsInitialized,
		base58.Encode(obj.Initializer),
		base58.Encode(obj.TempTokenAccount),
		base58.Encode(obj.InitializerReceivingAccount),
		obj.ExpectedAmount,
	)
}
