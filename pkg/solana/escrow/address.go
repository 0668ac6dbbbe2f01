package escrow

import (
	"crypto/ed25519"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

var custodianPrefix = []byte("escrow")

// GetCustodianAddress returns the program derived address that owns escrowed
// token accounts of the escrow program deployed at program, along with its
// bump seed.
func GetCustodianAddress(program ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		custodianPrefix,
	)
}

// custodianSeeds are the seeds the program signs with on behalf of the
// custodian.
func custodianSeeds(bump uint8) [][]byte {
	return [][]byte{custodianPrefix, {bump}}
}
