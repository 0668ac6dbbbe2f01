package runtime

import (
	"bytes"
	"crypto/ed25519"
	"math/bits"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
)

// frame tracks the accounts visible to a single program invocation and their
// state when the invocation started, so the changes the program made can be
// checked once it returns.
type frame struct {
	programID ed25519.PublicKey
	accounts  []*AccountInfo

	pre      map[*Account]*Account
	writable map[*Account]bool
}

func newFrame(programID ed25519.PublicKey, accounts []*AccountInfo) *frame {
	f := &frame{
		programID: programID,
		accounts:  accounts,
		writable:  make(map[*Account]bool, len(accounts)),
	}

	for _, info := range accounts {
		if info.IsWritable {
			f.writable[info.account] = true
		} else if _, ok := f.writable[info.account]; !ok {
			f.writable[info.account] = false
		}
	}

	f.snapshot()
	return f
}

func (f *frame) snapshot() {
	f.pre = make(map[*Account]*Account, len(f.writable))
	for acct := range f.writable {
		f.pre[acct] = acct.Clone()
	}
}

// verify checks every change made since the last snapshot against the rules
// for what the frame's program may do.
func (f *frame) verify() error {
	var preHi, preLo, postHi, postLo uint64
	var carry uint64

	for acct, pre := range f.pre {
		if err := verifyAccount(f.programID, pre, acct, f.writable[acct]); err != nil {
			return err
		}

		preLo, carry = bits.Add64(preLo, pre.Lamports, 0)
		preHi += carry
		postLo, carry = bits.Add64(postLo, acct.Lamports, 0)
		postHi += carry
	}

	if preHi != postHi || preLo != postLo {
		return solana.InstructionErrorUnbalancedInstruction
	}
	return nil
}

// Reference: https://github.com/solana-labs/solana/blob/v1.9.29/runtime/src/message_processor.rs (PreAccount::verify)
func verifyAccount(programID ed25519.PublicKey, pre, post *Account, isWritable bool) error {
	isOwner := solana.KeysEqual(pre.Owner, programID)

	// Only the owner may assign an account to a new program, and only once
	// it has cleared the data.
	if !bytes.Equal(pre.Owner, post.Owner) {
		if !isWritable || !isOwner || !isZeroed(post.Data) {
			return solana.InstructionErrorModifiedProgramID
		}
	}

	if pre.Lamports != post.Lamports {
		if !isWritable {
			return solana.InstructionErrorReadonlyLamportChange
		}
		if !isOwner && post.Lamports < pre.Lamports {
			return solana.InstructionErrorExternalAccountLamportSpend
		}
		if pre.Executable {
			return solana.InstructionErrorExecutableLamportChange
		}
	}

	if !bytes.Equal(pre.Data, post.Data) {
		if !isWritable {
			return solana.InstructionErrorReadonlyDataModified
		}
		if !isOwner {
			return solana.InstructionErrorExternalAccountDataModified
		}
		if pre.Executable {
			return solana.InstructionErrorExecutableDataModified
		}
	}

	if pre.Executable != post.Executable {
		return solana.InstructionErrorExecutableModified
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
