package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/testutil"
)

func TestVerifyAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 2)
	program, other := keys[0], keys[1]

	base := &Account{Lamports: 100, Data: []byte{1, 2}, Owner: program}

	for _, tc := range []struct {
		name      string
		programID []byte
		writable  bool
		modify    func(a *Account)
		expected  error
	}{
		{name: "unchanged readonly", programID: other, modify: func(a *Account) {}},
		{name: "owner writes", programID: program, writable: true, modify: func(a *Account) { a.Data[0] = 9; a.Lamports = 50 }},
		{name: "external credit", programID: other, writable: true, modify: func(a *Account) { a.Lamports = 200 }},
		{
			name:      "external debit",
			programID: other,
			writable:  true,
			modify:    func(a *Account) { a.Lamports = 50 },
			expected:  solana.InstructionErrorExternalAccountLamportSpend,
		},
		{
			name:      "readonly lamports",
			programID: program,
			modify:    func(a *Account) { a.Lamports = 200 },
			expected:  solana.InstructionErrorReadonlyLamportChange,
		},
		{
			name:      "readonly data",
			programID: program,
			modify:    func(a *Account) { a.Data[1] = 0 },
			expected:  solana.InstructionErrorReadonlyDataModified,
		},
		{
			name:      "external data",
			programID: other,
			writable:  true,
			modify:    func(a *Account) { a.Data[1] = 0 },
			expected:  solana.InstructionErrorExternalAccountDataModified,
		},
		{
			name:      "assign with data",
			programID: program,
			writable:  true,
			modify:    func(a *Account) { a.Owner = system.SystemAccount },
			expected:  solana.InstructionErrorModifiedProgramID,
		},
		{
			name:      "assign zeroed",
			programID: program,
			writable:  true,
			modify:    func(a *Account) { a.Data = make([]byte, 2); a.Owner = system.SystemAccount },
		},
		{
			name:      "assign by non owner",
			programID: other,
			writable:  true,
			modify:    func(a *Account) { a.Data = nil; a.Owner = other },
			expected:  solana.InstructionErrorModifiedProgramID,
		},
		{
			name:      "executable flag",
			programID: program,
			writable:  true,
			modify:    func(a *Account) { a.Executable = true },
			expected:  solana.InstructionErrorExecutableModified,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			post := base.Clone()
			tc.modify(post)
			assert.Equal(t, tc.expected, verifyAccount(tc.programID, base, post, tc.writable))
		})
	}

	executable := &Account{Lamports: 100, Data: []byte{1}, Owner: program, Executable: true}
	post := executable.Clone()
	post.Lamports = 200
	assert.Equal(t, solana.InstructionErrorExecutableLamportChange, verifyAccount(program, executable, post, true))
	post = executable.Clone()
	post.Data[0] = 2
	assert.Equal(t, solana.InstructionErrorExecutableDataModified, verifyAccount(program, executable, post, true))
}

func TestFrame_Unbalanced(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)
	program := keys[0]

	a := &Account{Lamports: 100, Owner: program}
	b := &Account{Lamports: 100, Owner: program}
	f := newFrame(program, []*AccountInfo{
		NewAccountInfo(keys[1], false, true, a),
		NewAccountInfo(keys[2], false, true, b),
	})

	a.Lamports = 60
	b.Lamports = 140
	assert.NoError(t, f.verify())

	b.Lamports = 141
	assert.Equal(t, solana.InstructionErrorUnbalancedInstruction, f.verify())

	f.snapshot()
	assert.NoError(t, f.verify())
}

func TestFrame_AliasedAccounts(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 2)
	program := keys[0]

	// The same account passed twice is writable if either handle is.
	shared := &Account{Lamports: 100, Data: []byte{0}, Owner: program}
	f := newFrame(program, []*AccountInfo{
		NewAccountInfo(keys[1], false, false, shared),
		NewAccountInfo(keys[1], false, true, shared),
	})

	shared.Data[0] = 1
	assert.NoError(t, f.verify())
}
