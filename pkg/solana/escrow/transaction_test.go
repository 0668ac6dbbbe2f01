package escrow

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"
	"github.com/kbruccoleri/solana-bpf-program/pkg/testutil"
)

// openEscrowInstructions creates and funds a temp account, then creates and
// initializes the escrow account, the way an initializer's wallet does.
func (e *testEnv) openEscrowInstructions(t *testing.T, temp, escrow ed25519.PublicKey) []solana.Instruction {
	instructions := e.tokenAccountInstructions(t, temp, e.mintX, testutil.PublicKey(e.initializer))
	return append(instructions,
		token.Transfer(e.initializerX, temp, testutil.PublicKey(e.initializer), offered),
		e.createEscrowInstruction(t, escrow, e.escrowRent(t)),
		e.initEscrowInstruction(temp, escrow, expected),
	)
}

func TestValidateInitEscrowTransaction(t *testing.T) {
	env := setup(t)

	temp := testutil.GenerateSolanaKeypair(t)
	escrow := testutil.GenerateSolanaKeypair(t)

	instructions := env.openEscrowInstructions(t, testutil.PublicKey(temp), testutil.PublicKey(escrow))
	tx := solana.NewTransaction(testutil.PublicKey(env.payer), instructions...)

	actual, err := NewClient(env.bank).ValidateInitEscrowTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, ProgramKey, actual.Program)
	assert.Equal(t, testutil.PublicKey(env.initializer), actual.Initializer)
	assert.Equal(t, testutil.PublicKey(temp), actual.TempTokenAccount)
	assert.Equal(t, env.initializerY, actual.InitializerReceivingAccount)
	assert.Equal(t, testutil.PublicKey(escrow), actual.EscrowAccount)
	assert.EqualValues(t, expected, actual.Amount)
	assert.Equal(t, env.mintX, actual.Mint)
	assert.EqualValues(t, offered, actual.Deposit)

	require.NoError(t, env.submit(t, []ed25519.PrivateKey{temp, escrow, env.initializer}, instructions...))

	record, err := NewClient(env.bank).GetEscrowAccount(testutil.PublicKey(escrow), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, expected, record.ExpectedAmount)
}

func TestValidateInitEscrowTransaction_ExistingTemp(t *testing.T) {
	env := setup(t)

	temp := env.createTemp(t, offered)
	escrow := testutil.GenerateSolanaKeys(t, 1)[0]

	tx := solana.NewTransaction(
		testutil.PublicKey(env.payer),
		env.createEscrowInstruction(t, escrow, env.escrowRent(t)),
		env.initEscrowInstruction(temp, escrow, expected),
	)

	actual, err := NewClient(env.bank).ValidateInitEscrowTransaction(tx)
	require.NoError(t, err)
	assert.Equal(t, temp, actual.TempTokenAccount)
	assert.Nil(t, actual.Mint)
	assert.Zero(t, actual.Deposit)
}

func TestValidateInitEscrowTransaction_Invalid(t *testing.T) {
	env := setup(t)

	temp := testutil.GenerateSolanaKeys(t, 1)[0]
	escrow := testutil.GenerateSolanaKeys(t, 1)[0]
	taker := testutil.PublicKey(env.taker)
	rent := env.escrowRent(t)

	for _, tc := range []struct {
		name   string
		modify func([]solana.Instruction) []solana.Instruction
	}{
		{
			name:   "no escrow instruction",
			modify: func(ixns []solana.Instruction) []solana.Instruction { return ixns[:4] },
		},
		{
			name: "multiple escrow instructions",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				return append(ixns, ixns[4])
			},
		},
		{
			name: "exchange instead of init",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[4].Data = (&Instruction{Command: CommandExchange, Amount: expected}).Pack()
				return ixns
			},
		},
		{
			name: "escrow account not created",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				return append(ixns[:3], ixns[4])
			},
		},
		{
			name: "escrow account not rent exempt",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[3] = env.createEscrowInstruction(t, escrow, rent-1)
				return ixns
			},
		},
		{
			name: "escrow account size",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[3] = system.CreateAccount(testutil.PublicKey(env.payer), escrow, ProgramKey, rent, EscrowAccountSize+1)
				return ixns
			},
		},
		{
			name: "escrow account owned by another program",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[3] = system.CreateAccount(testutil.PublicKey(env.payer), escrow, token.ProgramKey, rent, EscrowAccountSize)
				return ixns
			},
		},
		{
			name: "temp account not a token account",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[0] = system.CreateAccount(testutil.PublicKey(env.payer), temp, ProgramKey, rent, token.AccountSize)
				return ixns
			},
		},
		{
			name: "temp account held by someone else",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[1] = token.InitializeAccount(temp, env.mintX, taker)
				return ixns
			},
		},
		{
			name: "receiving account is the temp account",
			modify: func(ixns []solana.Instruction) []solana.Instruction {
				ixns[4].Accounts[2].PublicKey = temp
				return ixns
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			instructions := tc.modify(env.openEscrowInstructions(t, temp, escrow))
			tx := solana.NewTransaction(testutil.PublicKey(env.payer), instructions...)

			_, err := NewClient(env.bank).ValidateInitEscrowTransaction(tx)
			assert.ErrorIs(t, err, ErrInvalidEscrowTransaction)
		})
	}

	// The same transaction does not open an escrow for another deployment.
	other := testutil.GenerateSolanaKeys(t, 1)[0]
	tx := solana.NewTransaction(testutil.PublicKey(env.payer), env.openEscrowInstructions(t, temp, escrow)...)
	_, err := NewClientForProgram(env.bank, other).ValidateInitEscrowTransaction(tx)
	assert.ErrorIs(t, err, ErrInvalidEscrowTransaction)
}
