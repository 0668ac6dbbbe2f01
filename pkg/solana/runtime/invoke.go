package runtime

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
)

// Entrypoint is the processor of a program registered with the runtime. The
// error it returns should be a solana.InstructionErrorKey or a
// solana.CustomError; anything else is reported as a generic error.
type Entrypoint func(ic *InvokeContext, accounts []*AccountInfo, data []byte) error

// instructionState is shared by every invocation made while processing one
// top level instruction.
type instructionState struct {
	programs map[string]Entrypoint
	rent     system.Rent
	maxDepth int

	// failure is the first failed cross program invocation. It fails the
	// instruction even when the calling program ignores the error.
	failure error
}

// InvokeContext is a program's view of the runtime during one invocation.
type InvokeContext struct {
	ctx   context.Context
	log   *logrus.Entry
	state *instructionState

	programID ed25519.PublicKey
	depth     int
	frame     *frame
}

func newInvokeContext(ctx context.Context, log *logrus.Entry, state *instructionState, programID ed25519.PublicKey, depth int, accounts []*AccountInfo) *InvokeContext {
	return &InvokeContext{
		ctx:       ctx,
		log:       log.WithField("program", base58.Encode(programID)),
		state:     state,
		programID: programID,
		depth:     depth,
		frame:     newFrame(programID, accounts),
	}
}

// NewInvokeContext returns a context for calling an entrypoint directly,
// outside of a bank. programs are the entrypoints reachable through Invoke.
func NewInvokeContext(ctx context.Context, programID ed25519.PublicKey, rent system.Rent, programs map[string]Entrypoint, accounts []*AccountInfo) *InvokeContext {
	state := &instructionState{
		programs: programs,
		rent:     rent,
		maxDepth: defaultConfig.MaxInvokeDepth,
	}
	log := logrus.StandardLogger().WithField("type", "solana/runtime")
	return newInvokeContext(ctx, log, state, programID, 1, accounts)
}

func (ic *InvokeContext) Context() context.Context {
	return ic.ctx
}

// ProgramID is the address of the program being invoked.
func (ic *InvokeContext) ProgramID() ed25519.PublicKey {
	return ic.programID
}

// Depth is 1 for a top level instruction and grows by one per nested call.
func (ic *InvokeContext) Depth() int {
	return ic.depth
}

// Rent returns the rent parameters published by the bank.
func (ic *InvokeContext) Rent() system.Rent {
	return ic.state.rent
}

// Log writes a program log line.
func (ic *InvokeContext) Log(format string, args ...interface{}) {
	ic.log.Debugf(format, args...)
}

// Logger returns the invocation's log entry.
func (ic *InvokeContext) Logger() *logrus.Entry {
	return ic.log
}

// Invoke calls another program with the accounts named by instruction, which
// must all be visible to the current program.
func (ic *InvokeContext) Invoke(instruction solana.Instruction) error {
	return ic.InvokeSigned(instruction)
}

// InvokeSigned calls another program, additionally signing for every
// program derived address of the current program produced by signerSeeds.
func (ic *InvokeContext) InvokeSigned(instruction solana.Instruction, signerSeeds ...[][]byte) error {
	err := ic.invoke(instruction, signerSeeds)
	if err != nil && ic.state.failure == nil {
		ic.state.failure = err
	}
	return err
}

func (ic *InvokeContext) invoke(instruction solana.Instruction, signerSeeds [][][]byte) error {
	log := ic.log.WithField("callee", base58.Encode(instruction.Program))

	entrypoint, ok := ic.state.programs[string(instruction.Program)]
	if !ok {
		log.Debug("callee is not a registered program")
		return solana.InstructionErrorUnsupportedProgramID
	}
	if ic.find(instruction.Program) == nil {
		log.Debug("callee program account not provided")
		return solana.InstructionErrorMissingAccount
	}

	if ic.depth+1 > ic.state.maxDepth {
		return solana.InstructionErrorCallDepth
	}

	pdaSigners := make([]ed25519.PublicKey, 0, len(signerSeeds))
	for _, seeds := range signerSeeds {
		signer, err := solana.CreateProgramAddress(ic.programID, seeds...)
		if err == solana.ErrMaxSeedLengthExceeded {
			return solana.InstructionErrorMaxSeedLengthExceeded
		} else if err != nil {
			return solana.InstructionErrorInvalidSeeds
		}
		pdaSigners = append(pdaSigners, signer)
	}

	callee := make([]*AccountInfo, len(instruction.Accounts))
	for i, meta := range instruction.Accounts {
		caller := ic.find(meta.PublicKey)
		if caller == nil {
			log.Debugf("account %s not provided", base58.Encode(meta.PublicKey))
			return solana.InstructionErrorMissingAccount
		}

		if meta.IsWritable && !ic.isWritable(meta.PublicKey) {
			log.Debugf("%s writable privilege escalated", base58.Encode(meta.PublicKey))
			return solana.InstructionErrorPrivilegeEscalation
		}
		if meta.IsSigner && !ic.isSigner(meta.PublicKey) && !containsKey(pdaSigners, meta.PublicKey) {
			log.Debugf("%s signer privilege escalated", base58.Encode(meta.PublicKey))
			return solana.InstructionErrorPrivilegeEscalation
		}

		callee[i] = &AccountInfo{
			Key:        caller.Key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			account:    caller.account,
		}
	}

	// The caller's own changes are checked before the callee can build on
	// them.
	if err := ic.frame.verify(); err != nil {
		return err
	}

	child := newInvokeContext(ic.ctx, ic.log, ic.state, instruction.Program, ic.depth+1, callee)
	if err := child.run(entrypoint, instruction.Data); err != nil {
		return err
	}

	ic.frame.snapshot()
	return nil
}

// run executes the entrypoint and checks what it changed.
func (ic *InvokeContext) run(entrypoint Entrypoint, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ic.log.WithField("panic", fmt.Sprint(r)).Warn("program panicked")
			err = solana.InstructionErrorProgramFailedToComplete
		}
	}()

	if err := entrypoint(ic, ic.frame.accounts, data); err != nil {
		return normalizeError(ic.log, err)
	}

	return ic.frame.verify()
}

func (ic *InvokeContext) find(key ed25519.PublicKey) *AccountInfo {
	for _, info := range ic.frame.accounts {
		if solana.KeysEqual(info.Key, key) {
			return info
		}
	}
	return nil
}

func (ic *InvokeContext) isSigner(key ed25519.PublicKey) bool {
	for _, info := range ic.frame.accounts {
		if info.IsSigner && solana.KeysEqual(info.Key, key) {
			return true
		}
	}
	return false
}

func (ic *InvokeContext) isWritable(key ed25519.PublicKey) bool {
	for _, info := range ic.frame.accounts {
		if info.IsWritable && solana.KeysEqual(info.Key, key) {
			return true
		}
	}
	return false
}

// normalizeError reduces a program error to one the transaction error
// encoding can carry.
func normalizeError(log *logrus.Entry, err error) error {
	var custom solana.CustomError
	if errors.As(err, &custom) {
		return custom
	}

	var key solana.InstructionErrorKey
	if errors.As(err, &key) {
		return key
	}

	log.WithError(err).Warn("program returned an unrecognized error")
	return solana.InstructionErrorGenericError
}

func containsKey(keys []ed25519.PublicKey, key ed25519.PublicKey) bool {
	for _, k := range keys {
		if solana.KeysEqual(k, key) {
			return true
		}
	}
	return false
}
