package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
	"github.com/kbruccoleri/solana-bpf-program/pkg/metrics"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/system"
	sync_util "github.com/kbruccoleri/solana-bpf-program/pkg/sync"
)

const (
	metricsStructName = "runtime.bank"

	transactionCountMetricName    = "Runtime/TransactionCount"
	transactionDurationMetricName = "Runtime/TransactionDuration"
	transactionFailedEventName    = "RuntimeTransactionFailed"
)

// Bank is an in process ledger. It verifies and executes transactions against
// accounts held in an account.Store, committing each transaction's effects
// all at once or not at all.
type Bank struct {
	log    *logrus.Entry
	ctx    context.Context
	config *Config
	rent   system.Rent

	store        account.Store
	accountLocks *sync_util.StripedLock

	programsMu sync.RWMutex
	programs   map[string]Entrypoint

	mu          sync.RWMutex
	slot        uint64
	blockhashes *blockhashQueue

	statuses *statusCache

	submitter *submitter
}

// New creates a bank over store and seeds it with the rent sysvar and the
// system program. ctx is the parent of the background work started for
// submitted transactions, and may carry a metrics application.
func New(ctx context.Context, store account.Store, config *Config) (*Bank, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Bank{
		log:          logrus.StandardLogger().WithField("type", "solana/runtime"),
		ctx:          ctx,
		config:       config,
		rent:         config.Rent(),
		store:        store,
		accountLocks: sync_util.NewStripedLock(config.AccountLockStripes),
		programs:     make(map[string]Entrypoint),
		blockhashes:  newBlockhashQueue(config.MaxRecentBlockhashes, genesisBlockhash()),
		statuses:     newStatusCache(config.StatusCacheCapacity, config.StatusCacheFalsePositiveRate),
	}

	rentData := b.rent.Marshal()
	rentSysvar := &Account{
		Lamports: b.rent.MinimumBalance(uint64(len(rentData))),
		Data:     rentData,
		Owner:    system.SysvarOwner,
	}
	if err := b.SetAccount(ctx, system.RentSysVar, rentSysvar); err != nil {
		return nil, errors.Wrap(err, "failed to seed rent sysvar")
	}

	if err := b.RegisterProgram(ctx, system.SystemAccount, processSystem); err != nil {
		return nil, errors.Wrap(err, "failed to register system program")
	}

	b.submitter = newSubmitter(b, config.SubmitWorkers, config.SubmitQueueSize)
	return b, nil
}

// Close stops processing submitted transactions. Queued transactions are
// drained first.
func (b *Bank) Close() {
	b.submitter.close()
}

// RegisterProgram makes entrypoint executable at programID.
func (b *Bank) RegisterProgram(ctx context.Context, programID ed25519.PublicKey, entrypoint Entrypoint) error {
	if len(programID) != ed25519.PublicKeySize {
		return solana.ErrInvalidPublicKey
	}

	data := []byte(base58.Encode(programID))
	programAccount := &Account{
		Lamports:   b.rent.MinimumBalance(uint64(len(data))),
		Data:       data,
		Owner:      system.NativeLoader,
		Executable: true,
	}
	if err := b.SetAccount(ctx, programID, programAccount); err != nil {
		return err
	}

	b.programsMu.Lock()
	b.programs[string(programID)] = entrypoint
	b.programsMu.Unlock()

	b.log.WithField("program", base58.Encode(programID)).Debug("registered program")
	return nil
}

// SetAccount overwrites the account at address outside of any transaction.
// An account with zero lamports is removed.
func (b *Bank) SetAccount(ctx context.Context, address ed25519.PublicKey, acct *Account) error {
	unlock := b.accountLocks.LockAll([][]byte{address}, nil)
	defer unlock()

	if acct.Lamports == 0 {
		return b.store.Commit(ctx, nil, []string{base58.Encode(address)})
	}
	return b.store.Commit(ctx, []*account.Record{acct.toRecord(address, b.GetSlot())}, nil)
}

// Airdrop credits lamports to address, creating a system account if needed.
func (b *Bank) Airdrop(ctx context.Context, address ed25519.PublicKey, lamports uint64) error {
	unlock := b.accountLocks.LockAll([][]byte{address}, nil)
	defer unlock()

	acct, _, err := b.loadAccount(ctx, address)
	if err != nil {
		return err
	}
	if acct.Lamports+lamports < acct.Lamports {
		return errors.New("airdrop overflows account balance")
	}
	acct.Lamports += lamports

	return b.store.Commit(ctx, []*account.Record{acct.toRecord(address, b.GetSlot())}, nil)
}

// GetAccountInfo implements solana.AccountReader over committed state.
func (b *Bank) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	acct, exists, err := b.loadAccount(context.Background(), address)
	if err != nil {
		return solana.AccountInfo{}, err
	}
	if !exists {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return acct.toAccountInfo(), nil
}

func (b *Bank) GetBalance(address ed25519.PublicKey) (uint64, error) {
	acct, _, err := b.loadAccount(context.Background(), address)
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

func (b *Bank) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return b.rent.MinimumBalance(size), nil
}

func (b *Bank) GetLatestBlockhash() (solana.Blockhash, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.blockhashes.latest(), nil
}

func (b *Bank) GetSlot() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.slot
}

// AdvanceSlot moves the bank to the next slot and returns its blockhash.
// Transactions referencing blockhashes that fall out of the recent window
// expire, along with the record of their signatures.
func (b *Bank) AdvanceSlot() solana.Blockhash {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slot++
	next := nextBlockhash(b.blockhashes.latest(), b.slot)
	evicted := b.blockhashes.register(next, b.slot)
	b.statuses.purge(evicted...)

	return next
}

// GetSignatureStatus returns the outcome of a processed transaction.
func (b *Bank) GetSignatureStatus(sig solana.Signature) (*solana.SignatureStatus, error) {
	status, ok := b.statuses.get(sig)
	if !ok {
		return nil, solana.ErrSignatureNotFound
	}
	return status, nil
}

// ProcessTransaction verifies and executes tx. Errors rejecting the
// transaction are *solana.TransactionError; any other error is an internal
// failure, in which case nothing was committed.
func (b *Bank) ProcessTransaction(ctx context.Context, tx solana.Transaction) (err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ProcessTransaction")
	defer tracer.End()

	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, transactionDurationMetricName, time.Since(start))
		metrics.RecordCount(ctx, transactionCountMetricName, 1)

		if err != nil {
			tracer.OnError(err)
			metrics.RecordEvent(ctx, transactionFailedEventName, map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	if err := tx.Message.Sanitize(); err != nil {
		return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumSignatures) {
		return solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	sig := tx.Signatures[0]
	log := b.log.WithFields(logrus.Fields{
		"method":    "ProcessTransaction",
		"signature": sig.String(),
	})
	tracer.AddAttribute("signature", sig.String())

	b.mu.RLock()
	slot := b.slot
	recent := b.blockhashes.contains(tx.Message.RecentBlockhash)
	b.mu.RUnlock()
	if !recent {
		return solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	var writable, readonly [][]byte
	for i, key := range tx.Message.Accounts {
		if tx.Message.IsWritable(i) {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	unlock := b.accountLocks.LockAll(writable, readonly)
	defer unlock()

	// Every transaction with this signature shares the fee payer, whose write
	// lock is held from here on.
	if b.statuses.contains(tx.Message.RecentBlockhash, sig) {
		return solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}

	exec, err := b.load(ctx, tx.Message)
	if err != nil {
		return err
	}

	if err := exec.chargeFee(b.rent, b.config.LamportsPerSignature*uint64(tx.Message.Header.NumSignatures)); err != nil {
		return err
	}

	for i, instruction := range tx.Message.Instructions {
		if err := b.execute(ctx, log, exec, i, instruction); err != nil {
			log.WithError(err).Debug("instruction failed")
			return b.commitFailure(ctx, tx, exec, slot, err)
		}
	}

	if err := exec.checkRent(b.rent); err != nil {
		return b.commitFailure(ctx, tx, exec, slot, err)
	}

	updates, deletes := exec.changes(slot)
	if err := b.store.Commit(ctx, updates, deletes); err != nil {
		log.WithError(err).Warn("failed to commit transaction")
		return errors.Wrap(err, "failed to commit transaction")
	}

	b.statuses.insert(tx.Message.RecentBlockhash, sig, &solana.SignatureStatus{Slot: slot})
	log.Debug("transaction committed")
	return nil
}

// commitFailure persists only the fee and records the failed signature.
func (b *Bank) commitFailure(ctx context.Context, tx solana.Transaction, exec *execution, slot uint64, txErr error) error {
	payer := exec.keys[0]
	var updates []*account.Record
	var deletes []string
	if exec.feePayer.Lamports == 0 {
		deletes = append(deletes, base58.Encode(payer))
	} else {
		updates = append(updates, exec.feePayer.toRecord(payer, slot))
	}

	if err := b.store.Commit(ctx, updates, deletes); err != nil {
		return errors.Wrap(err, "failed to commit transaction fee")
	}

	status := &solana.SignatureStatus{Slot: slot}
	if transactionErr, ok := txErr.(*solana.TransactionError); ok {
		status.ErrorResult = transactionErr
	}
	b.statuses.insert(tx.Message.RecentBlockhash, tx.Signatures[0], status)

	return txErr
}

func (b *Bank) load(ctx context.Context, m solana.Message) (*execution, error) {
	exec := &execution{
		keys:     m.Accounts,
		message:  m,
		loaded:   make([]*Account, len(m.Accounts)),
		existed:  make([]bool, len(m.Accounts)),
		working:  make([]*Account, len(m.Accounts)),
		programs: make(map[string]Entrypoint),
	}

	for i, key := range m.Accounts {
		acct, exists, err := b.loadAccount(ctx, key)
		if err != nil {
			return nil, err
		}
		exec.loaded[i] = acct
		exec.existed[i] = exists
		exec.working[i] = acct.Clone()
	}

	b.programsMu.RLock()
	for k, v := range b.programs {
		exec.programs[k] = v
	}
	b.programsMu.RUnlock()

	for _, instruction := range m.Instructions {
		index := instruction.ProgramIndex
		if !exec.existed[index] {
			return nil, solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
		}
		if _, ok := exec.programs[string(m.Accounts[index])]; !ok || !exec.loaded[index].Executable {
			return nil, solana.NewTransactionError(solana.TransactionErrorInvalidProgramForExecution)
		}
	}

	return exec, nil
}

func (b *Bank) execute(ctx context.Context, log *logrus.Entry, exec *execution, index int, instruction solana.CompiledInstruction) error {
	programID := exec.keys[instruction.ProgramIndex]

	accounts := make([]*AccountInfo, len(instruction.Accounts))
	for i, accountIndex := range instruction.Accounts {
		accounts[i] = &AccountInfo{
			Key:        exec.keys[accountIndex],
			IsSigner:   exec.message.IsSigner(int(accountIndex)),
			IsWritable: exec.message.IsWritable(int(accountIndex)),
			account:    exec.working[accountIndex],
		}
	}

	state := &instructionState{
		programs: exec.programs,
		rent:     b.rent,
		maxDepth: b.config.MaxInvokeDepth,
	}
	ic := newInvokeContext(ctx, log, state, programID, 1, accounts)

	err := ic.run(exec.programs[string(programID)], instruction.Data)
	if err == nil && state.failure != nil {
		err = state.failure
	}
	if err == nil {
		return nil
	}

	txErr, convErr := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   err,
	})
	if convErr != nil {
		return errors.Wrap(convErr, "failed to encode instruction error")
	}
	return txErr
}

// loadAccount returns the committed account at address, or an empty system
// account if there is none.
func (b *Bank) loadAccount(ctx context.Context, address ed25519.PublicKey) (*Account, bool, error) {
	record, err := b.store.Get(ctx, base58.Encode(address))
	if err == account.ErrAccountNotFound {
		return emptyAccount(), false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(err, "failed to load account %s", base58.Encode(address))
	}

	acct, err := fromRecord(record)
	if err != nil {
		return nil, false, errors.Wrapf(err, "invalid stored account %s", record.Address)
	}
	return acct, true, nil
}

// execution is the working state of one transaction.
type execution struct {
	keys    []ed25519.PublicKey
	message solana.Message

	loaded  []*Account
	existed []bool
	working []*Account

	// feePayer is the fee payer after the fee, before any instruction ran.
	feePayer *Account

	programs map[string]Entrypoint
}

func (e *execution) chargeFee(rent system.Rent, fee uint64) error {
	payer := e.working[0]

	if !e.existed[0] {
		return solana.NewTransactionError(solana.TransactionErrorAccountNotFound)
	}
	if !solana.KeysEqual(payer.Owner, system.SystemAccount) || payer.Executable {
		return solana.NewTransactionError(solana.TransactionErrorInvalidAccountForFee)
	}
	if payer.Lamports < fee {
		return solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}

	remaining := payer.Lamports - fee
	if remaining != 0 && !rent.IsExempt(remaining, uint64(len(payer.Data))) {
		return solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForFee)
	}

	payer.Lamports = remaining
	e.feePayer = payer.Clone()
	return nil
}

// checkRent rejects transactions that leave a written account funded but
// below its rent exempt minimum.
func (e *execution) checkRent(rent system.Rent) error {
	for i, acct := range e.working {
		if !e.message.IsWritable(i) || !e.modified(i) {
			continue
		}
		if acct.Lamports > 0 && !rent.IsExempt(acct.Lamports, uint64(len(acct.Data))) {
			return solana.NewTransactionError(solana.TransactionErrorInsufficientFundsForRent)
		}
	}
	return nil
}

func (e *execution) modified(i int) bool {
	pre, post := e.loaded[i], e.working[i]
	return pre.Lamports != post.Lamports ||
		!bytes.Equal(pre.Data, post.Data) ||
		!bytes.Equal(pre.Owner, post.Owner) ||
		pre.Executable != post.Executable
}

func (e *execution) changes(slot uint64) (updates []*account.Record, deletes []string) {
	for i, acct := range e.working {
		if !e.message.IsWritable(i) || !e.modified(i) {
			continue
		}

		if acct.Lamports == 0 {
			if e.existed[i] {
				deletes = append(deletes, base58.Encode(e.keys[i]))
			}
			continue
		}

		updates = append(updates, acct.toRecord(e.keys[i], slot))
	}
	return updates, deletes
}
