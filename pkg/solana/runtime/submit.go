package runtime

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/kbruccoleri/solana-bpf-program/pkg/metrics"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"
	sync_util "github.com/kbruccoleri/solana-bpf-program/pkg/sync"
)

var (
	ErrSubmitQueueFull = errors.New("transaction submission queue is full")
	ErrBankClosed      = errors.New("bank is closed")
)

// submitter processes submitted transactions in the background. Transactions
// from the same fee payer are processed in submission order.
type submitter struct {
	bank  *Bank
	queue *sync_util.StripedChannel[solana.Transaction]

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newSubmitter(bank *Bank, workers, queueSize uint) *submitter {
	s := &submitter{
		bank:  bank,
		queue: sync_util.NewStripedChannel[solana.Transaction](workers, queueSize),
	}

	for _, ch := range s.queue.GetChannels() {
		s.wg.Add(1)
		go s.worker(ch)
	}

	return s
}

func (s *submitter) worker(ch <-chan solana.Transaction) {
	defer s.wg.Done()

	for tx := range ch {
		ctx, end := metrics.StartTransaction(s.bank.ctx, "runtime.submit")
		if err := s.bank.ProcessTransaction(ctx, tx); err != nil {
			s.bank.log.WithError(err).
				WithField("signature", tx.Signatures[0].String()).
				Debug("submitted transaction failed")
		}
		end()
	}
}

func (s *submitter) submit(tx solana.Transaction) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrBankClosed
	}
	if !s.queue.Send(tx.Message.Accounts[0], tx) {
		return ErrSubmitQueueFull
	}
	return nil
}

func (s *submitter) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue.Close()
	s.mu.Unlock()

	s.wg.Wait()
}

// SubmitTransaction queues tx for processing and returns its signature
// without waiting for the outcome, which GetSignatureStatus reports once
// the transaction has been processed.
func (b *Bank) SubmitTransaction(tx solana.Transaction) (solana.Signature, error) {
	if len(tx.Signatures) == 0 || len(tx.Message.Accounts) == 0 {
		return solana.Signature{}, solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)
	}

	if err := b.submitter.submit(tx); err != nil {
		return solana.Signature{}, err
	}
	return tx.Signatures[0], nil
}
