// Package localnet runs the token and escrow programs on an in-process bank.
package localnet

import (
	"context"
	"crypto/ed25519"
	"database/sql"

	"github.com/mr-tron/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account/memory"
	"github.com/kbruccoleri/solana-bpf-program/pkg/metrics"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/escrow"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/runtime"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana/token"

	pg "github.com/kbruccoleri/solana-bpf-program/pkg/database/postgres"
	account_postgres "github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account/postgres"
)

// Network is a bank with the token and escrow programs deployed.
type Network struct {
	*runtime.Bank

	log    *logrus.Entry
	store  account.Store
	faucet *faucet

	db    *sql.DB
	nrApp *newrelic.Application
}

type options struct {
	runtimeConfig *runtime.Config
	programs      map[string]runtime.Entrypoint
	escrowProgram ed25519.PublicKey
	faucet        FaucetConfig
}

type Option func(*options)

// WithRuntimeConfig overrides the default bank configuration.
func WithRuntimeConfig(config *runtime.Config) Option {
	return func(o *options) {
		o.runtimeConfig = config
	}
}

// WithProgram deploys an additional program.
func WithProgram(programID ed25519.PublicKey, entrypoint runtime.Entrypoint) Option {
	return func(o *options) {
		o.programs[string(programID)] = entrypoint
	}
}

// WithEscrowProgram deploys the escrow program at programID instead of
// escrow.ProgramKey.
func WithEscrowProgram(programID ed25519.PublicKey) Option {
	return func(o *options) {
		o.escrowProgram = programID
	}
}

// New starts a network over store.
func New(ctx context.Context, store account.Store, opts ...Option) (*Network, error) {
	o := &options{
		programs:      make(map[string]runtime.Entrypoint),
		escrowProgram: escrow.ProgramKey,
		faucet:        defaultConfig.Faucet,
	}
	for _, opt := range opts {
		opt(o)
	}

	bank, err := runtime.New(ctx, store, o.runtimeConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bank")
	}

	n := &Network{
		Bank:   bank,
		log:    logrus.StandardLogger().WithField("type", "solana/localnet"),
		store:  store,
		faucet: newFaucet(o.faucet),
	}

	programs := map[string]runtime.Entrypoint{
		string(token.ProgramKey): token.Process,
		string(o.escrowProgram):  escrow.Process,
	}
	for programID, entrypoint := range o.programs {
		programs[programID] = entrypoint
	}

	for programID, entrypoint := range programs {
		if err := bank.RegisterProgram(ctx, ed25519.PublicKey(programID), entrypoint); err != nil {
			bank.Close()
			return nil, errors.Wrapf(err, "failed to deploy program %s", base58.Encode([]byte(programID)))
		}
	}

	n.log.WithField("programs", len(programs)).Info("local network started")
	return n, nil
}

// Open starts a network with the store, bank settings and metrics described by
// config. Options override config. The returned context carries the metrics
// application, if one is configured.
func Open(ctx context.Context, config *Config, opts ...Option) (*Network, context.Context, error) {
	if err := config.Validate(); err != nil {
		return nil, ctx, err
	}

	var nrApp *newrelic.Application
	if config.NewRelic.Enabled {
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(config.NewRelic.AppName),
			newrelic.ConfigLicense(config.NewRelic.LicenseKey),
		)
		if err != nil {
			return nil, ctx, errors.Wrap(err, "error connecting to new relic")
		}
		nrApp = app
		ctx = metrics.NewContext(ctx, app)
	}

	var store account.Store
	var db *sql.DB
	switch config.Store {
	case StorePostgres:
		var err error
		db, err = pg.Open(&config.Postgres)
		if err != nil {
			if nrApp != nil {
				nrApp.Shutdown(0)
			}
			return nil, ctx, err
		}
		store = account_postgres.New(db)
	default:
		store = memory.New()
	}

	runtimeConfig := config.Runtime
	opts = append([]Option{WithRuntimeConfig(&runtimeConfig), WithFaucet(config.Faucet)}, opts...)
	n, err := New(ctx, store, opts...)
	if err != nil {
		if db != nil {
			db.Close()
		}
		if nrApp != nil {
			nrApp.Shutdown(0)
		}
		return nil, ctx, err
	}

	n.db = db
	n.nrApp = nrApp
	return n, ctx, nil
}

// Close stops the bank and releases the store's resources.
func (n *Network) Close() {
	n.Bank.Close()

	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.log.WithError(err).Warn("failed to close database")
		}
	}
	if n.nrApp != nil {
		n.nrApp.Shutdown(0)
	}
}

// EscrowEntry is an initialized escrow found on the network.
type EscrowEntry struct {
	Address ed25519.PublicKey
	Account *escrow.EscrowAccount
}

// GetEscrowAccounts returns a page of initialized escrows owned by the escrow
// program at programID, and the cursor of the next page. Accounts that are
// not initialized escrows are skipped, so a page may hold fewer than limit
// entries. The cursor is nil once there are no more accounts, including on a
// final page shorter than limit. A zero limit returns every account.
func (n *Network) GetEscrowAccounts(ctx context.Context, programID ed25519.PublicKey, cursor query.Cursor, limit uint64) ([]*EscrowEntry, query.Cursor, error) {
	records, err := n.store.GetAllByOwner(ctx, base58.Encode(programID), cursor, limit, query.Ascending)
	if err == account.ErrAccountNotFound || (err == nil && len(records) == 0) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get program accounts")
	}

	entries := make([]*EscrowEntry, 0, len(records))
	for _, record := range records {
		var escrowAccount escrow.EscrowAccount
		if err := escrowAccount.Unmarshal(record.Data); err != nil || !escrowAccount.IsInitialized {
			continue
		}

		address, err := base58.Decode(record.Address)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid stored address %s", record.Address)
		}

		entries = append(entries, &EscrowEntry{
			Address: address,
			Account: &escrowAccount,
		})
	}

	// A short or unbounded page means the owner's accounts are exhausted.
	if limit == 0 || uint64(len(records)) < limit {
		return entries, nil, nil
	}
	return entries, query.ToCursor(records[len(records)-1].Id), nil
}
