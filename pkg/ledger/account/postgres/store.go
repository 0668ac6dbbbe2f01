package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
	"github.com/kbruccoleri/solana-bpf-program/pkg/metrics"
)

const metricsStructName = "account.postgres.store"

type store struct {
	db *sqlx.DB
}

// New returns a new postgres backed account.Store
func New(db *sql.DB) account.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Get implements account.Store.Get
func (s *store) Get(ctx context.Context, address string) (*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Get")
	defer tracer.End()

	obj, err := dbGet(ctx, s.db, address)
	if err != nil {
		if err != account.ErrAccountNotFound {
			tracer.OnError(err)
		}
		return nil, err
	}

	return fromModel(obj), nil
}

// GetAllByOwner implements account.Store.GetAllByOwner
func (s *store) GetAllByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetAllByOwner")
	defer tracer.End()

	models, err := dbGetAllByOwner(ctx, s.db, owner, cursor, limit, direction)
	if err != nil {
		if err != account.ErrAccountNotFound {
			tracer.OnError(err)
		}
		return nil, err
	}

	records := make([]*account.Record, len(models))
	for i, model := range models {
		records[i] = fromModel(model)
	}
	return records, nil
}

// Commit implements account.Store.Commit
func (s *store) Commit(ctx context.Context, updates []*account.Record, deletes []string) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Commit")
	tracer.AddAttribute("updates", len(updates))
	tracer.AddAttribute("deletes", len(deletes))
	defer tracer.End()

	models := make([]*model, len(updates))
	for i, update := range updates {
		m, err := toModel(update)
		if err != nil {
			return err
		}
		models[i] = m
	}

	if err := dbCommit(ctx, s.db, models, deletes); err != nil {
		tracer.OnError(err)
		return err
	}

	for i, m := range models {
		fromModel(m).CopyTo(updates[i])
	}
	return nil
}

// Count implements account.Store.Count
func (s *store) Count(ctx context.Context) (uint64, error) {
	return dbGetCount(ctx, s.db)
}
