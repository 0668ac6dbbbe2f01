package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"

	pgutil "github.com/kbruccoleri/solana-bpf-program/pkg/database/postgres"
	q "github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
)

const (
	tableName = "ledger__core_account"

	allColumns = `id, address, owner, lamports, data, executable, slot`
)

type model struct {
	Id         sql.NullInt64 `db:"id"`
	Address    string        `db:"address"`
	Owner      string        `db:"owner"`
	Lamports   int64         `db:"lamports"`
	Data       []byte        `db:"data"`
	Executable bool          `db:"executable"`
	Slot       int64         `db:"slot"`
}

func toModel(obj *account.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Id:         sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:    obj.Address,
		Owner:      obj.Owner,
		Lamports:   int64(obj.Lamports),
		Data:       data,
		Executable: obj.Executable,
		Slot:       int64(obj.Slot),
	}, nil
}

func fromModel(obj *model) *account.Record {
	return &account.Record{
		Id:         uint64(obj.Id.Int64),
		Address:    obj.Address,
		Owner:      obj.Owner,
		Lamports:   uint64(obj.Lamports),
		Data:       obj.Data,
		Executable: obj.Executable,
		Slot:       uint64(obj.Slot),
	}
}

func (m *model) dbUpsert(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(address, owner, lamports, data, executable, slot)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address)
		DO UPDATE
			SET owner = $2, lamports = $3, data = $4, executable = $5, slot = $6
			WHERE ` + tableName + `.address = $1
		RETURNING ` + allColumns

	return tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Owner,
		m.Lamports,
		m.Data,
		m.Executable,
		m.Slot,
	).StructScan(m)
}

func dbDelete(ctx context.Context, tx *sqlx.Tx, address string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE address = $1`, address)
	return err
}

func dbCommit(ctx context.Context, db *sqlx.DB, models []*model, deletes []string) error {
	return pgutil.ExecuteRetryable(ctx, func(ctx context.Context) error {
		return pgutil.ExecuteInTx(ctx, db, sql.LevelSerializable, func(tx *sqlx.Tx) error {
			for _, m := range models {
				if err := m.dbUpsert(ctx, tx); err != nil {
					return err
				}
			}

			for _, address := range deletes {
				if err := dbDelete(ctx, tx, address); err != nil {
					return err
				}
			}

			return nil
		})
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE address = $1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrAccountNotFound)
	}
	return res, nil
}

func dbGetAllByOwner(ctx context.Context, db *sqlx.DB, owner string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + ` WHERE (owner = $1)`

	opts := []interface{}{owner}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrAccountNotFound)
	}

	if len(res) == 0 {
		return nil, account.ErrAccountNotFound
	}

	return res, nil
}

func dbGetCount(ctx context.Context, db *sqlx.DB) (uint64, error) {
	var res uint64

	err := db.GetContext(ctx, &res, `SELECT COUNT(*) FROM `+tableName)
	if err != nil {
		return 0, err
	}

	return res, nil
}
