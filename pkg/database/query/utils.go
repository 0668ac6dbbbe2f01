package query

import "strconv"

const (
	DefaultPagingLimit = 1000
)

// PaginateQuery appends cursor, ordering and limit clauses to a query over a
// table with a serial id column.
//
// The input must end in a bracketed WHERE clause:
//
//	"SELECT * FROM accounts WHERE (owner = $1)"
//
// and the output continues the argument numbering:
//
//	"SELECT * FROM accounts WHERE (owner = $1) AND id > $2 ORDER BY id ASC LIMIT $3"
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	if len(cursor) > 0 {
		v := strconv.Itoa(len(args) + 1)

		if direction == Ascending {
			query += " AND id > $" + v
		} else {
			query += " AND id < $" + v
		}

		args = append(args, cursor.ToUint64())
	}

	if direction == Ascending {
		query += " ORDER BY id ASC"
	} else {
		query += " ORDER BY id DESC"
	}

	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}

	return query, args
}

// DefaultPaginationHandler applies opts over an ascending listing capped at
// maxLimit records.
func DefaultPaginationHandler(maxLimit uint64, opts ...Option) (*QueryOptions, error) {
	req := QueryOptions{
		Limit:     maxLimit,
		SortBy:    Ascending,
		Supported: CanLimitResults | CanSortBy | CanQueryByCursor,
	}
	if err := req.Apply(opts...); err != nil {
		return nil, err
	}

	if req.Limit == 0 || req.Limit > maxLimit {
		return nil, ErrQueryNotSupported
	}

	return &req, nil
}
