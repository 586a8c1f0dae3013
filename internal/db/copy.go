// Package db holds PostgreSQL helpers shared by the store and import paths.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-loads rows with the COPY protocol. q may be a pool or a
// transaction.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := q.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	return n, nil
}

// ReplaceTable empties table and loads rows in its place. Run it inside a
// transaction so readers never observe the empty table.
func ReplaceTable(ctx context.Context, tx Querier, table string, columns []string, rows [][]any) (int64, error) {
	if _, err := tx.Exec(ctx, "DELETE FROM "+sanitizeTable(table)); err != nil {
		return 0, eris.Wrapf(err, "db: clear %s", table)
	}
	return CopyFrom(ctx, tx, table, columns, rows)
}
