package recordset

import (
	"context"
	"database/sql"
	"strings"

	"dasladen/internal/errors"
)

// Dialect renders identifiers and bind markers for a database backend.
type Dialect interface {
	Placeholder(i int) string
	Quote(ident string) string
	QualifiedTable(schema, table string) string
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ReadQuery runs query and materializes its result set.
func ReadQuery(ctx context.Context, q Querier, query string, args ...any) (*Table, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.IO(errors.Wrap(err, "query source"))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.IO(err)
	}
	t := &Table{Header: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Transform(errors.Wrap(err, "scan source row"))
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Append(vals)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.IO(errors.Wrap(err, "iterate source rows"))
	}
	return t, nil
}

// TableTarget names a destination table.
type TableTarget struct {
	Schema string
	Table  string
}

// WriteTable inserts t into target inside one transaction. Truncate deletes
// the existing rows first. Columns are taken from the header.
func WriteTable(ctx context.Context, db *sql.DB, d Dialect, target TableTarget, t *Table, mode Mode, progress Progress) (int, error) {
	if strings.TrimSpace(target.Table) == "" {
		return 0, errors.Configurationf("target table is required")
	}
	name := d.QualifiedTable(target.Schema, target.Table)

	cols := make([]string, len(t.Header))
	marks := make([]string, len(t.Header))
	for i, h := range t.Header {
		cols[i] = d.Quote(h)
		marks[i] = d.Placeholder(i + 1)
	}
	insert := "INSERT INTO " + name + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.IO(errors.Wrap(err, "begin"))
	}
	defer func() { _ = tx.Rollback() }()

	if mode == Truncate {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
			return 0, errors.IO(errors.Wrapf(err, "truncate %s", target.Table))
		}
	}

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, errors.IO(errors.Wrapf(err, "prepare insert into %s", target.Table))
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row[:len(t.Header)]...); err != nil {
			return i, errors.IO(errors.Wrapf(err, "insert row %d into %s", i+1, target.Table))
		}
		if progress != nil && (i+1)%ProgressEvery == 0 {
			progress(i + 1)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.IO(errors.Wrap(err, "commit"))
	}
	return len(t.Rows), nil
}
