package backup

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
)

// SQLExporter reads tables through database/sql. It serves SQLite, which
// has no COPY.
type SQLExporter struct {
	db *sql.DB
}

func NewSQLExporter(db *sql.DB) *SQLExporter {
	return &SQLExporter{db: db}
}

func (e *SQLExporter) Export(ctx context.Context, table string, w io.Writer) error {
	if err := checkTable(table); err != nil {
		return err
	}
	rows, err := e.db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns %s: %w", table, err)
	}
	out := csv.NewWriter(w)
	if err := out.Write(cols); err != nil {
		return err
	}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(cols))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		for i, v := range values {
			record[i] = v.String
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	out.Flush()
	return out.Error()
}
