package backup

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
)

// PgxExporter streams tables with COPY TO STDOUT.
type PgxExporter struct {
	conn *pgx.Conn
}

func NewPgxExporter(ctx context.Context, url string) (*PgxExporter, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PgxExporter{conn: conn}, nil
}

func (e *PgxExporter) Export(ctx context.Context, table string, w io.Writer) error {
	if err := checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf("COPY %s TO STDOUT WITH (FORMAT csv, HEADER true)", pgx.Identifier{table}.Sanitize())
	if _, err := e.conn.PgConn().CopyTo(ctx, w, query); err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	return nil
}

func (e *PgxExporter) Close(ctx context.Context) error {
	return e.conn.Close(ctx)
}
