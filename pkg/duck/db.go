// Package duck exposes a cleaned dataset as a read-only table in an
// in-memory DuckDB database.
package duck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/malbeclabs/sensorlake/pkg/dataset"
)

// Table is the name of the table holding the cleaned records.
const Table = "lecturas"

const defaultMaxRows = 500

var ErrNotReadOnly = errors.New("only a single SELECT, FROM, WITH, DESCRIBE, SUMMARIZE or SHOW statement is allowed")

type Config struct {
	Logger  *slog.Logger
	Dataset *dataset.Dataset
	// MaxRows caps the rows returned by a single query.
	MaxRows int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Dataset == nil {
		return errors.New("dataset is required")
	}
	if cfg.MaxRows < 0 {
		return errors.New("max rows must not be negative")
	}
	if cfg.MaxRows == 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return nil
}

// DB is a private in-memory database holding one dataset. It is built per
// request and must be closed by its owner.
type DB struct {
	log *slog.Logger
	cfg *Config
	db  *sql.DB
}

func Open(ctx context.Context, cfg *Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d := &DB{log: cfg.Logger, cfg: cfg, db: db}
	if err := d.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) load(ctx context.Context) error {
	create := fmt.Sprintf(`CREATE TABLE %s (
		idx INTEGER NOT NULL,
		%s TIMESTAMP NOT NULL,
		%s DOUBLE NOT NULL,
		%s DOUBLE NOT NULL
	)`, Table, dataset.ColumnFecha, dataset.ColumnTemperatura, dataset.ColumnHumedad)
	if _, err := d.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?)", Table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	records := d.cfg.Dataset.Records()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Index, r.Fecha, r.Temperatura, r.Humedad); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", r.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}

	// Queries come from a model; keep them away from the filesystem and network.
	if _, err := d.db.ExecContext(ctx, "SET enable_external_access = false"); err != nil {
		return fmt.Errorf("failed to disable external access: %w", err)
	}

	d.log.Debug("duck: loaded dataset", "table", Table, "rows", len(records))
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Describe returns the table layout for model prompts.
func (d *DB) Describe() string {
	return fmt.Sprintf("Table %s (%d rows): idx INTEGER, %s TIMESTAMP, %s DOUBLE (degrees Celsius), %s DOUBLE (relative humidity %%). Rows are sorted by %s.",
		Table, d.cfg.Dataset.Len(), dataset.ColumnFecha, dataset.ColumnTemperatura, dataset.ColumnHumedad, dataset.ColumnFecha)
}

type QueryResponse struct {
	Columns   []string   `json:"columns"`
	Rows      []QueryRow `json:"rows"`
	Count     int        `json:"count"`
	Truncated bool       `json:"truncated,omitempty"`
}

type QueryRow map[string]any

// Query runs a single read-only statement. At most MaxRows rows are returned;
// Truncated reports whether more were available.
func (d *DB) Query(ctx context.Context, query string) (QueryResponse, error) {
	query, err := readOnlyStatement(query)
	if err != nil {
		return QueryResponse{}, err
	}

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResponse{}, fmt.Errorf("failed to get columns: %w", err)
	}

	resp := QueryResponse{Columns: columns, Rows: []QueryRow{}}
	for rows.Next() {
		if len(resp.Rows) == d.cfg.MaxRows {
			resp.Truncated = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return QueryResponse{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(QueryRow, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			case time.Time:
				row[col] = v.UTC().Format(dataset.TimeLayout)
			default:
				row[col] = v
			}
		}
		resp.Rows = append(resp.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResponse{}, fmt.Errorf("error iterating rows: %w", err)
	}
	resp.Count = len(resp.Rows)
	return resp, nil
}

var readOnlyKeywords = []string{"select", "with", "describe", "summarize", "show", "from"}

func readOnlyStatement(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", errors.New("query is empty")
	}
	if strings.Contains(q, ";") {
		return "", ErrNotReadOnly
	}
	end := strings.IndexFunc(q, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(q)
	}
	first := strings.ToLower(q[:end])
	for _, kw := range readOnlyKeywords {
		if first == kw {
			return q, nil
		}
	}
	return "", ErrNotReadOnly
}
