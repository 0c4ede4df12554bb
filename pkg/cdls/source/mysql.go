package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dbazile/cdls/pkg/cdls/config"
	"github.com/dbazile/cdls/pkg/cdls/config/sourcecfg"
	"github.com/dbazile/cdls/pkg/cdls/connection"
)

// mysqlDateFormat is how date column values are bound into extract queries.
const mysqlDateFormat = "2006-01-02 15:04:05"

// MySQL extracts rows from a single MySQL table, incrementally when a
// previous load recorded a high-water mark for this source.
type MySQL struct {
	base
	db         *sql.DB
	watermark  Watermark
	database   string
	table      string
	dateColumn string
}

// NewMySQL builds a mysql source from its configuration node.
func NewMySQL(node config.Node, deps Deps) (Source, error) {
	b, err := newBase(node, deps)
	if err != nil {
		return nil, err
	}

	var opts sourcecfg.MySQL
	if len(node.Options) > 0 {
		if err := json.Unmarshal(node.Options, &opts); err != nil {
			return nil, &config.SourceConfigurationError{
				Message: fmt.Sprintf("could not decode mysql options: %s", err),
				Node:    &node,
			}
		}
	}
	for _, p := range []struct{ key, value string }{
		{"host", opts.Host},
		{"user_name", opts.UserName},
		{"db", opts.DB},
		{"table", opts.Table},
		{"date_column", opts.DateColumn},
	} {
		if err := config.RequireParam(node, p.key, p.value); err != nil {
			return nil, err
		}
	}
	if opts.Port == 0 {
		opts.Port = 3306
	}

	db, err := connection.DialMysql(opts.GetDSN(), 1, opts.QueryLogging)
	if err != nil {
		return nil, &config.SourceConfigurationError{
			Message: err.Error(),
			Node:    &node,
		}
	}

	return &MySQL{
		base:       b,
		db:         db,
		watermark:  deps.Watermark,
		database:   opts.DB,
		table:      opts.Table,
		dateColumn: opts.DateColumn,
	}, nil
}

func (s *MySQL) Type() string {
	return "MySQLSource"
}

// Execute extracts every row newer than the last successful load.
func (s *MySQL) Execute(ctx context.Context) (*Report, error) {
	s.startTimer()

	cols, err := s.tableColumns(ctx)
	if err != nil {
		return s.finalize(false), err
	}
	if len(cols) == 0 {
		return s.finalize(false), &ExtractError{
			Message: fmt.Sprintf("table %s.%s has no columns", s.database, s.table),
		}
	}
	hasDateColumn := false
	for _, col := range cols {
		if col == s.dateColumn {
			hasDateColumn = true
			break
		}
	}
	if !hasDateColumn {
		return s.finalize(false), &ExtractError{
			Message: fmt.Sprintf("table %s.%s has no '%s' column", s.database, s.table, s.dateColumn),
		}
	}

	since := time.Time{}
	if s.watermark != nil {
		since, err = s.watermark.LatestRecordDate(s.identifier)
		if err != nil {
			return s.finalize(false), &ExtractError{Message: "could not read high-water mark", Err: err}
		}
	}
	if !since.IsZero() {
		s.log.Info().Msgf("Incremental extract of rows after %s", since.Format(mysqlDateFormat))
	}

	query, args := extractQuery(s.database, s.table, cols, s.dateColumn, since)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return s.finalize(false), &ExtractError{Message: "extract query failed", Err: err}
	}
	defer rows.Close()

	scan := make([]any, len(cols))
	for i := range scan {
		var val sql.RawBytes
		scan[i] = &val
	}

	for rows.Next() {
		s.markProcessed()

		if err := rows.Scan(scan...); err != nil {
			return s.finalize(false), &ExtractError{Message: "row scan failed", Err: err}
		}

		record := make(Record, len(cols))
		for i, col := range cols {
			record[col] = string(*scan[i].(*sql.RawBytes))
		}

		recordDate, err := ParseRecordDate(record[s.dateColumn].(string))
		if err != nil {
			s.log.Warn().Err(err).Msgf("Bad %s value in %s.%s row", s.dateColumn, s.database, s.table)
			continue
		}

		if err := s.save(record, recordDate); err != nil {
			return s.finalize(false), err
		}

		s.markSuccess()
		s.observe(recordDate)
	}
	if err := rows.Err(); err != nil {
		return s.finalize(false), &ExtractError{Message: "extract cursor failed", Err: err}
	}

	return s.finalize(true), nil
}

// tableColumns discovers the table's column names from information_schema.
func (s *MySQL) tableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COLUMN_NAME AS col_name
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`, s.database, s.table)
	if err != nil {
		return nil, &ExtractError{Message: "could not read table schema", Err: err}
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, &ExtractError{Message: "could not read table schema", Err: err}
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// WrapQ backtick-quotes a MySQL identifier.
func WrapQ(identifier string) string {
	return "`" + identifier + "`"
}

// extractQuery builds the row extraction query, bounded below by the
// high-water mark when one exists.
func extractQuery(database, table string, cols []string, dateColumn string, since time.Time) (string, []any) {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = WrapQ(col)
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s WHERE 1=1",
		strings.Join(quoted, ","), WrapQ(database), WrapQ(table))

	var args []any
	if !since.IsZero() {
		query += fmt.Sprintf(" AND %s > ?", WrapQ(dateColumn))
		args = append(args, since.UTC().Format(mysqlDateFormat))
	}
	query += fmt.Sprintf(" ORDER BY %s", WrapQ(dateColumn))
	return query, args
}
