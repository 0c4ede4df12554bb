package connection

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rs/zerolog"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
)

// AddLogger wraps a *sql.DB so every query is logged through zerolog.
func AddLogger(db *sql.DB, dsn string, driverName string) *sql.DB {
	loggerAdapter := zerologadapter.New(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Str("driver", driverName).Logger())
	return sqldblogger.OpenDriver(dsn, db.Driver(), loggerAdapter,
		sqldblogger.WithWrapResult(false),
		sqldblogger.WithDurationFieldname("dur_ms"),
		sqldblogger.WithDurationUnit(sqldblogger.DurationMillisecond),
		sqldblogger.WithSQLQueryAsMessage(true),
		sqldblogger.WithSQLQueryFieldname("sql_query"),
	)
}

// DialMysql opens a pooled MySQL connection for a source extraction.
// The connection is lazy; no round trip happens until the first query.
func DialMysql(dsn string, maxConc int, qlog bool) (*sql.DB, error) {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not dial connection to mysql: %w", err)
	}
	if qlog {
		sqlDB = AddLogger(sqlDB, dsn, "mysql")
	}
	sqlDB.SetMaxOpenConns(maxConc)
	sqlDB.SetMaxIdleConns(maxConc)
	return sqlDB, nil
}
