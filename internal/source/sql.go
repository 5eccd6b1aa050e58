package source

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// SQLSource serves MySQL and SQLite through database/sql.
type SQLSource struct {
	db     *sql.DB
	q      queries
	driver string
}

func OpenSQL(ctx context.Context, driver, dsn string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("CONN ERR: failed to open %s: %w", driver, err)
	}
	// one connection keeps an in-memory sqlite database alive and shared
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("CONN ERR: failed to connect: %w", err)
	}

	log.Info().Str("driver", driver).Msg("Connected to database")
	return NewSQLSource(db, driver), nil
}

// NewSQLSource wraps an open handle. driver selects the query dialect.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	return &SQLSource{db: db, q: newQueries(driver), driver: driver}
}

func mysqlDSN(cfg configs.SourceConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	return mc.FormatDSN()
}

// DB exposes the handle for schema setup.
func (s *SQLSource) DB() *sql.DB {
	return s.db
}

func (s *SQLSource) FetchAll(ctx context.Context, table string) (rowset.Snapshot, error) {
	query, args, err := s.q.selectAll(table)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

func (s *SQLSource) query(ctx context.Context, query string, args ...any) (rowset.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	snap := rowset.Snapshot{}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(rowset.Row, len(cols))
		for i, col := range cols {
			row[col.Name()] = normalize(col.DatabaseTypeName(), values[i])
		}
		snap = append(snap, row)
	}
	return snap, rows.Err()
}

// normalize turns the raw bytes drivers hand back for textual and numeric
// columns into strings and numbers. Binary columns stay []byte.
func normalize(typeName string, v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	t := strings.ToUpper(typeName)
	switch {
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BINARY"), t == "BIT", t == "GEOMETRY":
		return append([]byte(nil), b...)
	case strings.HasSuffix(t, "INT"), t == "INTEGER", t == "YEAR":
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return n
		}
	case t == "FLOAT", t == "DOUBLE", t == "REAL":
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
	}
	return string(b)
}

func (s *SQLSource) exec(ctx context.Context, query string, args []any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLSource) Insert(ctx context.Context, table string, row rowset.Row) error {
	query, args, err := s.q.insert(table, row)
	_, err = s.exec(ctx, query, args, err)
	return err
}

func (s *SQLSource) Get(ctx context.Context, table, idColumn string, id any) (rowset.Snapshot, error) {
	query, args, err := s.q.selectBy(table, idColumn, id)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

func (s *SQLSource) Update(ctx context.Context, table string, values rowset.Row, idColumn string, id any) (bool, error) {
	query, args, err := s.q.update(table, values, idColumn, id)
	n, err := s.exec(ctx, query, args, err)
	return n > 0, err
}

func (s *SQLSource) Delete(ctx context.Context, table, idColumn string, id any) (bool, error) {
	query, args, err := s.q.delete(table, idColumn, id)
	n, err := s.exec(ctx, query, args, err)
	return n > 0, err
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}
