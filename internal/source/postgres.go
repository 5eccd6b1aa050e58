package source

import (
	"context"
	"fmt"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

type PostgresSource struct {
	pool    *pgxpool.Pool
	q       queries
	walHint bool
	// last rows read per table and the WAL position they were read at
	cache *xsync.MapOf[string, walRead]
}

type walRead struct {
	lsn  pglogrepl.LSN
	rows rowset.Snapshot
}

func NewPostgresSource(ctx context.Context, cfg configs.SourceConfig) (*PostgresSource, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("CONN ERR: invalid connection config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("CONN ERR: failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("CONN ERR: failed to connect: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Bool("wal_hint", cfg.WALHint).Msg("Connected to postgres")
	return &PostgresSource{
		pool:    pool,
		q:       newQueries("postgres"),
		walHint: cfg.WALHint,
		cache:   xsync.NewMapOf[string, walRead](),
	}, nil
}

func buildConnString(cfg configs.SourceConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
}

// FetchAll reads every row of table. With the WAL hint enabled a table is
// only re-read once the server's WAL position has moved.
func (p *PostgresSource) FetchAll(ctx context.Context, table string) (rowset.Snapshot, error) {
	if !p.walHint {
		return p.readTable(ctx, table)
	}

	lsn, err := p.currentLSN(ctx)
	if err != nil {
		return nil, err
	}
	if prev, ok := p.cache.Load(table); ok && prev.lsn == lsn {
		return prev.rows.Clone(), nil
	}

	rows, err := p.readTable(ctx, table)
	if err != nil {
		return nil, err
	}
	p.cache.Store(table, walRead{lsn: lsn, rows: rows.Clone()})
	return rows, nil
}

func (p *PostgresSource) currentLSN(ctx context.Context) (pglogrepl.LSN, error) {
	var s string
	if err := p.pool.QueryRow(ctx, "SELECT pg_current_wal_lsn()::text").Scan(&s); err != nil {
		return 0, fmt.Errorf("LSN ERR: %w", err)
	}
	lsn, err := pglogrepl.ParseLSN(s)
	if err != nil {
		return 0, fmt.Errorf("LSN ERR: %w", err)
	}
	return lsn, nil
}

func (p *PostgresSource) readTable(ctx context.Context, table string) (rowset.Snapshot, error) {
	query, args, err := p.q.selectAll(table)
	if err != nil {
		return nil, err
	}
	return p.query(ctx, query, args...)
}

func (p *PostgresSource) query(ctx context.Context, query string, args ...any) (rowset.Snapshot, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	snap, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (rowset.Row, error) {
		return pgx.RowToMap(r)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (p *PostgresSource) exec(ctx context.Context, query string, args []any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *PostgresSource) Insert(ctx context.Context, table string, row rowset.Row) error {
	query, args, err := p.q.insert(table, row)
	_, err = p.exec(ctx, query, args, err)
	return err
}

func (p *PostgresSource) Get(ctx context.Context, table, idColumn string, id any) (rowset.Snapshot, error) {
	query, args, err := p.q.selectBy(table, idColumn, id)
	if err != nil {
		return nil, err
	}
	return p.query(ctx, query, args...)
}

func (p *PostgresSource) Update(ctx context.Context, table string, values rowset.Row, idColumn string, id any) (bool, error) {
	query, args, err := p.q.update(table, values, idColumn, id)
	n, err := p.exec(ctx, query, args, err)
	return n > 0, err
}

func (p *PostgresSource) Delete(ctx context.Context, table, idColumn string, id any) (bool, error) {
	query, args, err := p.q.delete(table, idColumn, id)
	n, err := p.exec(ctx, query, args, err)
	return n > 0, err
}

func (p *PostgresSource) Close() error {
	p.pool.Close()
	return nil
}
