// Package source reads and writes the tables an Engine polls.
package source

import (
	"context"
	"fmt"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// Source is the data access layer behind the poller.
type Source interface {
	FetchAll(ctx context.Context, table string) (rowset.Snapshot, error)
	Writer
	Close() error
}

// Writer changes table contents. Rows are matched on a single id column.
type Writer interface {
	Insert(ctx context.Context, table string, row rowset.Row) error
	Get(ctx context.Context, table, idColumn string, id any) (rowset.Snapshot, error)
	Update(ctx context.Context, table string, values rowset.Row, idColumn string, id any) (bool, error)
	Delete(ctx context.Context, table, idColumn string, id any) (bool, error)
}

// Open connects to the database named by cfg.Driver.
func Open(ctx context.Context, cfg configs.SourceConfig) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Driver {
	case "postgres":
		src, err = NewPostgresSource(ctx, cfg)
	case "mysql":
		src, err = OpenSQL(ctx, "mysql", mysqlDSN(cfg))
	case "sqlite3":
		src, err = OpenSQL(ctx, "sqlite3", cfg.Database)
	default:
		return nil, fmt.Errorf("SOURCE ERR: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
