package source

import (
	"errors"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

var errNoColumns = errors.New("row has no columns")

// queries renders the statements a source runs in its database's dialect.
type queries struct {
	d goqu.DialectWrapper
}

func newQueries(dialect string) queries {
	return queries{d: goqu.Dialect(dialect)}
}

func (q queries) selectAll(table string) (string, []any, error) {
	return q.d.From(table).ToSQL()
}

func (q queries) selectBy(table, idColumn string, id any) (string, []any, error) {
	return q.d.From(table).Prepared(true).Where(goqu.C(idColumn).Eq(id)).ToSQL()
}

func (q queries) insert(table string, row rowset.Row) (string, []any, error) {
	if len(row) == 0 {
		return "", nil, errNoColumns
	}
	return q.d.Insert(table).Prepared(true).Rows(goqu.Record(row)).ToSQL()
}

func (q queries) update(table string, values rowset.Row, idColumn string, id any) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, errNoColumns
	}
	return q.d.Update(table).Prepared(true).Set(goqu.Record(values)).Where(goqu.C(idColumn).Eq(id)).ToSQL()
}

func (q queries) delete(table, idColumn string, id any) (string, []any, error) {
	return q.d.Delete(table).Prepared(true).Where(goqu.C(idColumn).Eq(id)).ToSQL()
}
