package postgres

import (
	"fmt"
	"strings"

	"github.com/Fatimaezzahra2002/EXAMEN-TRADESENSE/internal/domain"
)

// listQuery appends the time range, ordering and pagination of opts to a
// base query whose positional args are already in args.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	q := &listQuery{args: args}
	q.sb.WriteString(base)
	return q
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// where adds "AND <cond>" with one placeholder formatted into cond.
func (q *listQuery) where(cond string, v any) {
	q.sb.WriteString(" AND ")
	q.sb.WriteString(fmt.Sprintf(cond, q.arg(v)))
}

// apply adds the Since/Until filter on timeCol, the ORDER BY clause and
// LIMIT/OFFSET. Until is exclusive.
func (q *listQuery) apply(opts domain.ListOpts, timeCol, orderBy string) (string, []any) {
	if opts.Since != nil {
		q.where(timeCol+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where(timeCol+" < %s", *opts.Until)
	}
	q.sb.WriteString(" ORDER BY ")
	q.sb.WriteString(orderBy)
	if opts.Limit > 0 {
		q.sb.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sb.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
	return q.sb.String(), q.args
}
