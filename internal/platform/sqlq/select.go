package sqlq

import (
	"fmt"
	"strings"
)

// Select is a single-table-expression SELECT with an optional grouping and
// a paginated data form plus an unpaginated count form over the same WHERE.
type Select struct {
	Columns string
	From    string
	Where   Pred
	GroupBy string
	OrderBy string
}

func (s Select) where() (string, []interface{}) {
	if s.Where == nil {
		return "", nil
	}
	clause, args := Render(s.Where)
	return " WHERE " + clause, args
}

// DataSQL renders the row query. A negative limit omits LIMIT entirely so
// every matching row is returned; offset still applies.
func (s Select) DataSQL(limit, offset int) (string, []interface{}) {
	where, args := s.where()
	var sb strings.Builder
	sb.WriteString("SELECT " + s.Columns + " FROM " + s.From + where)
	if s.GroupBy != "" {
		sb.WriteString(" GROUP BY " + s.GroupBy)
	}
	if s.OrderBy != "" {
		sb.WriteString(" ORDER BY " + s.OrderBy)
	}
	if limit >= 0 {
		args = append(args, limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if offset > 0 {
		args = append(args, offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}
	return sb.String(), args
}

// CountSQL renders COUNT(DISTINCT key) over the same FROM and WHERE,
// ignoring grouping, ordering and pagination.
func (s Select) CountSQL(key string) (string, []interface{}) {
	where, args := s.where()
	return "SELECT COUNT(DISTINCT " + key + ") FROM " + s.From + where, args
}
