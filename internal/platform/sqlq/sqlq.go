// Package sqlq composes PostgreSQL WHERE clauses from typed predicates.
// Column names come from code; every value travels as a numbered
// placeholder argument.
package sqlq

import (
	"fmt"
	"strings"
)

// Pred is one boolean SQL expression.
type Pred interface {
	render(w *writer)
}

type writer struct {
	sb   strings.Builder
	args []interface{}
}

func (w *writer) bind(v interface{}) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

type cmp struct {
	col string
	op  string
	val interface{}
}

func (p cmp) render(w *writer) {
	w.sb.WriteString(p.col + " " + p.op + " " + w.bind(p.val))
}

// Eq renders col = $n.
func Eq(col string, v interface{}) Pred { return cmp{col, "=", v} }

// ILike renders col ILIKE $n with the pattern passed through untouched.
func ILike(col, pattern string) Pred { return cmp{col, "ILIKE", pattern} }

// Contains is a case-insensitive substring match on col. LIKE wildcards in
// s are escaped so they match literally.
func Contains(col, s string) Pred {
	return cmp{col, "ILIKE", "%" + EscapeLike(s) + "%"}
}

// EscapeLike escapes the LIKE metacharacters with the default backslash
// escape.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type nullCheck struct {
	col string
	not bool
}

func (p nullCheck) render(w *writer) {
	if p.not {
		w.sb.WriteString(p.col + " IS NOT NULL")
		return
	}
	w.sb.WriteString(p.col + " IS NULL")
}

func IsNull(col string) Pred  { return nullCheck{col: col} }
func NotNull(col string) Pred { return nullCheck{col: col, not: true} }

type anyOf struct {
	col  string
	vals interface{}
}

func (p anyOf) render(w *writer) {
	w.sb.WriteString(p.col + " = ANY(" + w.bind(p.vals) + ")")
}

// In renders col = ANY($n). vals must be a slice pgx can encode as an array.
func In(col string, vals interface{}) Pred { return anyOf{col, vals} }

type expr struct {
	sql  string
	args []interface{}
}

func (p expr) render(w *writer) {
	parts := strings.Split(p.sql, "?")
	for i, part := range parts {
		w.sb.WriteString(part)
		if i < len(parts)-1 {
			w.sb.WriteString(w.bind(p.args[i]))
		}
	}
}

// Expr is an escape hatch for fragments such as EXISTS subqueries. Each ?
// in sql is replaced by the next placeholder, so the number of ? must match
// len(args).
func Expr(sql string, args ...interface{}) Pred {
	if n := strings.Count(sql, "?"); n != len(args) {
		panic(fmt.Sprintf("sqlq: %d placeholders but %d args in %q", n, len(args), sql))
	}
	return expr{sql, args}
}

type group struct {
	op    string
	preds []Pred
}

func (g group) render(w *writer) {
	if len(g.preds) == 1 {
		g.preds[0].render(w)
		return
	}
	w.sb.WriteString("(")
	for i, p := range g.preds {
		if i > 0 {
			w.sb.WriteString(" " + g.op + " ")
		}
		p.render(w)
	}
	w.sb.WriteString(")")
}

type constant bool

func (c constant) render(w *writer) {
	if c {
		w.sb.WriteString("TRUE")
	} else {
		w.sb.WriteString("FALSE")
	}
}

func compact(preds []Pred) []Pred {
	out := preds[:0:0]
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// And joins preds; nil entries are dropped and an empty And is TRUE.
func And(preds ...Pred) Pred {
	preds = compact(preds)
	if len(preds) == 0 {
		return constant(true)
	}
	return group{"AND", preds}
}

// Or joins preds; nil entries are dropped and an empty Or is FALSE.
func Or(preds ...Pred) Pred {
	preds = compact(preds)
	if len(preds) == 0 {
		return constant(false)
	}
	return group{"OR", preds}
}

// Render returns the SQL text of p and its arguments, numbering
// placeholders from $1.
func Render(p Pred) (string, []interface{}) {
	w := &writer{}
	p.render(w)
	return w.sb.String(), w.args
}
