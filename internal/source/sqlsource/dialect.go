package sqlsource

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hanpama/gqlplan/internal/expr"
)

type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota
	PlaceholderDollar
)

// Dialect holds the SQL differences between the supported databases.
type Dialect struct {
	Name        string
	Driver      string
	Placeholder PlaceholderStyle

	// Null-safe equality operators.
	Same, Distinct string
	// Unlimited is the LIMIT operand used when only an offset is given.
	Unlimited string
	// Position returns the SQL for the 1-based position of needle in haystack, 0 if absent.
	Position func(haystack, needle string) string
	// Casts maps value kinds to the type placeholders are cast to.
	Casts map[expr.Kind]string
}

var (
	SQLite = &Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		Placeholder: PlaceholderQuestion,
		Same:        "IS",
		Distinct:    "IS NOT",
		Unlimited:   "-1",
		Position:    func(h, n string) string { return "instr(" + h + ", " + n + ")" },
	}
	Postgres = &Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		Placeholder: PlaceholderDollar,
		Same:        "IS NOT DISTINCT FROM",
		Distinct:    "IS DISTINCT FROM",
		Unlimited:   "ALL",
		Position:    func(h, n string) string { return "strpos(" + h + ", " + n + ")" },
		Casts: map[expr.Kind]string{
			expr.KindString:  "text",
			expr.KindInt16:   "smallint",
			expr.KindInt32:   "integer",
			expr.KindInt64:   "bigint",
			expr.KindFloat:   "double precision",
			expr.KindDecimal: "numeric",
			expr.KindBool:    "boolean",
			expr.KindUUID:    "uuid",
		},
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (*Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return nil, fmt.Errorf("unknown sql dialect %q", name)
}

// args collects statement arguments and renders their placeholders. Placeholders
// are numbered in the order they are rendered, so a statement must be written
// left to right.
type args struct {
	d    *Dialect
	vals []any
}

func (a *args) add(v any, t *expr.Type) string {
	a.vals = append(a.vals, v)
	ph := "?"
	if a.d.Placeholder == PlaceholderDollar {
		ph = "$" + strconv.Itoa(len(a.vals))
	}
	if cast, ok := a.d.Casts[t.Kind]; ok {
		ph += "::" + cast
	}
	return ph
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
