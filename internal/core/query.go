package core

import (
	"fmt"
	"strings"
)

// Operator is a comparison used by ColumnFilter.
type Operator string

const (
	OpEquals    Operator = "eq"
	OpContains  Operator = "contains"
	OpGreaterEq Operator = "gte"
	OpLessEq    Operator = "lte"
)

// ColumnFilter is one condition on a database column.
type ColumnFilter struct {
	DBColumn string
	Operator Operator
	Value    any
}

// WhereBuilder accumulates AND-ed conditions with positional arguments.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "column = $n". Nil and empty string values are skipped.
func (wb *WhereBuilder) Add(column string, value any) {
	if isEmptyValue(value) {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddFilter appends a single operator condition on a quoted column.
func (wb *WhereBuilder) AddFilter(f ColumnFilter) {
	if isEmptyValue(f.Value) {
		return
	}
	sql, args, next := buildSingleFilter(f, wb.argIndex)
	if sql == "" {
		return
	}
	wb.conditions = append(wb.conditions, sql)
	wb.args = append(wb.args, args...)
	wb.argIndex = next
}

// AddFilters appends every filter in order.
func (wb *WhereBuilder) AddFilters(filters []ColumnFilter) {
	for _, f := range filters {
		wb.AddFilter(f)
	}
}

// NextArgIndex returns the placeholder number the next argument will use.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns " WHERE ..." (leading space) and its args, or "" and nil.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// buildSingleFilter renders one filter starting at argIdx and returns the
// SQL fragment, its args and the next free placeholder index.
func buildSingleFilter(f ColumnFilter, argIdx int) (string, []any, int) {
	col := quoteIdentifier(f.DBColumn)

	switch f.Operator {
	case OpEquals:
		return fmt.Sprintf("%s = $%d", col, argIdx), []any{f.Value}, argIdx + 1
	case OpContains:
		pattern := "%" + escapeLike(fmt.Sprint(f.Value)) + "%"
		return fmt.Sprintf("%s ILIKE $%d", col, argIdx), []any{pattern}, argIdx + 1
	case OpGreaterEq:
		return fmt.Sprintf("%s >= $%d", col, argIdx), []any{f.Value}, argIdx + 1
	case OpLessEq:
		return fmt.Sprintf("%s <= $%d", col, argIdx), []any{f.Value}, argIdx + 1
	default:
		return "", nil, argIdx
	}
}

// SetBuilder accumulates "column = $n" assignments for partial updates.
type SetBuilder struct {
	sets []string
	args []any
}

// Set assigns value to a quoted column.
func (sb *SetBuilder) Set(column string, value any) {
	sb.args = append(sb.args, value)
	sb.sets = append(sb.sets, fmt.Sprintf("%s = $%d", quoteIdentifier(column), len(sb.args)))
}

// SetRaw appends a literal assignment such as "updated_at = NOW()".
func (sb *SetBuilder) SetRaw(expr string) {
	sb.sets = append(sb.sets, expr)
}

// Len returns the number of parameterized assignments.
func (sb *SetBuilder) Len() int {
	return len(sb.args)
}

// Build returns the comma-joined assignments, the args and the next placeholder index.
func (sb *SetBuilder) Build() (string, []any, int) {
	return strings.Join(sb.sets, ", "), sb.args, len(sb.args) + 1
}

// quoteIdentifier double-quotes a Postgres identifier, escaping embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeLike neutralizes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
