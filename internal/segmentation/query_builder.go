package segmentation

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/crm-engine/internal/domain"
	"github.com/ignite/crm-engine/internal/pkg/logger"
	"github.com/ignite/crm-engine/internal/rules"
)

// LeadColumns is the projection of a lead row, in scan order.
const LeadColumns = `l.id, l.organization_id, l.first_name, l.last_name, l.email,
	COALESCE(l.phone,''), COALESCE(l.company,''), COALESCE(l.source,''), l.status, l.score,
	l.value, l.assigned_to_id, l.email_opt_in, l.tags, l.custom_fields, l.created_at, l.updated_at`

type kind int

const (
	kindText kind = iota
	kindNumber
	kindBool
	kindTime
	kindTextArray
	kindJSON
)

// column is a rule field rendered as SQL. present is set for custom-field
// paths: it is true when the path exists in the document, including when
// it holds JSON null.
type column struct {
	expr    string
	kind    kind
	present string
}

// leadColumns maps rule field names onto lead columns. Fields outside this
// list (and outside customFields.*) never match. Expressions yield the same
// values as domain.Lead.Record: optional text that is empty reads as NULL,
// required text keeps ''.
var leadColumns = map[string]column{
	"id":           {expr: "l.id", kind: kindText},
	"firstName":    {expr: "l.first_name", kind: kindText},
	"lastName":     {expr: "l.last_name", kind: kindText},
	"email":        {expr: "l.email", kind: kindText},
	"phone":        {expr: "NULLIF(l.phone, '')", kind: kindText},
	"company":      {expr: "NULLIF(l.company, '')", kind: kindText},
	"source":       {expr: "NULLIF(l.source, '')", kind: kindText},
	"status":       {expr: "l.status", kind: kindText},
	"assignedToId": {expr: "l.assigned_to_id", kind: kindText},
	"score":        {expr: "l.score", kind: kindNumber},
	"value":        {expr: "l.value", kind: kindNumber},
	"emailOptIn":   {expr: "l.email_opt_in", kind: kindBool},
	"tags":         {expr: "l.tags", kind: kindTextArray},
	"createdAt":    {expr: "l.created_at", kind: kindTime},
	"updatedAt":    {expr: "l.updated_at", kind: kindTime},
}

// acceptsMissing lists the operators that can match a custom-field path
// absent from the document. Every other operator requires the path.
var acceptsMissing = map[string]bool{
	rules.OpExists:    true,
	rules.OpNotExists: true,
	rules.OpIsNull:    true,
}

const customFieldsPrefix = "customFields."

// sqlOp renders one operator for a column.
type sqlOp func(qb *QueryBuilder, c column, value any) (string, error)

var sqlOperators map[string]sqlOp

func init() {
	sqlOperators = map[string]sqlOp{
		rules.OpEquals:             sqlEquals,
		rules.OpNotEquals:          sqlNotEquals,
		rules.OpContains:           sqlContains,
		rules.OpNotContains:        sqlNotContains,
		rules.OpStartsWith:         sqlLike(func(s string) string { return s + "%" }),
		rules.OpEndsWith:           sqlLike(func(s string) string { return "%" + s }),
		rules.OpGreaterThan:        sqlCompare(">"),
		rules.OpLessThan:           sqlCompare("<"),
		rules.OpGreaterThanOrEqual: sqlCompare(">="),
		rules.OpLessThanOrEqual:    sqlCompare("<="),
		rules.OpIn:                 sqlIn,
		rules.OpNotIn:              sqlNotIn,
		rules.OpBetween:            sqlBetween,
		rules.OpDaysAgo:            sqlDaysAgo,
		rules.OpIsNull:             sqlIsNull,
		rules.OpExists:             func(qb *QueryBuilder, c column, _ any) (string, error) { return sqlIsNull(qb, c, false) },
		rules.OpNotExists:          func(qb *QueryBuilder, c column, _ any) (string, error) { return sqlIsNull(qb, c, true) },
	}
}

// QueryBuilder turns a Filter into parameterized SQL over the leads table.
// A builder is single-use per query.
type QueryBuilder struct {
	args       []any
	argCounter int
	now        time.Time
}

// NewQueryBuilder creates a new QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{argCounter: 1}
}

func (qb *QueryBuilder) reset(now time.Time) {
	qb.args = nil
	qb.argCounter = 1
	qb.now = now
	if qb.now.IsZero() {
		qb.now = time.Now()
	}
}

// nextArg returns the next argument placeholder.
func (qb *QueryBuilder) nextArg(value any) string {
	qb.args = append(qb.args, value)
	placeholder := fmt.Sprintf("$%d", qb.argCounter)
	qb.argCounter++
	return placeholder
}

// BuildSelect builds the page query: newest leads first, id as tiebreaker
// so consecutive pages never overlap.
func (qb *QueryBuilder) BuildSelect(f Filter, limit, offset int) (string, []any) {
	qb.reset(f.Now)
	where := qb.where(f)
	query := "SELECT " + LeadColumns + "\nFROM leads l\nWHERE " + where +
		"\nORDER BY l.created_at DESC, l.id DESC" +
		"\nLIMIT " + qb.nextArg(limit) + " OFFSET " + qb.nextArg(offset)
	return query, qb.args
}

// BuildCount builds the matching COUNT(*) query.
func (qb *QueryBuilder) BuildCount(f Filter) (string, []any) {
	qb.reset(f.Now)
	where := qb.where(f)
	return "SELECT COUNT(*) FROM leads l WHERE " + where, qb.args
}

func (qb *QueryBuilder) where(f Filter) string {
	org := "l.organization_id = " + qb.nextArg(f.OrganizationID)
	return org + " AND (" + qb.group(f.Rules, f.Match) + ")"
}

func (qb *QueryBuilder) group(rs []domain.Rule, mode domain.MatchMode) string {
	var joiner string
	switch mode {
	case domain.MatchAll:
		if len(rs) == 0 {
			return "TRUE"
		}
		joiner = " AND "
	case domain.MatchAny:
		if len(rs) == 0 {
			return "FALSE"
		}
		joiner = " OR "
	default:
		logger.Warn("segment query: unknown match mode", "component", "segmentation", "mode", string(mode))
		return "FALSE"
	}

	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, "("+qb.condition(r)+")")
	}
	return strings.Join(parts, joiner)
}

// rollback drops placeholders added after mark; Postgres rejects parameters
// the statement never references.
func (qb *QueryBuilder) rollback(mark int) {
	qb.args = qb.args[:mark]
	qb.argCounter = mark + 1
}

// condition renders one rule. Anything that cannot be rendered is logged
// and becomes FALSE.
func (qb *QueryBuilder) condition(r domain.Rule) string {
	name := rules.Canonical(r.Operator)
	op, ok := sqlOperators[name]
	if !ok {
		logger.Warn("segment query: unknown operator", "component", "segmentation",
			"operator", r.Operator, "field", r.Field)
		return "FALSE"
	}
	mark := len(qb.args)
	col, ok := qb.column(r.Field)
	if !ok {
		logger.Warn("segment query: unknown field", "component", "segmentation",
			"operator", r.Operator, "field", r.Field)
		return "FALSE"
	}

	sql, err := op(qb, col, r.Value)
	if err != nil {
		qb.rollback(mark)
		logger.Warn("segment query: rule skipped", "component", "segmentation",
			"operator", r.Operator, "field", r.Field, "error", err)
		return "FALSE"
	}

	guarded := col.present != "" && !acceptsMissing[name]
	switch {
	case sql == "FALSE":
		qb.rollback(mark)
		return sql
	case sql == "TRUE" && guarded:
		return col.present
	case sql == "TRUE":
		qb.rollback(mark)
		return sql
	case guarded:
		return col.present + " AND " + sql
	}
	return sql
}

func (qb *QueryBuilder) column(field string) (column, bool) {
	if c, ok := leadColumns[field]; ok {
		return c, true
	}
	if path, ok := strings.CutPrefix(field, customFieldsPrefix); ok && path != "" {
		keys := strings.Split(path, ".")
		for _, k := range keys {
			if k == "" {
				return column{}, false
			}
		}
		path := qb.nextArg(pq.Array(keys))
		return column{
			expr:    "(l.custom_fields #>> " + path + ")",
			kind:    kindJSON,
			present: "(l.custom_fields #> " + path + ") IS NOT NULL",
		}, true
	}
	return column{}, false
}

var numericText = `'^\s*-?[0-9]+(\.[0-9]+)?\s*$'`
var timestampText = `'^\d{4}-\d{2}-\d{2}'`

// numeric returns an expression usable in numeric comparisons.
func (c column) numeric() (string, bool) {
	switch c.kind {
	case kindNumber:
		return c.expr, true
	case kindJSON:
		return fmt.Sprintf("(CASE WHEN %s ~ %s THEN %s::numeric END)", c.expr, numericText, c.expr), true
	}
	return "", false
}

// timestamp returns an expression usable in time comparisons.
func (c column) timestamp() (string, bool) {
	switch c.kind {
	case kindTime:
		return c.expr, true
	case kindJSON:
		return fmt.Sprintf("(CASE WHEN %s ~ %s THEN %s::timestamptz END)", c.expr, timestampText, c.expr), true
	}
	return "", false
}

func (c column) textual() bool {
	return c.kind == kindText || c.kind == kindJSON
}

// scalar converts a rule value into a parameter suited to the column.
func scalar(c column, value any) (any, error) {
	switch c.kind {
	case kindText, kindJSON:
		if _, isList := rules.List(value); isList {
			return nil, fmt.Errorf("expected a scalar, got %T", value)
		}
		if _, isMap := value.(map[string]any); isMap {
			return nil, fmt.Errorf("expected a scalar, got %T", value)
		}
		return rules.Text(value), nil
	case kindNumber:
		n, ok := rules.Number(value)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", value)
		}
		return n, nil
	case kindBool:
		switch b := value.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected a boolean, got %v", value)
	case kindTime:
		t, ok := rules.Time(value)
		if !ok {
			return nil, fmt.Errorf("expected a timestamp, got %v", value)
		}
		return t, nil
	}
	return nil, fmt.Errorf("operator not supported on this field")
}

func nullCheck(c column, null bool) string {
	if null {
		return c.expr + " IS NULL"
	}
	return c.expr + " IS NOT NULL"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sqlEquals(qb *QueryBuilder, c column, value any) (string, error) {
	if value == nil {
		return nullCheck(c, true), nil
	}
	v, err := scalar(c, value)
	if err != nil {
		return "", err
	}
	if c.kind == kindJSON {
		switch value.(type) {
		case float64, int, int64:
			n, _ := rules.Number(value)
			expr, _ := c.numeric()
			return expr + " = " + qb.nextArg(n), nil
		}
	}
	return c.expr + " = " + qb.nextArg(v), nil
}

func sqlNotEquals(qb *QueryBuilder, c column, value any) (string, error) {
	if value == nil {
		return nullCheck(c, false), nil
	}
	v, err := scalar(c, value)
	if err != nil {
		return "", err
	}
	return c.expr + " IS DISTINCT FROM " + qb.nextArg(v), nil
}

func tagMatch(qb *QueryBuilder, c column, value any) string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(%s) AS t(tag) WHERE lower(t.tag) = lower(%s))",
		c.expr, qb.nextArg(rules.Text(value)))
}

func sqlContains(qb *QueryBuilder, c column, value any) (string, error) {
	switch {
	case c.textual():
		return c.expr + " ILIKE " + qb.nextArg("%"+escapeLike(rules.Text(value))+"%"), nil
	case c.kind == kindTextArray:
		return tagMatch(qb, c, value), nil
	}
	return "FALSE", nil
}

func sqlNotContains(qb *QueryBuilder, c column, value any) (string, error) {
	switch {
	case c.textual():
		return fmt.Sprintf("(%s IS NULL OR %s NOT ILIKE %s)", c.expr, c.expr,
			qb.nextArg("%"+escapeLike(rules.Text(value))+"%")), nil
	case c.kind == kindTextArray:
		return "NOT " + tagMatch(qb, c, value), nil
	}
	return "TRUE", nil
}

func sqlLike(pattern func(string) string) sqlOp {
	return func(qb *QueryBuilder, c column, value any) (string, error) {
		if !c.textual() {
			return "FALSE", nil
		}
		return c.expr + " ILIKE " + qb.nextArg(pattern(escapeLike(rules.Text(value)))), nil
	}
}

func sqlCompare(op string) sqlOp {
	return func(qb *QueryBuilder, c column, value any) (string, error) {
		if expr, ok := c.numeric(); ok {
			if n, isNum := rules.Number(value); isNum {
				return expr + " " + op + " " + qb.nextArg(n), nil
			}
		}
		if expr, ok := c.timestamp(); ok {
			if t, isTime := rules.Time(value); isTime {
				return expr + " " + op + " " + qb.nextArg(t), nil
			}
		}
		return "", fmt.Errorf("%s needs a numeric or date field and value", op)
	}
}

func listOf(value any) []any {
	if list, ok := rules.List(value); ok {
		return list
	}
	return []any{value}
}

func (qb *QueryBuilder) anyOf(c column, value any) (string, bool, error) {
	list := listOf(value)
	switch c.kind {
	case kindText, kindJSON:
		vals := make([]string, 0, len(list))
		for _, v := range list {
			if v != nil {
				vals = append(vals, rules.Text(v))
			}
		}
		if len(vals) == 0 {
			return "", false, nil
		}
		return c.expr + " = ANY(" + qb.nextArg(pq.Array(vals)) + ")", true, nil
	case kindNumber:
		vals := make([]float64, 0, len(list))
		for _, v := range list {
			if n, ok := rules.Number(v); ok {
				vals = append(vals, n)
			}
		}
		if len(vals) == 0 {
			return "", false, nil
		}
		return c.expr + " = ANY(" + qb.nextArg(pq.Array(vals)) + ")", true, nil
	}
	return "", false, fmt.Errorf("in/notIn not supported on this field")
}

func sqlIn(qb *QueryBuilder, c column, value any) (string, error) {
	expr, ok, err := qb.anyOf(c, value)
	if err != nil {
		return "", err
	}
	if !ok {
		return "FALSE", nil
	}
	return expr, nil
}

func sqlNotIn(qb *QueryBuilder, c column, value any) (string, error) {
	expr, ok, err := qb.anyOf(c, value)
	if err != nil {
		return "", err
	}
	if !ok {
		return c.expr + " IS NOT NULL", nil
	}
	return fmt.Sprintf("(%s IS NOT NULL AND NOT %s)", c.expr, expr), nil
}

func sqlBetween(qb *QueryBuilder, c column, value any) (string, error) {
	expr, ok := c.numeric()
	if !ok {
		return "", fmt.Errorf("between needs a numeric field")
	}
	lo, hi, ok := rules.Bounds(value)
	if !ok {
		return "", fmt.Errorf("between needs {min, max}, got %v", value)
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", expr, qb.nextArg(lo), qb.nextArg(hi)), nil
}

// sqlDaysAgo matches timestamps at or before now minus N days. The cutoff is
// a parameter computed from the filter's clock, not NOW(), so results are a
// function of the evaluation time.
func sqlDaysAgo(qb *QueryBuilder, c column, value any) (string, error) {
	expr, ok := c.timestamp()
	if !ok {
		return "", fmt.Errorf("daysAgo needs a date field")
	}
	cutoff, ok := rules.DaysAgoCutoff(qb.now, value)
	if !ok {
		return "", fmt.Errorf("daysAgo needs a number of days, got %v", value)
	}
	return expr + " <= " + qb.nextArg(cutoff), nil
}

func sqlIsNull(_ *QueryBuilder, c column, value any) (string, error) {
	return nullCheck(c, rules.Truthy(value)), nil
}
