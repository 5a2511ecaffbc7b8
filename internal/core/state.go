package core

// Logical combinators and join kinds emitted by the compiler.
const (
	combAnd = "AND"
	combOr  = "OR"

	joinLeft  = "LEFT"
	joinInner = "INNER"
)

// LockWait selects the blocking behavior of a row-locking clause.
type LockWait string

// Row-locking wait modes.
const (
	LockWaitDefault LockWait = "wait"
	LockNowait      LockWait = "nowait"
	LockSkipLocked  LockWait = "skip"
)

// FulltextMode selects the MATCH ... AGAINST search mode.
type FulltextMode string

// Fulltext search modes.
const (
	FulltextNatural   FulltextMode = "natural"
	FulltextBoolean   FulltextMode = "boolean"
	FulltextExpansion FulltextMode = "expansion"
)

type lockMode int

const (
	lockNone lockMode = iota
	lockUpdate
	lockShare
)

// columnSpec is one selected column: a plain name, an expression (anything
// containing parentheses, emitted verbatim), or a name with an alias.
type columnSpec struct {
	expr  string
	alias string
}

// joinClause is one JOIN fragment, emitted in declaration order.
type joinClause struct {
	table     string
	condition string
	kind      string // joinLeft or joinInner
}

// predicate is one WHERE fragment together with the combinator that
// precedes it. The first predicate is emitted bare; every subsequent one is
// prefixed by its own combinator, so mixed AND/OR chains are order-sensitive.
type predicate struct {
	text       string
	combinator string
}

// orderSpec is one ORDER BY entry. Re-adding a column overwrites its
// direction but keeps its original position.
type orderSpec struct {
	column    string
	direction string
}

// clauseState accumulates every clause a chained builder call contributes.
// A terminal method consumes it once; paginate and chunk clone it before
// running their independent count and fetch passes.
type clauseState struct {
	table      string
	tables     []string // emission order: main table first, then join tables
	columns    map[string][]columnSpec
	joins      []joinClause
	predicates []predicate
	groupCols  []string
	having     []string
	orders     []orderSpec

	limit     int
	offset    int
	hasLimit  bool
	hasOffset bool

	distinct bool
	lock     lockMode
	lockWait LockWait

	compileOnly bool
	streaming   bool
	timestamps  bool
}

// newClauseState seeds the state for a table; every table starts with *.
func newClauseState(table string) *clauseState {
	return &clauseState{
		table:   table,
		tables:  []string{table},
		columns: map[string][]columnSpec{table: {{expr: "*"}}},
	}
}

// addTable registers a joined table's column set, seeding * when no columns
// are given. The first reference to a table fixes its emission position.
func (s *clauseState) addTable(table string, cols []columnSpec) {
	if _, ok := s.columns[table]; !ok {
		s.tables = append(s.tables, table)
		if len(cols) == 0 {
			cols = []columnSpec{{expr: "*"}}
		}
	}
	if len(cols) > 0 {
		s.columns[table] = cols
	}
}

// addOrder appends an ORDER BY entry, overwriting the direction in place
// when the column is already ordered.
func (s *clauseState) addOrder(column, direction string) {
	for i := range s.orders {
		if s.orders[i].column == column {
			s.orders[i].direction = direction
			return
		}
	}
	s.orders = append(s.orders, orderSpec{column: column, direction: direction})
}

// clone returns a deep copy. Builder methods mutate in place, so any
// diverging reuse of accumulated state must go through a clone.
func (s *clauseState) clone() *clauseState {
	c := *s
	c.tables = append([]string(nil), s.tables...)
	c.columns = make(map[string][]columnSpec, len(s.columns))
	for t, cols := range s.columns {
		c.columns[t] = append([]columnSpec(nil), cols...)
	}
	c.joins = append([]joinClause(nil), s.joins...)
	c.predicates = append([]predicate(nil), s.predicates...)
	c.groupCols = append([]string(nil), s.groupCols...)
	c.having = append([]string(nil), s.having...)
	c.orders = append([]orderSpec(nil), s.orders...)
	return &c
}
