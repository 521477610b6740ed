package datasource

import "github.com/erauner12/syncengine-go/internal/model"

// Query describes a read against a table. Building the Predicate is the
// caller's job; the engine only needs to inspect and forward the handful of
// fields below.
type Query struct {
	TableName string

	// Predicate is the opaque filter; nil matches every row. It is a plain
	// function rather than an AST because predicate construction lives
	// outside this module's scope.
	Predicate func(model.Item) bool

	OrderBy    string
	OrderDesc  bool
	Top        int // page size; 0 means "no explicit limit"
	FetchOffset int

	SelectFields      []string // must be empty for pull requests
	IncludeTotalCount bool     // must be false for pull requests

	// Parameters holds wire-level query parameters such as
	// __includeDeleted and __systemProperties.
	Parameters map[string]string
}

// Clone returns a copy of q with its own Parameters map, so callers (notably
// PullRunner's predicate-rebuild loop) can mutate a copy freely.
func (q Query) Clone() Query {
	cp := q
	cp.Parameters = make(map[string]string, len(q.Parameters))
	for k, v := range q.Parameters {
		cp.Parameters[k] = v
	}
	return cp
}

// ReadResult is the result of a ReadByQuery call.
type ReadResult struct {
	Items      []model.Item
	TotalCount int
}
