package defra

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// IDPattern matches valid DefraDB document IDs (bae-<uuid> format) and simple identifiers.
// IDs are checked against it before being interpolated into GraphQL.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID checks if a string is safe to use as a document ID in GraphQL queries.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !IDPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder constructs GraphQL queries whose filter values travel as
// variables rather than being spliced into the query text.
type QueryBuilder struct {
	collection string
	filters    []filterDef
	fields     []string
	order      []string
	limit      int
	offset     int
	varIndex   int
}

type filterDef struct {
	field   string
	list    string // set for array fields: _any, _all or _none
	op      string
	varName string
	varType string
	value   any
}

// NewQuery creates a new QueryBuilder for the given collection.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{
		collection: collection,
		fields:     []string{"_docID"},
	}
}

func (q *QueryBuilder) addFilter(field, op, varType string, value any) *QueryBuilder {
	q.filters = append(q.filters, filterDef{
		field:   field,
		op:      op,
		varName: fmt.Sprintf("v%d", q.varIndex),
		varType: varType,
		value:   value,
	})
	q.varIndex++
	return q
}

// Filter adds an equality filter.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.addFilter(field, "_eq", inferGraphQLType(value), value)
}

// FilterIn adds an _in filter for matching any of the values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	return q.addFilter(field, "_in", "[String!]", values)
}

// FilterILike adds a case-insensitive pattern filter. % matches any run of
// characters and _ matches exactly one.
func (q *QueryBuilder) FilterILike(field, pattern string) *QueryBuilder {
	return q.addFilter(field, "_ilike", "String", pattern)
}

// FilterContains matches documents whose array field holds value.
func (q *QueryBuilder) FilterContains(field string, value any) *QueryBuilder {
	q.addFilter(field, "_eq", inferGraphQLType(value), value)
	q.filters[len(q.filters)-1].list = "_any"
	return q
}

// Fields sets the fields to return (replaces default of just _docID).
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy appends an ordering term. Terms apply in the order added.
func (q *QueryBuilder) OrderBy(field string, direction string) *QueryBuilder {
	q.order = append(q.order, fmt.Sprintf("{%s: %s}", field, direction))
	return q
}

// Limit sets the maximum number of results.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Offset sets the offset for pagination.
func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build returns the query string and variables map.
func (q *QueryBuilder) Build() (string, map[string]any) {
	var varDefs, filterParts []string
	vars := make(map[string]any)

	for _, f := range q.filters {
		varDefs = append(varDefs, fmt.Sprintf("$%s: %s", f.varName, f.varType))
		vars[f.varName] = f.value
		cond := fmt.Sprintf("{%s: $%s}", f.op, f.varName)
		if f.list != "" {
			cond = fmt.Sprintf("{%s: %s}", f.list, cond)
		}
		filterParts = append(filterParts, fmt.Sprintf("%s: %s", f.field, cond))
	}

	var query strings.Builder
	if len(varDefs) > 0 {
		fmt.Fprintf(&query, "query(%s) ", strings.Join(varDefs, ", "))
	}

	query.WriteString("{ ")
	query.WriteString(q.collection)

	var args []string
	if len(filterParts) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filterParts, ", ")))
	}
	switch len(q.order) {
	case 0:
	case 1:
		args = append(args, "order: "+q.order[0])
	default:
		args = append(args, "order: ["+strings.Join(q.order, ", ")+"]")
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if q.offset > 0 {
		args = append(args, fmt.Sprintf("offset: %d", q.offset))
	}
	if len(args) > 0 {
		fmt.Fprintf(&query, "(%s)", strings.Join(args, ", "))
	}

	query.WriteString(" { ")
	query.WriteString(strings.Join(q.fields, " "))
	query.WriteString(" } }")

	return query.String(), vars
}

// Execute builds and executes the query on the given client.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) (*GQLResponse, error) {
	query, vars := q.Build()
	return client.Execute(ctx, query, vars)
}

// Docs executes the query and returns the matching documents.
// GraphQL errors are returned as Go errors.
func (q *QueryBuilder) Docs(ctx context.Context, client *Client) ([]map[string]any, error) {
	resp, err := q.Execute(ctx, client)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("query %s: %s", q.collection, errMsg)
	}
	return resp.Docs(q.collection), nil
}

// inferGraphQLType infers the GraphQL type from a Go value.
func inferGraphQLType(v any) string {
	switch v.(type) {
	case string:
		return "String"
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
