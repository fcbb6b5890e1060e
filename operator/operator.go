// Package operator maps the operator names of a structured query tree to the
// iterators which satisfy them. Each index part builds one immutable Table
// when it is opened; the query evaluator asks the table for iterators by
// name without knowing the concrete part types.
package operator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bsm/snindex/dociter"
)

// ErrUnsupported is matched by all UnsupportedError values.
var ErrUnsupported = errors.New("operator: unsupported")

// UnsupportedError is returned when a table has no entry for an operator.
type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("operator: unsupported operator %q", e.Name)
}

// Is implements errors.Is.
func (e *UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// --------------------------------------------------------------------

// Node is a node of a structured query tree, for example
// `#prior:part=pagerank()` is Node{Operator: "prior", Params: {"part": "pagerank"}}.
type Node struct {
	Operator string
	Params   map[string]string
	Children []*Node
}

// NewNode creates a node. Params are given as key/value pairs.
func NewNode(op string, kv ...string) *Node {
	n := &Node{Operator: op}
	for i := 0; i+1 < len(kv); i += 2 {
		if n.Params == nil {
			n.Params = make(map[string]string, len(kv)/2)
		}
		n.Params[kv[i]] = kv[i+1]
	}
	return n
}

// Get returns a parameter value or def.
func (n *Node) Get(key, def string) string {
	if v, ok := n.Params[key]; ok {
		return v
	}
	return def
}

// Default returns the "default" parameter, which typically holds a term.
func (n *Node) Default() string { return n.Get("default", "") }

// Float returns a parameter as a float64.
func (n *Node) Float(key string, def float64) (float64, error) {
	v, ok := n.Params[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("operator: bad %s=%q parameter of #%s: %w", key, v, n.Operator, err)
	}
	return f, nil
}

// Bool returns a parameter as a bool.
func (n *Node) Bool(key string, def bool) (bool, error) {
	v, ok := n.Params[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("operator: bad %s=%q parameter of #%s: %w", key, v, n.Operator, err)
	}
	return b, nil
}

// String formats the node in query syntax.
func (n *Node) String() string {
	var sb strings.Builder
	sb.WriteByte('#')
	sb.WriteString(n.Operator)

	keys := make([]string, 0, len(n.Params))
	for k := range n.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(':')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(n.Params[k])
	}

	sb.WriteByte('(')
	for i, c := range n.Children {
		if i != 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(c.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// --------------------------------------------------------------------

// Kind identifies the iterator family an operator produces.
type Kind uint8

// Iterator kinds.
const (
	KindInvalid   Kind = iota
	KindCounts         // dociter.Counts
	KindScores         // dociter.Scores
	KindIndicator      // dociter.Indicators
)

func (k Kind) String() string {
	switch k {
	case KindCounts:
		return "counts"
	case KindScores:
		return "scores"
	case KindIndicator:
		return "indicator"
	}
	return "invalid"
}

// Factory creates an iterator for a node.
type Factory func(*Node) (dociter.Iterator, error)

// Entry binds an operator name to a factory.
type Entry struct {
	Name string
	Kind Kind
	New  Factory
}

// Table is an immutable operator name to factory mapping.
type Table struct {
	entries map[string]Entry
	names   []string
}

// NewTable builds a table. Duplicate names, missing factories or invalid kinds
// cause a panic, tables are static per part type.
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.New == nil || e.Kind == KindInvalid || e.Name == "" {
			panic(fmt.Sprintf("operator: invalid entry %q", e.Name))
		}
		if _, ok := t.entries[e.Name]; ok {
			panic(fmt.Sprintf("operator: duplicate entry %q", e.Name))
		}
		t.entries[e.Name] = e
		t.names = append(t.names, e.Name)
	}
	sort.Strings(t.names)
	return t
}

// Names returns the sorted operator names.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Kind returns the kind of the named operator, KindInvalid if unknown.
func (t *Table) Kind(name string) Kind {
	return t.entries[name].Kind
}

// Supports returns true if the table has an entry for the named operator.
func (t *Table) Supports(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// Iterator creates an iterator for the node or returns an *UnsupportedError.
func (t *Table) Iterator(n *Node) (dociter.Iterator, error) {
	e, ok := t.entries[n.Operator]
	if !ok {
		return nil, &UnsupportedError{Name: n.Operator}
	}
	return e.New(n)
}
