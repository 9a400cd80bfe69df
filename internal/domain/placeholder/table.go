package placeholder

import (
	"maps"
	"slices"
)

// Table is the resolved value table of one run. It is immutable once built,
// so it can be shared by concurrent renders without locking.
type Table struct {
	values map[Name]string
}

// NewTable copies values into a new Table.
func NewTable(values map[Name]string) *Table {
	return &Table{
		values: maps.Clone(values),
	}
}

// Lookup returns the value resolved for name.
func (t *Table) Lookup(name Name) (string, bool) {
	value, ok := t.values[name]

	return value, ok
}

// Names returns the resolved names in vocabulary order.
func (t *Table) Names() []Name {
	return slices.Sorted(maps.Keys(t.values))
}

// Len returns the number of resolved entries.
func (t *Table) Len() int {
	return len(t.values)
}
