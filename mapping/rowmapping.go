package mapping

import (
	"reflect"
	"strings"
)

// ResultMapping maps one result set column onto one entity property.
type ResultMapping struct {
	Property string
	Column   string
	Type     reflect.Type
	Index    []int
	ID       bool
}

// RowMapping is the ordered definition translating result set columns into
// an entity. It carries at most one identifier entry.
type RowMapping struct {
	ID      string
	Type    reflect.Type
	Entries []ResultMapping

	byColumn map[string]*ResultMapping
}

// NewRowMapping builds a row mapping with one entry per persisted column of meta.
func NewRowMapping(id string, meta *EntityMetadata) *RowMapping {
	m := &RowMapping{ID: id, byColumn: map[string]*ResultMapping{}}
	if meta == nil {
		return m
	}
	m.Type = meta.Type
	m.Entries = make([]ResultMapping, len(meta.Columns))
	for i, col := range meta.Columns {
		m.Entries[i] = ResultMapping{
			Property: col.Field,
			Column:   col.Name,
			Type:     col.Type,
			Index:    col.Index,
			ID:       col.PrimaryKey,
		}
		m.byColumn[strings.ToLower(col.Name)] = &m.Entries[i]
	}
	return m
}

// Lookup returns the entry for a result set column, ignoring case.
func (m *RowMapping) Lookup(column string) (*ResultMapping, bool) {
	if m == nil {
		return nil, false
	}
	e, ok := m.byColumn[strings.ToLower(column)]
	return e, ok
}

// IDEntry returns the identifier entry, nil when there is none.
func (m *RowMapping) IDEntry() *ResultMapping {
	for i := range m.Entries {
		if m.Entries[i].ID {
			return &m.Entries[i]
		}
	}
	return nil
}

// Empty reports whether the mapping cannot build entities.
func (m *RowMapping) Empty() bool {
	return m == nil || m.Type == nil
}
