package mapping

import (
	"fmt"
	"reflect"
	"strings"
)

// Column describes one persisted struct field.
type Column struct {
	// Name is the database column name
	Name string
	// Field is the Go field name, dotted for fields promoted from embedded structs
	Field string
	// Index is the reflect field index path from the entity struct
	Index []int
	Type  reflect.Type
	// PrimaryKey marks the identifier column
	PrimaryKey bool
}

// EntityMetadata is the persistence description of an entity type. It is
// built once per type and must not be modified afterwards.
type EntityMetadata struct {
	Type    reflect.Type
	Table   string
	Columns []Column
	// ID points into Columns, nil when the entity has no identifier
	ID *Column
	// Suffix resolves the shard suffix of an entity instance; nil when unsharded
	Suffix func(entity any) string

	byName  map[string]*Column
	byField map[string]*Column
}

// TableNamer lets an entity declare its table name.
type TableNamer interface {
	TableName() string
}

// ShardSuffixer lets an entity route rows to table_<suffix>.
type ShardSuffixer interface {
	ShardSuffix() string
}

// NamingPolicy lets an entity opt out of, or into, camelCase conversion
// regardless of the registry default.
type NamingPolicy interface {
	MapCamelCase() bool
}

// Empty returns metadata with no table and no fields. It is the fallback
// for entities that cannot be resolved.
func Empty() *EntityMetadata {
	return &EntityMetadata{}
}

// IsEmpty reports whether m describes no persisted fields.
func (m *EntityMetadata) IsEmpty() bool {
	return m == nil || len(m.Columns) == 0
}

// Column returns the column with the given name, ignoring case.
func (m *EntityMetadata) Column(name string) (*Column, bool) {
	if m == nil || m.byName == nil {
		return nil, false
	}
	col, ok := m.byName[strings.ToLower(name)]
	return col, ok
}

// FieldColumn returns the column backing the given Go field name.
func (m *EntityMetadata) FieldColumn(field string) (*Column, bool) {
	if m == nil || m.byField == nil {
		return nil, false
	}
	col, ok := m.byField[field]
	return col, ok
}

// ColumnNames returns the column names in declaration order.
func (m *EntityMetadata) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i := range m.Columns {
		names[i] = m.Columns[i].Name
	}
	return names
}

// TableFor returns the table an entity instance is stored in: Table, or
// Table_<suffix> when the entity carries a non-empty shard suffix.
func (m *EntityMetadata) TableFor(entity any) string {
	if m.Suffix == nil || entity == nil {
		return m.Table
	}
	if suffix := m.Suffix(entity); suffix != "" {
		return m.Table + "_" + suffix
	}
	return m.Table
}

// Value returns the addressable-or-not struct value behind entity after
// checking that it is an instance of the described type.
func (m *EntityMetadata) Value(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s entity", m.Type)
		}
		v = v.Elem()
	}
	if v.Type() != m.Type {
		return reflect.Value{}, fmt.Errorf("entity of type %s does not match %s", v.Type(), m.Type)
	}
	return v, nil
}

// IDValue returns the identifier value of entity.
func (m *EntityMetadata) IDValue(entity any) (any, error) {
	if m.ID == nil {
		return nil, fmt.Errorf("entity %s has no identifier column", m.Type)
	}
	v, err := m.Value(entity)
	if err != nil {
		return nil, err
	}
	return v.FieldByIndex(m.ID.Index).Interface(), nil
}

func (m *EntityMetadata) index() {
	m.byName = make(map[string]*Column, len(m.Columns))
	m.byField = make(map[string]*Column, len(m.Columns))
	for i := range m.Columns {
		col := &m.Columns[i]
		m.byName[strings.ToLower(col.Name)] = col
		m.byField[col.Field] = col
		if col.PrimaryKey {
			m.ID = col
		}
	}
}
