package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const (
	tagColumn = "db"
	tagKey    = "pk"
	optKey    = "pk"
)

var (
	// ErrNotStruct is returned when an entity type is not a struct.
	ErrNotStruct = errors.New("entity must be a struct or a pointer to struct")
	// ErrDuplicateColumn is returned when two fields map to the same column.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrMultipleKeys is returned when more than one field is marked as identifier.
	ErrMultipleKeys = errors.New("more than one identifier column")
)

var (
	tableNamerType    = reflect.TypeFor[TableNamer]()
	shardSuffixerType = reflect.TypeFor[ShardSuffixer]()
	namingPolicyType  = reflect.TypeFor[NamingPolicy]()
)

// parseEntity builds metadata for struct type t. Exported fields become
// columns; `db:"-"` skips a field, `db:"name"` names the column and
// `db:"name,pk"` or `pk:"true"` marks the identifier. Embedded structs
// without a db tag are walked depth-first, outer fields first.
func parseEntity(t reflect.Type, mapCamelCase bool) (*EntityMetadata, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrNotStruct, t)
	}

	camel := mapCamelCase
	if policy, ok := zeroAs[NamingPolicy](t, namingPolicyType); ok {
		camel = policy.MapCamelCase()
	}

	meta := &EntityMetadata{
		Type:  t,
		Table: NameConvert(t.Name(), camel),
	}
	if namer, ok := zeroAs[TableNamer](t, tableNamerType); ok {
		if name := namer.TableName(); name != "" {
			meta.Table = name
		}
	}
	if implements(t, shardSuffixerType) {
		meta.Suffix = shardSuffix
	}

	p := &parser{entity: t, camel: camel, seen: map[string]string{}}
	if err := p.walk(t, nil, ""); err != nil {
		return nil, err
	}
	meta.Columns = p.columns
	meta.index()
	return meta, nil
}

type parser struct {
	entity  reflect.Type
	camel   bool
	columns []Column
	seen    map[string]string // lower-case column -> field
	hasKey  bool
}

func (p *parser) walk(t reflect.Type, prefix []int, fieldPrefix string) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag, tagged := field.Tag.Lookup(tagColumn)
		if tag == "-" {
			continue
		}

		index := append(append([]int{}, prefix...), i)

		if field.Anonymous && !tagged && field.Type.Kind() == reflect.Struct {
			if err := p.walk(field.Type, index, fieldPrefix+field.Name+"."); err != nil {
				return err
			}
			continue
		}
		if !field.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = NameConvert(field.Name, p.camel)
		}
		if err := validateColumnName(name, p.entity, field.Name); err != nil {
			return err
		}

		isKey := opts == optKey || field.Tag.Get(tagKey) == "true"
		if isKey {
			if p.hasKey {
				return fmt.Errorf("%w in %s: %s", ErrMultipleKeys, p.entity, field.Name)
			}
			p.hasKey = true
		}

		lower := strings.ToLower(name)
		if other, dup := p.seen[lower]; dup {
			return fmt.Errorf("%w %q in %s: fields %s and %s", ErrDuplicateColumn, name, p.entity, other, fieldPrefix+field.Name)
		}
		p.seen[lower] = fieldPrefix + field.Name

		p.columns = append(p.columns, Column{
			Name:       name,
			Field:      fieldPrefix + field.Name,
			Index:      index,
			Type:       field.Type,
			PrimaryKey: isKey,
		})
	}
	return nil
}

// validateColumnName rejects names that could smuggle SQL into generated statements.
func validateColumnName(name string, entity reflect.Type, field string) error {
	for _, d := range []string{";", "--", "/*", "*/", `"`, "'", "`", " "} {
		if strings.Contains(name, d) {
			return fmt.Errorf("invalid column name %q in field %s.%s: contains %q", name, entity, field, d)
		}
	}
	return nil
}

func implements(t, iface reflect.Type) bool {
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}

// zeroAs returns a zero value of t as I when t or *t implements it.
func zeroAs[I any](t, iface reflect.Type) (I, bool) {
	var zero I
	if !implements(t, iface) {
		return zero, false
	}
	v, ok := reflect.New(t).Interface().(I)
	return v, ok
}

func shardSuffix(entity any) string {
	if s, ok := entity.(ShardSuffixer); ok {
		return s.ShardSuffix()
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer && v.IsValid() {
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		if s, ok := ptr.Interface().(ShardSuffixer); ok {
			return s.ShardSuffix()
		}
	}
	return ""
}
