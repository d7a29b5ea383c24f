// Package crud generates the SQL of the standard entity statements from
// entity metadata and bundles them, together with their mapper
// declarations, for registration with a session engine.
package crud

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/internal/sqllex"
	"github.com/gaborage/go-sqlmapper/mapping"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

// Parameter keys read by FindByPage.
const (
	KeyWhere   = "where"
	KeyOrder   = "order"
	KeyGroupBy = "groupBy"
	KeyArgs    = pipeline.KeyArgs
)

var (
	// ErrNoEntity is returned when a template needs the entity type and the parameter carries none.
	ErrNoEntity = errors.New("crud: parameter carries no entity type")
	// ErrNoIdentifier is returned for id-based templates on entities without an identifier column.
	ErrNoIdentifier = errors.New("crud: entity has no identifier column")
	// ErrNoColumns is returned when an insert or update would set no column.
	ErrNoColumns = errors.New("crud: no column to write")
)

// Templates builds dialect-specific CRUD SQL.
type Templates struct {
	dialect  string
	sb       squirrel.StatementBuilderType
	metadata *mapping.Registry
}

// New creates templates for dialect. Placeholders follow the dialect:
// $n for postgresql, :n for oracle and ? otherwise.
func New(dialect string, metadata *mapping.Registry) *Templates {
	dialect = strings.ToLower(dialect)

	var sb squirrel.StatementBuilderType
	switch dialect {
	case types.PostgreSQL:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	case types.Oracle:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Colon)
	default:
		sb = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
	}

	return &Templates{dialect: dialect, sb: sb, metadata: metadata}
}

// Dialect returns the normalized dialect name.
func (t *Templates) Dialect() string {
	return t.dialect
}

func (t *Templates) quote(column string) string {
	switch t.dialect {
	case types.MySQL:
		return "`" + column + "`"
	case types.Oracle:
		return sqllex.QuoteOracle(column)
	default:
		return column
	}
}

func (t *Templates) entityMeta(param any) (*mapping.EntityMetadata, error) {
	entity := pipeline.EntityType(param)
	if entity == nil {
		return nil, ErrNoEntity
	}
	return t.metadata.ResolveType(entity)
}

func (t *Templates) identified(param any) (*mapping.EntityMetadata, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return nil, err
	}
	if meta.ID == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentifier, meta.Type)
	}
	return meta, nil
}

// FindAll selects every row of the entity table.
func (t *Templates) FindAll(param any) (string, []any, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return "", nil, err
	}
	return t.sb.Select("*").From(meta.Table).ToSql()
}

// CountAll counts the rows of the entity table.
func (t *Templates) CountAll(param any) (string, []any, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return "", nil, err
	}
	return t.sb.Select("count(0)").From(meta.Table).ToSql()
}

// DeleteAll deletes every row of the entity table.
func (t *Templates) DeleteAll(param any) (string, []any, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return "", nil, err
	}
	return t.sb.Delete(meta.Table).ToSql()
}

// Truncate empties the entity table. SQLite has no TRUNCATE and gets an
// unqualified DELETE instead.
func (t *Templates) Truncate(param any) (string, []any, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return "", nil, err
	}
	if t.dialect == types.SQLite {
		return "DELETE FROM " + meta.Table, nil, nil
	}
	return "TRUNCATE TABLE " + meta.Table, nil, nil
}

// FindByID selects the row whose identifier is the wrapped parameter.
func (t *Templates) FindByID(param any) (string, []any, error) {
	meta, err := t.identified(param)
	if err != nil {
		return "", nil, err
	}
	return t.sb.Select("*").From(meta.Table).
		Where(squirrel.Eq{t.quote(meta.ID.Name): pipeline.Unwrap(param)}).
		ToSql()
}

// DeleteByID deletes the row whose identifier is the wrapped parameter.
func (t *Templates) DeleteByID(param any) (string, []any, error) {
	meta, err := t.identified(param)
	if err != nil {
		return "", nil, err
	}
	return t.sb.Delete(meta.Table).
		Where(squirrel.Eq{t.quote(meta.ID.Name): pipeline.Unwrap(param)}).
		ToSql()
}

// FindByPage selects the entity table filtered by the optional KeyWhere
// clause, grouped by KeyGroupBy and ordered by KeyOrder. Arguments of the
// where clause are taken from KeyArgs. The page itself is applied by the
// pagination interceptor.
func (t *Templates) FindByPage(param any) (string, []any, error) {
	meta, err := t.entityMeta(param)
	if err != nil {
		return "", nil, err
	}

	q := t.sb.Select("*").From(meta.Table)
	values, _ := param.(map[string]any)
	if where, ok := values[KeyWhere].(string); ok && where != "" {
		q = q.Where(where, pipeline.Args(values[KeyArgs])...)
	}
	if groupBy, ok := values[KeyGroupBy].(string); ok && groupBy != "" {
		q = q.GroupBy(groupBy)
	}
	if order, ok := values[KeyOrder].(string); ok && order != "" {
		q = q.OrderBy(order)
	}
	return q.ToSql()
}

// Insert inserts the entity. Nil pointer fields are left to column
// defaults and a zero identifier is left to the database.
func (t *Templates) Insert(param any) (string, []any, error) {
	meta, v, err := t.instance(param)
	if err != nil {
		return "", nil, err
	}

	columns := make([]string, 0, len(meta.Columns))
	values := make([]any, 0, len(meta.Columns))
	for i := range meta.Columns {
		col := &meta.Columns[i]
		field := v.FieldByIndex(col.Index)
		if isNil(field) || (col.PrimaryKey && field.IsZero()) {
			continue
		}
		columns = append(columns, t.quote(col.Name))
		values = append(values, field.Interface())
	}
	if len(columns) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrNoColumns, meta.Type)
	}

	return t.sb.Insert(meta.TableFor(param)).Columns(columns...).Values(values...).ToSql()
}

// Update updates the entity's row by identifier. Nil pointer fields are
// not written.
func (t *Templates) Update(param any) (string, []any, error) {
	meta, v, err := t.instance(param)
	if err != nil {
		return "", nil, err
	}
	if meta.ID == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrNoIdentifier, meta.Type)
	}

	q := t.sb.Update(meta.TableFor(param))
	set := 0
	for i := range meta.Columns {
		col := &meta.Columns[i]
		field := v.FieldByIndex(col.Index)
		if col.PrimaryKey || isNil(field) {
			continue
		}
		q = q.Set(t.quote(col.Name), field.Interface())
		set++
	}
	if set == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrNoColumns, meta.Type)
	}

	id := v.FieldByIndex(meta.ID.Index).Interface()
	return q.Where(squirrel.Eq{t.quote(meta.ID.Name): id}).ToSql()
}

// Save inserts an entity whose identifier is zero and updates it otherwise.
func (t *Templates) Save(param any) (string, []any, error) {
	isNew, err := t.IsNew(param)
	if err != nil {
		return "", nil, err
	}
	if isNew {
		return t.Insert(param)
	}
	return t.Update(param)
}

// IsNew reports whether the entity's identifier is still zero.
func (t *Templates) IsNew(entity any) (bool, error) {
	meta, v, err := t.instance(entity)
	if err != nil {
		return false, err
	}
	if meta.ID == nil {
		return false, fmt.Errorf("%w: %s", ErrNoIdentifier, meta.Type)
	}
	return v.FieldByIndex(meta.ID.Index).IsZero(), nil
}

// Delete deletes the entity's row by identifier.
func (t *Templates) Delete(param any) (string, []any, error) {
	meta, v, err := t.instance(param)
	if err != nil {
		return "", nil, err
	}
	if meta.ID == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrNoIdentifier, meta.Type)
	}
	id := v.FieldByIndex(meta.ID.Index).Interface()
	return t.sb.Delete(meta.TableFor(param)).Where(squirrel.Eq{t.quote(meta.ID.Name): id}).ToSql()
}

func (t *Templates) instance(entity any) (*mapping.EntityMetadata, reflect.Value, error) {
	if _, ok := entity.(reflect.Type); ok || entity == nil {
		return nil, reflect.Value{}, fmt.Errorf("crud: expected an entity instance, got %T", entity)
	}
	meta, err := t.metadata.Resolve(entity)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	v, err := meta.Value(entity)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return meta, v, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
