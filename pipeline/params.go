package pipeline

import (
	"maps"
	"reflect"
	"slices"

	"github.com/gaborage/go-sqlmapper/pagination"
)

// Reserved parameter keys.
const (
	// KeyParam holds the original parameter when a non-map parameter is wrapped
	KeyParam = "param"
	// KeyEntity holds the injected entity type
	KeyEntity = "entity"
	// KeyPage is checked first when looking for a page in a map parameter
	KeyPage = "page"
	// KeyArgs holds positional arguments for raw statements
	KeyArgs = "args"
)

// FillEntity returns param with the entity type injected. A map parameter
// is copied and gains the KeyEntity entry; any other non-nil parameter is
// wrapped as {KeyParam: param, KeyEntity: entity}; a nil parameter becomes
// the entity type itself.
func FillEntity(param any, entity reflect.Type) any {
	switch v := param.(type) {
	case nil:
		return entity
	case map[string]any:
		filled := make(map[string]any, len(v)+1)
		maps.Copy(filled, v)
		filled[KeyEntity] = entity
		return filled
	default:
		return map[string]any{KeyParam: param, KeyEntity: entity}
	}
}

// EntityType returns the entity type injected into param, or nil.
func EntityType(param any) reflect.Type {
	switch v := param.(type) {
	case reflect.Type:
		return v
	case map[string]any:
		if t, ok := v[KeyEntity].(reflect.Type); ok {
			return t
		}
	}
	return nil
}

// Unwrap returns the original parameter of a wrapped parameter.
func Unwrap(param any) any {
	if m, ok := param.(map[string]any); ok {
		if inner, ok := m[KeyParam]; ok {
			return inner
		}
	}
	if _, ok := param.(reflect.Type); ok {
		return nil
	}
	return param
}

// FindPager returns the page carried by param: param itself, or a value of
// a map parameter. The KeyPage entry wins; other keys are checked in sorted
// order so the result does not depend on map iteration.
func FindPager(param any) pagination.Pager {
	switch v := param.(type) {
	case pagination.Pager:
		return v
	case map[string]any:
		if p, ok := v[KeyPage].(pagination.Pager); ok {
			return p
		}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			if p, ok := v[k].(pagination.Pager); ok {
				return p
			}
		}
	}
	return nil
}
