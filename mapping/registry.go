package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-sqlmapper/logger"
)

// Registry caches EntityMetadata per entity type. Entries are computed on
// first reference and kept for the lifetime of the registry; concurrent
// first resolutions of the same type share a single scan.
type Registry struct {
	log          logger.Logger
	mapCamelCase bool

	byType sync.Map // map[reflect.Type]*EntityMetadata
	byName sync.Map // map[string]*EntityMetadata
	group  singleflight.Group

	scans atomic.Int64
}

// NewRegistry creates a registry. mapCamelCase is the default naming policy
// for entities that do not implement NamingPolicy.
func NewRegistry(log logger.Logger, mapCamelCase bool) *Registry {
	return &Registry{log: log, mapCamelCase: mapCamelCase}
}

// Resolve returns metadata for the type of entity. entity may be a value,
// a pointer, a reflect.Type or a nil typed pointer.
func (r *Registry) Resolve(entity any) (*EntityMetadata, error) {
	var t reflect.Type
	if rt, ok := entity.(reflect.Type); ok {
		t = rt
	} else {
		t = reflect.TypeOf(entity)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: got nil", ErrNotStruct)
	}
	return r.ResolveType(t)
}

// ResolveType returns metadata for t, dereferencing pointer types.
func (r *Registry) ResolveType(t reflect.Type) (*EntityMetadata, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if cached, ok := r.byType.Load(t); ok {
		return cached.(*EntityMetadata), nil
	}

	v, err, _ := r.group.Do(t.PkgPath()+"\x00"+t.String(), func() (any, error) {
		return r.scan(t)
	})
	if err != nil {
		return nil, err
	}
	// distinct types may share a key; they are scanned without sharing
	if meta := v.(*EntityMetadata); meta.Type == t {
		return meta, nil
	}
	return r.scan(t)
}

func (r *Registry) scan(t reflect.Type) (*EntityMetadata, error) {
	if cached, ok := r.byType.Load(t); ok {
		return cached.(*EntityMetadata), nil
	}

	r.scans.Add(1)
	meta, err := parseEntity(t, r.mapCamelCase)
	if err != nil {
		return nil, err
	}

	actual, loaded := r.byType.LoadOrStore(t, meta)
	if !loaded {
		r.indexName(meta)
	}
	return actual.(*EntityMetadata), nil
}

// Register installs a hand-built declaration for meta.Type, replacing any
// scanned metadata. Column names must be unique and at most one column may
// be the identifier.
func (r *Registry) Register(meta *EntityMetadata) error {
	if meta == nil || meta.Type == nil {
		return fmt.Errorf("%w: metadata without type", ErrNotStruct)
	}
	seen := make(map[string]bool, len(meta.Columns))
	keys := 0
	for _, col := range meta.Columns {
		lower := strings.ToLower(col.Name)
		if seen[lower] {
			return fmt.Errorf("%w %q in %s", ErrDuplicateColumn, col.Name, meta.Type)
		}
		seen[lower] = true
		if col.PrimaryKey {
			keys++
		}
	}
	if keys > 1 {
		return fmt.Errorf("%w in %s", ErrMultipleKeys, meta.Type)
	}

	registered := *meta
	registered.Columns = append([]Column(nil), meta.Columns...)
	registered.ID = nil
	registered.index()

	r.byType.Store(registered.Type, &registered)
	r.indexName(&registered)
	return nil
}

// ResolveName looks an entity up by type name, either the bare name or
// the package-qualified one. Unknown names are logged and resolve to the
// empty metadata, so callers that do not need columns keep working.
func (r *Registry) ResolveName(name string) *EntityMetadata {
	if cached, ok := r.byName.Load(name); ok {
		return cached.(*EntityMetadata)
	}
	if r.log != nil {
		r.log.Warn().Str("entity", name).Msg("Entity not registered, using empty metadata")
	}
	return Empty()
}

func (r *Registry) indexName(meta *EntityMetadata) {
	r.byName.Store(meta.Type.Name(), meta)
	if pkg := meta.Type.PkgPath(); pkg != "" {
		r.byName.Store(pkg+"."+meta.Type.Name(), meta)
	}
}
