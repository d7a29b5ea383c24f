package mapper

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/mapping"
)

// GeneratedResultMap is the local id of every synthesized row mapping.
const GeneratedResultMap = "GeneratedResultMap"

type resultMapKey struct {
	namespace string
	entity    reflect.Type
}

// ResultMaps synthesizes row mappings from entity metadata, memoized per
// namespace and entity type.
type ResultMaps struct {
	metadata *mapping.Registry
	log      logger.Logger

	cache  sync.Map // map[resultMapKey]*mapping.RowMapping
	builds atomic.Int64
}

// NewResultMaps creates a builder backed by metadata.
func NewResultMaps(metadata *mapping.Registry, log logger.Logger) *ResultMaps {
	return &ResultMaps{metadata: metadata, log: log}
}

// Build returns the row mapping of entity within namespace. Its id is
// "<namespace>.GeneratedResultMap". When the entity metadata cannot be
// resolved the failure is logged and an empty mapping is returned, which
// callers treat as "no automatic mapping".
func (b *ResultMaps) Build(namespace string, entity reflect.Type) *mapping.RowMapping {
	key := resultMapKey{namespace: namespace, entity: entity}
	if cached, ok := b.cache.Load(key); ok {
		return cached.(*mapping.RowMapping)
	}

	b.builds.Add(1)
	id := StatementID(namespace, GeneratedResultMap)
	meta, err := b.metadata.ResolveType(entity)
	if err != nil {
		b.log.Warn().Err(err).Str("namespace", namespace).Str("entity", entity.String()).
			Msg("Entity metadata unavailable, result map left empty")
		meta = mapping.Empty()
	}

	actual, _ := b.cache.LoadOrStore(key, mapping.NewRowMapping(id, meta))
	return actual.(*mapping.RowMapping)
}
