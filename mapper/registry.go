package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/mapping"
)

// ErrDuplicateMethod is returned when a statement id is registered twice.
var ErrDuplicateMethod = errors.New("mapper method already registered")

// Descriptor is the resolved automatic behavior of one statement.
type Descriptor struct {
	StatementID   string
	Entity        reflect.Type
	FillEntity    bool
	FillResultMap bool
	// ResultMaps holds the synthesized row mapping when FillResultMap is set
	ResultMaps []*mapping.RowMapping
}

// Empty reports whether the descriptor asks for nothing.
func (d *Descriptor) Empty() bool {
	return d == nil || (!d.FillEntity && !d.FillResultMap)
}

type declaration struct {
	namespace string
	entity    reflect.Type
	method    Method
}

// Registry turns mapper declarations into descriptors. Declarations are
// registered at startup; descriptors are computed on first lookup, at most
// once per statement id, and cached for the lifetime of the registry.
type Registry struct {
	log     logger.Logger
	results *ResultMaps

	mu           sync.RWMutex
	declarations map[string]declaration

	descriptors sync.Map // map[string]*Descriptor
	group       singleflight.Group
	computed    atomic.Int64
}

// NewRegistry creates a registry resolving entities through metadata.
func NewRegistry(metadata *mapping.Registry, log logger.Logger) *Registry {
	return &Registry{
		log:          log,
		results:      NewResultMaps(metadata, log),
		declarations: map[string]declaration{},
	}
}

// ResultMaps exposes the row mapping builder shared by all descriptors.
func (r *Registry) ResultMaps() *ResultMaps {
	return r.results
}

// Register adds the methods of every spec. It fails without registering
// anything when a statement id is already taken.
func (r *Registry) Register(specs ...Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := map[string]declaration{}
	for _, spec := range specs {
		for _, m := range spec.Methods {
			id := StatementID(spec.Namespace, m.Name)
			if _, exists := r.declarations[id]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateMethod, id)
			}
			if _, exists := pending[id]; exists {
				return fmt.Errorf("%w: %s", ErrDuplicateMethod, id)
			}
			pending[id] = declaration{namespace: spec.Namespace, entity: spec.Entity, method: m}
		}
	}
	for id, d := range pending {
		r.declarations[id] = d
	}
	return nil
}

// Descriptor returns the descriptor of statementID. Statements without a
// declaration get an empty descriptor.
func (r *Registry) Descriptor(statementID string) *Descriptor {
	if cached, ok := r.descriptors.Load(statementID); ok {
		return cached.(*Descriptor)
	}

	v, _, _ := r.group.Do(statementID, func() (any, error) {
		if cached, ok := r.descriptors.Load(statementID); ok {
			return cached, nil
		}
		d := r.build(statementID)
		r.descriptors.Store(statementID, d)
		return d, nil
	})
	return v.(*Descriptor)
}

func (r *Registry) build(statementID string) *Descriptor {
	r.computed.Add(1)
	d := &Descriptor{StatementID: statementID}

	r.mu.RLock()
	decl, ok := r.declarations[statementID]
	r.mu.RUnlock()
	if !ok || (!decl.method.AutoResultMap && !decl.method.FillEntity) {
		return d
	}

	entity := decl.method.Entity
	if entity == nil {
		entity = decl.entity
	}
	for entity != nil && entity.Kind() == reflect.Pointer {
		entity = entity.Elem()
	}
	if entity == nil {
		r.log.Warn().Str("statement", statementID).Msg("No entity type declared, automatic mapping disabled")
		return d
	}

	d.Entity = entity
	d.FillEntity = true
	if decl.method.AutoResultMap {
		d.FillResultMap = true
		d.ResultMaps = []*mapping.RowMapping{r.results.Build(decl.namespace, entity)}
	}
	return d
}
