// Package mapper holds the declarative mapper registrations and the
// per-statement descriptors derived from them: whether the entity type is
// injected into the statement parameter and whether result rows are mapped
// automatically from entity metadata.
package mapper

import (
	"reflect"
)

// Method declares the automatic behaviors of one mapper method.
type Method struct {
	Name string
	// AutoResultMap replaces the statement's row mappings with one built from entity metadata
	AutoResultMap bool
	// FillEntity injects the entity type into the statement parameter
	FillEntity bool
	// Entity overrides the namespace entity for this method
	Entity reflect.Type
}

// Spec declares a mapper namespace: its default entity and its methods.
type Spec struct {
	Namespace string
	Entity    reflect.Type
	Methods   []Method
}

// Define declares a namespace whose entity is T.
func Define[T any](namespace string, methods ...Method) Spec {
	return Spec{
		Namespace: namespace,
		Entity:    reflect.TypeFor[T](),
		Methods:   methods,
	}
}

// AutoMapped declares a method that both receives the entity type and maps
// its rows automatically.
func AutoMapped(name string) Method {
	return Method{Name: name, AutoResultMap: true, FillEntity: true}
}

// Filled declares a method that only receives the entity type.
func Filled(name string) Method {
	return Method{Name: name, FillEntity: true}
}

// ResultMapped declares a method whose rows are mapped automatically.
func ResultMapped(name string) Method {
	return Method{Name: name, AutoResultMap: true}
}

// For returns a copy of m bound to entity type T instead of the namespace entity.
func For[T any](m Method) Method {
	m.Entity = reflect.TypeFor[T]()
	return m
}

// StatementID joins a namespace and a method name.
func StatementID(namespace, method string) string {
	if namespace == "" {
		return method
	}
	return namespace + "." + method
}
