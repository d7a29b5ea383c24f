package crud

import (
	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/mapper"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

// Standard method names.
const (
	MethodFindAll        = "findAll"
	MethodCountAll       = "countAll"
	MethodDeleteAll      = "deleteAll"
	MethodTruncate       = "truncate"
	MethodFindByID       = "findById"
	MethodInsert         = "insert"
	MethodInsertAndGetID = "insertAndGetId"
	MethodUpdate         = "update"
	MethodSave           = "save"
	MethodDelete         = "delete"
	MethodDeleteByID     = "deleteById"
	MethodPagination     = "pagination"

	MethodFoundRows    = "foundRows"
	MethodAffectedRows = "affectedRows"
	MethodLastInsertID = "lastInsertId"
)

// Mapper is a namespace's statements together with the declaration of
// their automatic behaviors.
type Mapper struct {
	Spec       mapper.Spec
	Statements []*pipeline.MappedStatement
}

type method struct {
	decl   mapper.Method
	kind   types.StatementKind
	source pipeline.SQLSource
}

// Statements declares the standard CRUD and pagination statements of
// entity T under namespace. Reads and the id-based statements receive the
// entity type and map rows automatically; writes take the entity itself.
func Statements[T any](t *Templates, namespace string) Mapper {
	methods := []method{
		{mapper.AutoMapped(MethodFindAll), types.KindSelect, t.FindAll},
		{mapper.Filled(MethodCountAll), types.KindSelect, t.CountAll},
		{mapper.Filled(MethodDeleteAll), types.KindDelete, t.DeleteAll},
		{mapper.AutoMapped(MethodTruncate), types.KindDelete, t.Truncate},
		{mapper.AutoMapped(MethodFindByID), types.KindSelect, t.FindByID},
		{mapper.Method{Name: MethodInsert}, types.KindInsert, t.Insert},
		{mapper.Method{Name: MethodInsertAndGetID}, types.KindInsert, t.Insert},
		{mapper.Method{Name: MethodUpdate}, types.KindUpdate, t.Update},
		{mapper.Method{Name: MethodSave}, types.KindUpdate, t.Save},
		{mapper.Method{Name: MethodDelete}, types.KindDelete, t.Delete},
		{mapper.AutoMapped(MethodDeleteByID), types.KindDelete, t.DeleteByID},
		{mapper.AutoMapped(MethodPagination), types.KindSelect, t.FindByPage},
	}
	return build(mapper.Define[T](namespace), methods)
}

// MySQLStatements declares the MySQL session helpers foundRows,
// affectedRows and lastInsertId under namespace.
func MySQLStatements(namespace string) Mapper {
	methods := []method{
		{mapper.Method{Name: MethodFoundRows}, types.KindSelect, pipeline.Raw("SELECT FOUND_ROWS()")},
		{mapper.Method{Name: MethodAffectedRows}, types.KindSelect, pipeline.Raw("SELECT ROW_COUNT()")},
		{mapper.Method{Name: MethodLastInsertID}, types.KindSelect, pipeline.Raw("SELECT LAST_INSERT_ID()")},
	}
	return build(mapper.Spec{Namespace: namespace}, methods)
}

func build(spec mapper.Spec, methods []method) Mapper {
	m := Mapper{Spec: spec}
	for _, md := range methods {
		m.Spec.Methods = append(m.Spec.Methods, md.decl)
		m.Statements = append(m.Statements, &pipeline.MappedStatement{
			ID:        mapper.StatementID(spec.Namespace, md.decl.Name),
			Namespace: spec.Namespace,
			Kind:      md.kind,
			Source:    md.source,
		})
	}
	return m
}
