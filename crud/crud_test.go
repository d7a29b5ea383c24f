package crud

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/logger"
	"github.com/gaborage/go-sqlmapper/mapper"
	"github.com/gaborage/go-sqlmapper/mapping"
	"github.com/gaborage/go-sqlmapper/pipeline"
)

type Blog struct {
	ID       int64 `db:"id,pk"`
	Title    string
	Content  *string
	AuthorID int64
}

type Event struct {
	ID     int64 `db:"id,pk"`
	Region string
}

func (e Event) ShardSuffix() string { return e.Region }

type Audit struct {
	ID      int64 `db:"id,pk"`
	Level   string
	Comment string
}

type Note struct {
	ID   int64 `db:"id,pk"`
	Body *string
}

type Tag struct {
	Name string
}

func newTemplates(dialect string) *Templates {
	return New(dialect, mapping.NewRegistry(logger.New("disabled", false), true))
}

var blogType = reflect.TypeFor[Blog]()

func TestReadTemplates(t *testing.T) {
	tpl := newTemplates("mysql")

	sql, args, err := tpl.FindAll(blogType)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog", sql)
	assert.Empty(t, args)

	sql, _, err = tpl.CountAll(pipeline.FillEntity(nil, blogType))
	require.NoError(t, err)
	assert.Equal(t, "SELECT count(0) FROM blog", sql)

	sql, args, err = tpl.FindByID(pipeline.FillEntity(int64(7), blogType))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog WHERE `id` = ?", sql)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestDeleteTemplates(t *testing.T) {
	tpl := newTemplates("mysql")

	sql, _, err := tpl.DeleteAll(blogType)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM blog", sql)

	sql, args, err := tpl.DeleteByID(pipeline.FillEntity(int64(3), blogType))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM blog WHERE `id` = ?", sql)
	assert.Equal(t, []any{int64(3)}, args)

	sql, args, err = tpl.Delete(&Blog{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM blog WHERE `id` = ?", sql)
	assert.Equal(t, []any{int64(9)}, args)
}

func TestTruncate(t *testing.T) {
	sql, _, err := newTemplates("mysql").Truncate(blogType)
	require.NoError(t, err)
	assert.Equal(t, "TRUNCATE TABLE blog", sql)

	sql, _, err = newTemplates("sqlite").Truncate(blogType)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM blog", sql)
}

func TestPlaceholdersFollowDialect(t *testing.T) {
	param := pipeline.FillEntity(int64(7), blogType)

	sql, _, err := newTemplates("PostgreSQL").FindByID(param)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog WHERE id = $1", sql)

	sql, _, err = newTemplates("oracle").FindByID(param)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog WHERE id = :1", sql)

	sql, _, err = newTemplates("sqlite").FindByID(param)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog WHERE id = ?", sql)
}

func TestInsertSkipsNilFieldsAndZeroIdentifier(t *testing.T) {
	tpl := newTemplates("mysql")

	sql, args, err := tpl.Insert(&Blog{Title: "hello", AuthorID: 3})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO blog (`title`,`author_id`) VALUES (?,?)", sql)
	assert.Equal(t, []any{"hello", int64(3)}, args)

	content := "body"
	sql, args, err = tpl.Insert(&Blog{ID: 5, Title: "hello", Content: &content, AuthorID: 3})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO blog (`id`,`title`,`content`,`author_id`) VALUES (?,?,?,?)", sql)
	assert.Equal(t, []any{int64(5), "hello", &content, int64(3)}, args)
}

func TestUpdateByIdentifier(t *testing.T) {
	tpl := newTemplates("mysql")

	sql, args, err := tpl.Update(&Blog{ID: 5, Title: "new", AuthorID: 3})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE blog SET `title` = ?, `author_id` = ? WHERE `id` = ?", sql)
	assert.Equal(t, []any{"new", int64(3), int64(5)}, args)
}

func TestSaveChoosesInsertOrUpdate(t *testing.T) {
	tpl := newTemplates("sqlite")

	sql, _, err := tpl.Save(&Blog{Title: "draft"})
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO blog")

	sql, _, err = tpl.Save(&Blog{ID: 1, Title: "draft"})
	require.NoError(t, err)
	assert.Contains(t, sql, "UPDATE blog")

	isNew, err := tpl.IsNew(Blog{})
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestShardSuffixedWrites(t *testing.T) {
	tpl := newTemplates("sqlite")

	sql, args, err := tpl.Insert(&Event{Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO event_eu (region) VALUES (?)", sql)
	assert.Equal(t, []any{"eu"}, args)

	sql, _, err = tpl.Delete(&Event{ID: 2, Region: "us"})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM event_us WHERE id = ?", sql)

	sql, _, err = tpl.Insert(&Event{})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO event (region) VALUES (?)", sql)
}

func TestNothingToWrite(t *testing.T) {
	tpl := newTemplates("sqlite")

	_, _, err := tpl.Insert(&Note{})
	assert.ErrorIs(t, err, ErrNoColumns)

	_, _, err = tpl.Update(&Note{ID: 1})
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestOracleQuotesReservedColumns(t *testing.T) {
	sql, _, err := newTemplates("oracle").Insert(&Audit{Level: "warn", Comment: "disk"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO audit ("LEVEL","COMMENT") VALUES (:1,:2)`, sql)
}

func TestFindByPage(t *testing.T) {
	tpl := newTemplates("sqlite")

	sql, args, err := tpl.FindByPage(pipeline.FillEntity(map[string]any{}, blogType))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog", sql)
	assert.Empty(t, args)

	param := pipeline.FillEntity(map[string]any{
		KeyWhere:         "author_id = ?",
		pipeline.KeyArgs: []any{3},
		KeyGroupBy:       "author_id",
		KeyOrder:         "id desc",
	}, blogType)
	sql, args, err = tpl.FindByPage(param)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog WHERE author_id = ? GROUP BY author_id ORDER BY id desc", sql)
	assert.Equal(t, []any{3}, args)
}

func TestTemplateErrors(t *testing.T) {
	tpl := newTemplates("mysql")

	_, _, err := tpl.FindAll(nil)
	assert.ErrorIs(t, err, ErrNoEntity)

	_, _, err = tpl.FindByID(pipeline.FillEntity(1, reflect.TypeFor[Tag]()))
	assert.ErrorIs(t, err, ErrNoIdentifier)

	_, _, err = tpl.Update(&Tag{Name: "go"})
	assert.ErrorIs(t, err, ErrNoIdentifier)

	_, _, err = tpl.Insert(blogType)
	assert.Error(t, err)

	_, _, err = tpl.Delete((*Blog)(nil))
	assert.Error(t, err)
}

func TestStatements(t *testing.T) {
	tpl := newTemplates("mysql")
	m := Statements[Blog](tpl, "blogs")

	require.Len(t, m.Statements, 12)
	require.Len(t, m.Spec.Methods, 12)
	assert.Equal(t, blogType, m.Spec.Entity)

	byID := map[string]*pipeline.MappedStatement{}
	for _, stmt := range m.Statements {
		assert.Equal(t, "blogs", stmt.Namespace)
		byID[stmt.ID] = stmt
	}
	assert.Equal(t, types.KindSelect, byID["blogs.findAll"].Kind)
	assert.Equal(t, types.KindInsert, byID["blogs.insertAndGetId"].Kind)
	assert.Equal(t, types.KindDelete, byID["blogs.deleteById"].Kind)
	assert.Equal(t, types.KindSelect, byID["blogs.pagination"].Kind)

	log := logger.New("disabled", false)
	registry := mapper.NewRegistry(mapping.NewRegistry(log, true), log)
	require.NoError(t, registry.Register(m.Spec))

	assert.True(t, registry.Descriptor("blogs.pagination").FillResultMap)
	assert.True(t, registry.Descriptor("blogs.countAll").FillEntity)
	assert.False(t, registry.Descriptor("blogs.countAll").FillResultMap)
	assert.True(t, registry.Descriptor("blogs.insert").Empty())

	sql, _, err := byID["blogs.findAll"].Source(blogType)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM blog", sql)
}

func TestMySQLStatements(t *testing.T) {
	m := MySQLStatements("mysql")
	require.Len(t, m.Statements, 3)

	sqls := map[string]string{}
	for _, stmt := range m.Statements {
		sql, args, err := stmt.Source(nil)
		require.NoError(t, err)
		assert.Empty(t, args)
		sqls[stmt.ID] = sql
	}
	assert.Equal(t, map[string]string{
		"mysql.foundRows":    "SELECT FOUND_ROWS()",
		"mysql.affectedRows": "SELECT ROW_COUNT()",
		"mysql.lastInsertId": "SELECT LAST_INSERT_ID()",
	}, sqls)

	assert.False(t, pipeline.Decide(types.KindSelect, sqls["mysql.lastInsertId"]))
	assert.True(t, pipeline.Decide(types.KindSelect, sqls["mysql.foundRows"]))
}
