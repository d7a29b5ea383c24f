package mapping

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-sqlmapper/database/types"
	"github.com/gaborage/go-sqlmapper/logger"
)

type Audit struct {
	CreatedAt time.Time
	UpdatedBy string `db:"modifier"`
}

type UserAccount struct {
	Audit
	ID         int64  `db:"id,pk"`
	UserName   string
	AccessDate *time.Time
	HTTPStatus int
	Password   string `db:"-"`
	internal   string
}

type Order struct {
	OrderID int64 `pk:"true"`
	Region  string
}

func (Order) TableName() string { return "orders" }

func (o Order) ShardSuffix() string { return o.Region }

type LegacyRow struct {
	FirstName string
}

func (LegacyRow) MapCamelCase() bool { return false }

type badDuplicate struct {
	A string `db:"name"`
	B string `db:"NAME"`
}

type badKeys struct {
	A int64 `db:"a,pk"`
	B int64 `pk:"true"`
}

type badTag struct {
	A string `db:"a; drop table x"`
}

func newRegistry() *Registry {
	return NewRegistry(logger.New("disabled", false), true)
}

func TestNameConvert(t *testing.T) {
	tests := map[string]string{
		"title":       "title",
		"accessDate":  "access_date",
		"HTTPStatus":  "http_status",
		"UserAccount": "user_account",
		"ID":          "id",
		"userID":      "user_id",
		"getHTTPUrl":  "get_http_url",
		"":            "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NameConvert(in, true))
		})
	}
	assert.Equal(t, "accessDate", NameConvert("accessDate", false))
}

func TestResolveScansStruct(t *testing.T) {
	meta, err := newRegistry().Resolve(&UserAccount{})
	require.NoError(t, err)

	assert.Equal(t, "user_account", meta.Table)
	assert.Equal(t, []string{"created_at", "modifier", "id", "user_name", "access_date", "http_status"}, meta.ColumnNames())
	require.NotNil(t, meta.ID)
	assert.Equal(t, "id", meta.ID.Name)
	assert.Equal(t, "ID", meta.ID.Field)

	col, ok := meta.Column("MODIFIER")
	require.True(t, ok)
	assert.Equal(t, "Audit.UpdatedBy", col.Field)
	assert.Equal(t, []int{0, 1}, col.Index)

	_, ok = meta.FieldColumn("Password")
	assert.False(t, ok)
	assert.Nil(t, meta.Suffix)
}

func TestResolveHonorsDeclarationInterfaces(t *testing.T) {
	r := newRegistry()

	meta, err := r.Resolve(Order{})
	require.NoError(t, err)
	assert.Equal(t, "orders", meta.Table)
	assert.Equal(t, "order_id", meta.ID.Name)
	assert.Equal(t, "orders_eu", meta.TableFor(Order{Region: "eu"}))
	assert.Equal(t, "orders_us", meta.TableFor(&Order{Region: "us"}))
	assert.Equal(t, "orders", meta.TableFor(Order{}))

	legacy, err := r.Resolve(LegacyRow{})
	require.NoError(t, err)
	assert.Equal(t, "LegacyRow", legacy.Table)
	assert.Equal(t, []string{"FirstName"}, legacy.ColumnNames())
}

func TestResolveRejectsInvalidDeclarations(t *testing.T) {
	r := newRegistry()

	_, err := r.Resolve(badDuplicate{})
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	_, err = r.Resolve(badKeys{})
	assert.ErrorIs(t, err, ErrMultipleKeys)

	_, err = r.Resolve(badTag{})
	assert.ErrorContains(t, err, "invalid column name")

	_, err = r.Resolve(42)
	assert.ErrorIs(t, err, ErrNotStruct)

	_, err = r.Resolve(nil)
	assert.ErrorIs(t, err, ErrNotStruct)
}

func TestResolveIsMemoizedUnderConcurrency(t *testing.T) {
	r := newRegistry()

	const workers = 32
	results := make([]*EntityMetadata, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta, err := r.Resolve((*UserAccount)(nil))
			assert.NoError(t, err)
			results[i] = meta
		}(i)
	}
	wg.Wait()

	for _, meta := range results {
		assert.Same(t, results[0], meta)
	}

	again, err := r.ResolveType(reflect.TypeFor[UserAccount]())
	require.NoError(t, err)
	assert.Same(t, results[0], again)
	assert.Equal(t, int64(1), r.scans.Load())

	before := r.scans.Load()
	_, _ = r.Resolve(UserAccount{})
	assert.Equal(t, before, r.scans.Load())
}

func TestRegisterManualDeclaration(t *testing.T) {
	r := newRegistry()
	typ := reflect.TypeFor[Order]()

	err := r.Register(&EntityMetadata{
		Type:  typ,
		Table: "archived_orders",
		Columns: []Column{
			{Name: "oid", Field: "OrderID", Index: []int{0}, Type: reflect.TypeFor[int64](), PrimaryKey: true},
		},
	})
	require.NoError(t, err)

	meta, err := r.Resolve(Order{})
	require.NoError(t, err)
	assert.Equal(t, "archived_orders", meta.Table)
	require.NotNil(t, meta.ID)
	assert.Equal(t, "oid", meta.ID.Name)

	assert.Error(t, r.Register(&EntityMetadata{Type: typ, Columns: []Column{{Name: "a"}, {Name: "A"}}}))
	assert.Error(t, r.Register(&EntityMetadata{Type: typ, Columns: []Column{{Name: "a", PrimaryKey: true}, {Name: "b", PrimaryKey: true}}}))
	assert.Error(t, r.Register(nil))
}

func TestResolveNameFallsBackToEmpty(t *testing.T) {
	r := newRegistry()
	_, err := r.Resolve(Order{})
	require.NoError(t, err)

	assert.Equal(t, "orders", r.ResolveName("Order").Table)
	assert.Equal(t, "orders", r.ResolveName("github.com/gaborage/go-sqlmapper/mapping.Order").Table)

	missing := r.ResolveName("com.example.Missing")
	require.NotNil(t, missing)
	assert.True(t, missing.IsEmpty())
	assert.Empty(t, missing.Table)
}

func TestEntityValues(t *testing.T) {
	meta, err := newRegistry().Resolve(Order{})
	require.NoError(t, err)

	id, err := meta.IDValue(&Order{OrderID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = meta.Value(&UserAccount{})
	assert.Error(t, err)

	_, err = meta.Value((*Order)(nil))
	assert.Error(t, err)
}

func TestNewRowMapping(t *testing.T) {
	meta, err := newRegistry().Resolve(UserAccount{})
	require.NoError(t, err)

	m := NewRowMapping("users.GeneratedResultMap", meta)
	assert.Equal(t, "users.GeneratedResultMap", m.ID)
	assert.Len(t, m.Entries, len(meta.Columns))
	require.NotNil(t, m.IDEntry())
	assert.Equal(t, "id", m.IDEntry().Column)

	entry, ok := m.Lookup("USER_NAME")
	require.True(t, ok)
	assert.Equal(t, "UserName", entry.Property)

	assert.True(t, NewRowMapping("x", nil).Empty())
	assert.Nil(t, NewRowMapping("x", Empty()).IDEntry())
}

func queryRows(t *testing.T, columns []string, values ...[]any) *sql.Rows {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rows := sqlmock.NewRows(columns)
	for _, v := range values {
		row := make([]driver.Value, len(v))
		for i := range v {
			row[i] = v[i]
		}
		rows.AddRow(row...)
	}
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	result, err := db.Query("SELECT")
	require.NoError(t, err)
	t.Cleanup(func() { result.Close() })
	return result
}

func TestScanRowsEntities(t *testing.T) {
	meta, err := newRegistry().Resolve(UserAccount{})
	require.NoError(t, err)
	m := NewRowMapping("users.GeneratedResultMap", meta)

	accessed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := queryRows(t, []string{"ID", "user_name", "access_date", "http_status", "modifier", "extra"},
		[]any{int64(1), []byte("ada"), accessed, "200", nil, "ignored"},
		[]any{int64(2), "bob", nil, int64(404), "root", nil},
	)

	out, err := ScanRows(rows, m, types.DefaultRowBounds())
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0].(*UserAccount)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "ada", first.UserName)
	require.NotNil(t, first.AccessDate)
	assert.True(t, accessed.Equal(*first.AccessDate))
	assert.Equal(t, 200, first.HTTPStatus)
	assert.Empty(t, first.UpdatedBy)

	second := out[1].(*UserAccount)
	assert.Nil(t, second.AccessDate)
	assert.Equal(t, 404, second.HTTPStatus)
	assert.Equal(t, "root", second.UpdatedBy)
}

func TestScanRowsBounds(t *testing.T) {
	rows := queryRows(t, []string{"id"}, []any{int64(1)}, []any{int64(2)}, []any{int64(3)}, []any{int64(4)})

	out, err := ScanRows(rows, nil, types.RowBounds{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3)}, out)
}

func TestScanRowsOffsetBeyondEnd(t *testing.T) {
	rows := queryRows(t, []string{"id"}, []any{int64(1)})

	out, err := ScanRows(rows, nil, types.RowBounds{Offset: 5, Limit: types.NoRowLimit})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestScanRowsMaps(t *testing.T) {
	rows := queryRows(t, []string{"id", "name"}, []any{int64(1), []byte("ada")})

	out, err := ScanRows(rows, nil, types.DefaultRowBounds())
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": int64(1), "name": "ada"}}, out)
}

func TestScanRowsConversionError(t *testing.T) {
	meta, err := newRegistry().Resolve(UserAccount{})
	require.NoError(t, err)

	rows := queryRows(t, []string{"http_status"}, []any{"not-a-number"})
	_, err = ScanRows(rows, NewRowMapping("x", meta), types.DefaultRowBounds())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_status")
}

type scannerField struct {
	Name sql.NullString
}

func TestAssign(t *testing.T) {
	var s scannerField
	v := reflect.ValueOf(&s).Elem()
	require.NoError(t, Assign(v.Field(0), "x"))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, s.Name)

	var b bool
	require.NoError(t, Assign(reflect.ValueOf(&b).Elem(), int64(1)))
	assert.True(t, b)

	var small int8
	err := Assign(reflect.ValueOf(&small).Elem(), int64(1000))
	assert.Error(t, err)

	var f float32
	require.NoError(t, Assign(reflect.ValueOf(&f).Elem(), []byte("1.5")))
	assert.InDelta(t, 1.5, f, 0.0001)

	var raw []byte
	require.NoError(t, Assign(reflect.ValueOf(&raw).Elem(), []byte("abc")))
	assert.Equal(t, []byte("abc"), raw)

	var unsupported struct{ X int }
	assert.Error(t, Assign(reflect.ValueOf(&unsupported).Elem(), "x"))
}
