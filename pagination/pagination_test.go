package pagination

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID int64
}

func TestOffsetLaw(t *testing.T) {
	tests := []struct {
		pageNo, pageSize, offset int
	}{
		{1, 10, 0},
		{2, 1, 1},
		{3, 25, 50},
		{0, 10, 0},
		{-4, 10, 0},
	}
	for _, tt := range tests {
		r := Request{PageNo: tt.pageNo, PageSize: tt.pageSize}
		assert.Equal(t, tt.offset, r.Offset(), "page %d size %d", tt.pageNo, tt.pageSize)
		assert.Equal(t, tt.pageSize, r.Limit())
	}
}

func TestDefaultRequestAndValidate(t *testing.T) {
	r := DefaultRequest()
	assert.Equal(t, Request{PageNo: 1, PageSize: 10, CountTotal: true}, r)
	assert.NoError(t, r.Validate())

	assert.ErrorIs(t, Request{PageNo: 1}.Validate(), ErrInvalidPageSize)
	assert.ErrorIs(t, Request{PageNo: 1, PageSize: -1}.Validate(), ErrInvalidPageSize)
}

func TestTotalPageLaw(t *testing.T) {
	tests := []struct {
		total int64
		size  int
		pages int
	}{
		{0, 10, 0},
		{10, 10, 1},
		{11, 10, 2},
		{2, 1, 2},
		{1, 10, 1},
	}
	for _, tt := range tests {
		p := NewPage[row](1, tt.size, true)
		p.SetTotal(tt.total)
		assert.Equal(t, tt.pages, p.TotalPage(), "total %d size %d", tt.total, tt.size)
	}

	uncounted := NewPage[row](1, 10, false)
	assert.Nil(t, uncounted.TotalNum)
	assert.Equal(t, 0, uncounted.TotalPage())
	assert.Equal(t, int64(0), uncounted.Total())
}

func TestAppendRows(t *testing.T) {
	p := NewPage[row](1, 10, true)
	require.NoError(t, p.AppendRows([]any{&row{ID: 1}, row{ID: 2}}))
	assert.Equal(t, []row{{ID: 1}, {ID: 2}}, p.Rows)

	ptrs := NewPage[*row](1, 10, true)
	r := &row{ID: 3}
	require.NoError(t, ptrs.AppendRows([]any{r}))
	assert.Same(t, r, ptrs.Rows[0])

	ints := NewPage[int](1, 10, false)
	require.NoError(t, ints.AppendRows([]any{int64(7)}))
	assert.Equal(t, []int{7}, ints.Rows)

	maps := NewPage[map[string]any](1, 10, false)
	require.NoError(t, maps.AppendRows([]any{map[string]any{"a": 1}}))
	assert.Len(t, maps.Rows, 1)
}

func TestAppendRowsIsAllOrNothing(t *testing.T) {
	p := NewPage[row](1, 10, true)
	err := p.AppendRows([]any{&row{ID: 1}, "oops"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.Empty(t, p.Rows)

	var pager Pager = p
	assert.Equal(t, p.Request, pager.PageRequest())
}

func TestConvertRows(t *testing.T) {
	ids, err := ConvertRows[int64]([]any{int64(1), 2, int32(3)})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	rows, err := ConvertRows[row]([]any{&row{ID: 4}, row{ID: 5}})
	require.NoError(t, err)
	assert.Equal(t, []row{{ID: 4}, {ID: 5}}, rows)

	_, err = ConvertRows[row]([]any{"nope"})
	assert.ErrorContains(t, err, "row 0")
}

func TestCountSQL(t *testing.T) {
	got, err := CountSQL("select a,b from t where x=1 order by a")
	require.NoError(t, err)
	assert.Equal(t, "select count(0) from t where x=1 ", got)

	got, err = CountSQL("SELECT id FROM users WHERE name = ?")
	require.NoError(t, err)
	assert.Equal(t, "select count(0) FROM users WHERE name = ?", got)

	got, err = CountSQL("select id from users Order By id desc")
	require.NoError(t, err)
	assert.Equal(t, "select count(0) from users ", got)

	_, err = CountSQL("select 1")
	assert.ErrorIs(t, err, ErrMissingFrom)
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		sql     string
		want    string
	}{
		{"mysql", "mysql", "select * from t", "select * from t limit 5,10"},
		{"mysql upper", "MySQL", "SELECT * FROM t", "SELECT * FROM t limit 5,10"},
		{"sqlite", "sqlite", "select * from t", "select * from t limit 5,10"},
		{"postgresql", "postgresql", "select * from t", "select * from t limit 10 offset 5"},
		{"hsqldb", "hsqldb", "select * from t", "select limit 5 10  * from t"},
		{"hsqldb mixed case", "hsqldb", "  SELECT id FROM t", "select limit 5 10  id FROM t"},
		{
			"oracle", "oracle", "select * from t",
			"SELECT * FROM (SELECT tmp.*, ROWNUM rn FROM (select * from t) tmp WHERE ROWNUM <= 15) WHERE rn > 5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rewrite(tt.dialect, tt.sql, 5, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRewriteErrors(t *testing.T) {
	_, err := Rewrite("db2", "select 1", 0, 10)
	var unsupported *UnsupportedDialectError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "db2", unsupported.Dialect)
	assert.Contains(t, err.Error(), `"db2"`)

	_, err = Rewrite("hsqldb", "with x as (select 1) select * from x", 0, 10)
	assert.Error(t, err)
}

func TestCheckDialect(t *testing.T) {
	for _, d := range Dialects() {
		assert.NoError(t, CheckDialect(d))
	}
	assert.NoError(t, CheckDialect("ORACLE"))
	assert.Error(t, CheckDialect(""))
	assert.Error(t, CheckDialect("mssql"))
}

func TestDataTables(t *testing.T) {
	var req DataTablesRequest
	require.NoError(t, json.Unmarshal([]byte(`{"sEcho":"3","iDisplayStart":20,"iDisplayLength":10,"sColumns":"id,name"}`), &req))

	pr := req.PageRequest()
	assert.Equal(t, Request{PageNo: 3, PageSize: 10, CountTotal: true}, pr)
	assert.Equal(t, 20, pr.Offset())

	assert.Equal(t, DefaultPageSize, DataTablesRequest{}.PageRequest().PageSize)

	page := NewPage[row](pr.PageNo, pr.PageSize, true)
	page.SetTotal(42)
	resp := NewDataTablesResponse(page, req)
	assert.Equal(t, int64(42), resp.TotalRecords)
	assert.Equal(t, "3", resp.Echo)
	assert.Equal(t, "id,name", resp.Columns)
	assert.NotNil(t, resp.Data)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"aaData":[]`)
	assert.Contains(t, string(out), `"iTotalRecords":42`)
}
