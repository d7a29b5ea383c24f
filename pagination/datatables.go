package pagination

// DataTablesRequest is the server-side processing request of the legacy
// (1.9) DataTables jQuery plugin.
type DataTablesRequest struct {
	Echo          string `json:"sEcho"`
	Columns       string `json:"sColumns"`
	DisplayStart  int    `json:"iDisplayStart"`
	DisplayLength int    `json:"iDisplayLength"`
	ColumnCount   int    `json:"iColumns"`
	Search        string `json:"sSearch"`
	Regex         bool   `json:"bRegex"`
	SortColumn    int    `json:"iSortCol_0"`
	SortDir       string `json:"sSortDir_0"`
}

// PageRequest converts the display window into a counted page request.
// A non-positive display length falls back to the default page size.
func (r DataTablesRequest) PageRequest() Request {
	size := r.DisplayLength
	if size <= 0 {
		size = DefaultPageSize
	}
	start := max(r.DisplayStart, 0)
	return Request{PageNo: start/size + 1, PageSize: size, CountTotal: true}
}

// DataTablesResponse is the matching legacy DataTables response.
type DataTablesResponse[T any] struct {
	TotalRecords        int64  `json:"iTotalRecords"`
	TotalDisplayRecords int64  `json:"iTotalDisplayRecords"`
	Echo                string `json:"sEcho"`
	Columns             string `json:"sColumns"`
	Data                []T    `json:"aaData"`
}

// NewDataTablesResponse answers req with the rows and total of page.
func NewDataTablesResponse[T any](page *Page[T], req DataTablesRequest) DataTablesResponse[T] {
	rows := page.Rows
	if rows == nil {
		rows = []T{}
	}
	return DataTablesResponse[T]{
		TotalRecords:        page.Total(),
		TotalDisplayRecords: page.Total(),
		Echo:                req.Echo,
		Columns:             req.Columns,
		Data:                rows,
	}
}
