package dbpool

// Fetch selects how many rows Run reads from a result set.
type Fetch int

const (
	FetchAll Fetch = iota
	FetchOne
)

func (f Fetch) String() string {
	if f == FetchOne {
		return "one"
	}
	return "all"
}

// Statement is a fixed read-only query.
type Statement struct {
	Name  string
	SQL   string
	Fetch Fetch
}

var (
	ListTables = Statement{
		Name:  "list_tables",
		SQL:   "SELECT * FROM pg_catalog.pg_tables",
		Fetch: FetchAll,
	}
	PingTables = Statement{
		Name:  "ping_tables",
		SQL:   "SELECT 1 FROM pg_catalog.pg_tables",
		Fetch: FetchOne,
	}
)

// Rows holds the values read by Run, one slice per row.
type Rows [][]any

func (r Rows) Len() int { return len(r) }
