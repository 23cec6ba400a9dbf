package repository

// scanner abstracts over *sql.Row and *sql.Rows so the same scan helpers work
// for single- and multi-row queries.
type scanner interface {
	Scan(dest ...any) error
}
