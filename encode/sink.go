package encode

// Sink receives the cells produced by an encode session. The engine resolves
// every value to a (row, field) pair before handing it over; buffering,
// ordering and serialization are the sink's concern.
type Sink interface {
	// ExpectedFields reports the fixed row width, or 0 while it is unknown.
	ExpectedFields() int

	// RowsEncoded reports how many rows have been started so far.
	RowsEncoded() int

	// FieldIndex resolves a field key to its column index. Lookup failures
	// are the sink's own errors annotated with the given path; the engine
	// surfaces them unmodified.
	FieldIndex(key Key, path Path) (int, error)

	// WriteField stores one cell. Writes may arrive out of order and may
	// overwrite a previous cell at the same position.
	WriteField(text string, row, field int) error
}
