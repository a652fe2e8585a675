package encode

import "errors"

// Encoding failures wrap these sentinels with the offending value and the
// full coding path, so callers can match the class with errors.Is while the
// message stays diagnostic.
var (
	// ErrInvalidPath reports a malformed coding path: a row key without an
	// integer interpretation, a negative index, or nesting deeper than two
	// levels.
	ErrInvalidPath = errors.New("invalid coding path")

	// ErrInvalidFloat reports a NaN or infinity reaching the throwing float
	// strategy.
	ErrInvalidFloat = errors.New("floating-point value has no representation")

	// ErrInvalidSingleField reports a bare value standing for a whole row
	// whose width is known to be more than one field.
	ErrInvalidSingleField = errors.New("row is not a single field")

	// ErrInvalidSingleRow reports a bare value standing for the whole output
	// when rows were already encoded or the row width exceeds one field.
	ErrInvalidSingleRow = errors.New("output is not a single row of one field")
)
