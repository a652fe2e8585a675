package writer

import (
	"fmt"

	"github.com/baldanca/csv-exporter/encode"
)

// Output is the encode sink backing one CSV file. It buffers positioned
// cells, resolves field names against an optional header row and serializes
// everything through a Writer when closed.
//
// Cells may arrive out of order and overwrite earlier ones; rows are padded
// to a uniform width on Close so short rows still line up.
type Output struct {
	w       *Writer
	headers []string
	index   map[string]int
	rows    [][]string
	width   int
	closed  bool
}

// NewOutput binds a fresh cell buffer to w. With headers, field names resolve
// to their column and the header row is emitted first; without them fields
// resolve positionally.
func NewOutput(w *Writer, headers []string) *Output {
	if w == nil {
		panic("writer is required")
	}
	o := &Output{w: w, width: len(headers)}
	if len(headers) > 0 {
		o.headers = append([]string(nil), headers...)
		o.index = make(map[string]int, len(headers))
		for i, h := range o.headers {
			o.index[h] = i
		}
	}
	return o
}

// ExpectedFields reports the header width, or the widest row begun when no
// headers were given.
func (o *Output) ExpectedFields() int { return o.width }

// RowsEncoded reports how many rows have been started.
func (o *Output) RowsEncoded() int { return len(o.rows) }

// FieldIndex resolves keys through the headers first, then falls back to the
// positional interpretation for keys that carry one.
func (o *Output) FieldIndex(key encode.Key, path encode.Path) (int, error) {
	if o.index != nil {
		if i, ok := o.index[key.Name()]; ok {
			return i, nil
		}
	}
	if i, ok := key.Index(); ok && i >= 0 && (o.index == nil || i < len(o.headers)) {
		return i, nil
	}
	return 0, fmt.Errorf("unknown field %q at %q", key.Name(), path.String())
}

// WriteField stores one cell, growing the grid as needed.
func (o *Output) WriteField(text string, row, field int) error {
	if o.closed {
		return fmt.Errorf("output already closed")
	}
	if row < 0 || field < 0 {
		return fmt.Errorf("cell (%d,%d) out of range", row, field)
	}
	if len(o.headers) > 0 && field >= len(o.headers) {
		return fmt.Errorf("field %d out of range: rows have %d columns", field, len(o.headers))
	}
	for len(o.rows) <= row {
		o.rows = append(o.rows, nil)
	}
	r := o.rows[row]
	for len(r) <= field {
		r = append(r, "")
	}
	r[field] = text
	o.rows[row] = r
	if len(o.headers) == 0 && field+1 > o.width {
		o.width = field + 1
	}
	return nil
}

// Close serializes the header and the buffered rows and flushes the
// underlying writer. Closing again is a no-op.
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if len(o.headers) > 0 {
		if err := o.w.WriteRow(o.headers); err != nil {
			return err
		}
	}
	for _, r := range o.rows {
		for len(r) < o.width {
			r = append(r, "")
		}
		if err := o.w.WriteRow(r); err != nil {
			return err
		}
	}
	return o.w.Flush()
}
