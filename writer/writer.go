package writer

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Options shape the serialized text. The zero value writes comma-separated
// rows with bare \n terminators, quoting only when required.
type Options struct {
	// Delimiter separates fields within a row. Zero selects the comma.
	Delimiter rune

	// CRLF terminates rows with \r\n instead of \n.
	CRLF bool

	// ForceQuotes wraps every field in quotes, not only the ones that need
	// escaping.
	ForceQuotes bool
}

// DefaultOptions is the plain comma-separated form.
var DefaultOptions = Options{Delimiter: ','}

// Validate rejects delimiters that collide with the quoting rules.
func (o Options) Validate() error {
	switch o.Delimiter {
	case 0:
		return nil
	case '"', '\r', '\n', utf8.RuneError:
		return fmt.Errorf("invalid delimiter %q", o.Delimiter)
	}
	if !utf8.ValidRune(o.Delimiter) {
		return fmt.Errorf("invalid delimiter %q", o.Delimiter)
	}
	return nil
}

// Writer serializes rows of already-positioned fields as RFC 4180 text.
// Fields containing the delimiter, a quote or a line break are quoted and
// inner quotes doubled.
type Writer struct {
	bw   *bufio.Writer
	opts Options
}

// NewWriter wraps dst, which is required. Rows are buffered; Flush settles
// them on dst.
func NewWriter(dst io.Writer, opts Options) (*Writer, error) {
	if dst == nil {
		panic("destination writer is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	return &Writer{bw: bufio.NewWriter(dst), opts: opts}, nil
}

// WriteRow serializes one row and its terminator.
func (w *Writer) WriteRow(fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if _, err := w.bw.WriteRune(w.opts.Delimiter); err != nil {
				return err
			}
		}
		if err := w.writeField(field); err != nil {
			return err
		}
	}
	if w.opts.CRLF {
		if err := w.bw.WriteByte('\r'); err != nil {
			return err
		}
	}
	return w.bw.WriteByte('\n')
}

// Flush settles buffered rows on the destination.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) writeField(field string) error {
	if !w.needsQuotes(field) {
		_, err := w.bw.WriteString(field)
		return err
	}
	if err := w.bw.WriteByte('"'); err != nil {
		return err
	}
	for {
		i := strings.IndexByte(field, '"')
		if i < 0 {
			if _, err := w.bw.WriteString(field); err != nil {
				return err
			}
			break
		}
		if _, err := w.bw.WriteString(field[:i+1]); err != nil {
			return err
		}
		if err := w.bw.WriteByte('"'); err != nil {
			return err
		}
		field = field[i+1:]
	}
	return w.bw.WriteByte('"')
}

func (w *Writer) needsQuotes(field string) bool {
	if w.opts.ForceQuotes {
		return true
	}
	return strings.ContainsRune(field, w.opts.Delimiter) ||
		strings.ContainsAny(field, "\"\r\n")
}
