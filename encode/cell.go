package encode

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// cell encodes exactly one value at a resolved focus. Cells are throwaway:
// the traversal builds a fresh one per value and each performs at most one
// sink write.
type cell struct {
	enc   *Encoder
	focus focus
}

// newCell resolves a cell from the encoder's current coding path.
func newCell(e *Encoder) (cell, error) {
	f, err := resolveFocus(e.path, e.sink)
	if err != nil {
		return cell{}, err
	}
	return cell{enc: e, focus: f}, nil
}

// newFieldCell installs a field focus directly; the caller resolved the row
// and column one level up, so the checked path is skipped.
func newFieldCell(e *Encoder, row, field int) cell {
	return cell{enc: e, focus: fieldFocus(row, field)}
}

func (c cell) encode(v any) error {
	switch x := v.(type) {
	case nil:
		return c.write("")
	case string:
		return c.write(x)
	case bool:
		return c.write(strconv.FormatBool(x))
	case int:
		return c.write(strconv.FormatInt(int64(x), 10))
	case int8:
		return c.write(strconv.FormatInt(int64(x), 10))
	case int16:
		return c.write(strconv.FormatInt(int64(x), 10))
	case int32:
		return c.write(strconv.FormatInt(int64(x), 10))
	case int64:
		return c.write(strconv.FormatInt(x, 10))
	case uint:
		return c.write(strconv.FormatUint(uint64(x), 10))
	case uint8:
		return c.write(strconv.FormatUint(uint64(x), 10))
	case uint16:
		return c.write(strconv.FormatUint(uint64(x), 10))
	case uint32:
		return c.write(strconv.FormatUint(uint64(x), 10))
	case uint64:
		return c.write(strconv.FormatUint(x, 10))
	case uintptr:
		return c.write(strconv.FormatUint(uint64(x), 10))
	case float32:
		return c.encodeFloat(float64(x), 32)
	case float64:
		return c.encodeFloat(x, 64)
	case time.Time:
		return c.enc.cfg.Date(c.enc, x)
	case *time.Time:
		if x == nil {
			return c.write("")
		}
		return c.enc.cfg.Date(c.enc, *x)
	case []byte:
		return c.enc.cfg.Data(c.enc, x)
	case apd.Decimal:
		return c.enc.cfg.Decimal(c.enc, &x)
	case *apd.Decimal:
		if x == nil {
			return c.write("")
		}
		return c.enc.cfg.Decimal(c.enc, x)
	case url.URL:
		return c.write(x.Path)
	case *url.URL:
		if x == nil {
			return c.write("")
		}
		return c.write(x.Path)
	default:
		return c.enc.encodeOpaque(v)
	}
}

// encodeFloat writes the shortest round-trip text for finite values and
// consults the float strategy for everything else.
func (c cell) encodeFloat(f float64, bits int) error {
	if !isBadFloat(f) {
		return c.write(strconv.FormatFloat(f, 'g', -1, bits))
	}
	text, err := c.enc.cfg.Float(f)
	if err != nil {
		return fmt.Errorf("cannot encode %v at %q: %w", f, c.enc.path.String(), err)
	}
	return c.write(text)
}

func isBadFloat(f float64) bool {
	// NaN compares unequal to itself; the subtraction catches the infinities.
	return f != f || f-f != 0
}

// write pushes the text to the sink at the cell's focus. Row and file foci
// are the single-value shortcuts: a row must hold exactly one field, a file
// exactly one such row.
func (c cell) write(text string) error {
	sink := c.enc.sink
	switch c.focus.kind {
	case focusField:
		return sink.WriteField(text, c.focus.row, c.focus.field)
	case focusRow:
		if n := sink.ExpectedFields(); n > 1 {
			return fmt.Errorf("%w: row %d holds %d fields (at %q)",
				ErrInvalidSingleField, c.focus.row, n, c.enc.path.String())
		}
		return sink.WriteField(text, c.focus.row, 0)
	default: // focusFile
		if rows := sink.RowsEncoded(); rows != 0 {
			return fmt.Errorf("%w: %d row(s) already encoded (at %q)",
				ErrInvalidSingleRow, rows, c.enc.path.String())
		}
		if n := sink.ExpectedFields(); n > 1 {
			return fmt.Errorf("%w: rows hold %d fields (at %q)",
				ErrInvalidSingleRow, n, c.enc.path.String())
		}
		return sink.WriteField(text, 0, 0)
	}
}
