package encode

import "fmt"

type focusKind uint8

const (
	focusFile focusKind = iota
	focusRow
	focusField
)

// focus is the output granularity a container is bound to: the whole file,
// one row, or one cell. It is fixed at container creation.
type focus struct {
	kind  focusKind
	row   int
	field int
}

// resolveFocus maps a coding path onto the output grid. Depth selects the
// granularity; row keys must carry a non-negative index, field keys resolve
// through the sink.
func resolveFocus(path Path, sink Sink) (focus, error) {
	switch len(path) {
	case 0:
		return focus{kind: focusFile}, nil
	case 1:
		row, err := rowIndex(path[0], path)
		if err != nil {
			return focus{}, err
		}
		return focus{kind: focusRow, row: row}, nil
	case 2:
		row, err := rowIndex(path[0], path)
		if err != nil {
			return focus{}, err
		}
		field, err := sink.FieldIndex(path[1], path)
		if err != nil {
			return focus{}, err
		}
		return focus{kind: focusField, row: row, field: field}, nil
	default:
		return focus{}, fmt.Errorf("%w: nesting exceeds two levels at %q", ErrInvalidPath, path.String())
	}
}

func rowIndex(key Key, path Path) (int, error) {
	n, ok := key.Index()
	if !ok {
		return 0, fmt.Errorf("%w: row key %q has no integer interpretation at %q", ErrInvalidPath, key.Name(), path.String())
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative row index %d at %q", ErrInvalidPath, n, path.String())
	}
	return n, nil
}

// fieldFocus builds a field focus directly from indices the caller already
// resolved. It skips path validation; the traversal uses it when writing the
// members of a row whose position is known.
func fieldFocus(row, field int) focus {
	return focus{kind: focusField, row: row, field: field}
}
