package encode

import (
	"strconv"
	"strings"
)

// Key is a single segment of a coding path. The first segment addresses a
// row, the second a field within that row.
type Key interface {
	// Name returns the segment's textual identity, used for header lookups.
	Name() string

	// Index returns the segment's integer interpretation when it has one.
	// Row keys must carry an index; field keys may resolve by name instead.
	Index() (int, bool)
}

// IndexKey addresses a row or field by position.
type IndexKey int

func (k IndexKey) Name() string       { return strconv.Itoa(int(k)) }
func (k IndexKey) Index() (int, bool) { return int(k), true }

// NameKey addresses a field by column name. Purely numeric names keep their
// integer interpretation so positional lookups work through them too.
type NameKey string

func (k NameKey) Name() string { return string(k) }

func (k NameKey) Index() (int, bool) {
	n, err := strconv.Atoi(string(k))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Path is the ordered list of keys from the output root down to the value
// being encoded: empty for the whole output, one key for a row, two keys
// for a field.
type Path []Key

func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	names := make([]string, len(p))
	for i, k := range p {
		names[i] = k.Name()
	}
	return strings.Join(names, "/")
}
