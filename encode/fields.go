package encode

import (
	"encoding"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/apd/v3"
)

// structField is one encodable column of a struct type.
type structField struct {
	name  string
	index []int
}

var (
	fieldCache sync.Map // reflect.Type -> []structField

	marshalerType     = reflect.TypeOf((*Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	urlType           = reflect.TypeOf(url.URL{})
	decimalType       = reflect.TypeOf(apd.Decimal{})
)

// cachedFields lists the encodable fields of t in declaration order. Exported
// members of embedded structs are promoted in place of their container.
func cachedFields(t reflect.Type) []structField {
	if v, ok := fieldCache.Load(t); ok {
		return v.([]structField)
	}
	v, _ := fieldCache.LoadOrStore(t, scanFields(t))
	return v.([]structField)
}

func scanFields(t reflect.Type) []structField {
	visible := reflect.VisibleFields(t)
	fields := make([]structField, 0, len(visible))
	for _, f := range visible {
		if f.PkgPath != "" {
			continue // unexported
		}
		tag, tagged := f.Tag.Lookup("csv")
		if tag == "-" {
			continue
		}
		if f.Anonymous && !tagged && promotesMembers(f.Type) {
			continue
		}
		name := f.Name
		if tagged {
			if n, _, _ := strings.Cut(tag, ","); n != "" {
				name = n
			}
		}
		fields = append(fields, structField{name: name, index: f.Index})
	}
	return fields
}

// promotesMembers reports whether an embedded field of type t contributes its
// exported members instead of rendering as one column. Types the cell layer
// renders directly, and types that marshal themselves, stay single columns.
func promotesMembers(t reflect.Type) bool {
	if t.Implements(marshalerType) || t.Implements(textMarshalerType) {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != urlType && t != decimalType
}

// fieldInterface reads one field value, tolerating nil embedded pointers on
// the way. Unreachable fields encode as empty.
func fieldInterface(rv reflect.Value, f structField) any {
	fv, err := rv.FieldByIndexErr(f.index)
	if err != nil || !fv.IsValid() {
		return nil
	}
	return fv.Interface()
}

// StructHeaders reports the column names values of type t encode under,
// honoring csv tags, in declaration order. Pointer types are dereferenced
// first.
func StructHeaders(t reflect.Type) ([]string, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot derive headers from %v", t)
	}
	fields := cachedFields(t)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names, nil
}
