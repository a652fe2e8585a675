package encode

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Marshaler is implemented by values that render their own field text. It
// takes precedence over encoding.TextMarshaler and the reflection walk.
type Marshaler interface {
	MarshalCSV() (string, error)
}

// Encoder turns Go values into positioned fields on a Sink. The value handed
// to Encode at the root describes a whole file, elements one level down
// describe rows and their members describe fields. Anything deeper has no
// place in the output grid and fails with ErrInvalidPath.
//
// An Encoder holds per-session state and is not safe for concurrent use.
type Encoder struct {
	sink Sink
	cfg  Config
	path Path
}

// NewEncoder binds an encode session to sink. Unset strategies in cfg fall
// back to the package defaults.
func NewEncoder(sink Sink, cfg Config) *Encoder {
	if sink == nil {
		panic("sink is required")
	}
	return &Encoder{sink: sink, cfg: cfg.normalize()}
}

// Path reports the coding path of the value currently being encoded. The
// backing array is reused between values, so callers that hold on to it must
// copy it first.
func (e *Encoder) Path() Path {
	return e.path
}

// Encode writes v at the current coding path. Containers (structs, maps,
// slices, arrays) are walked member by member; everything else lands as a
// single field, row or file depending on depth.
func (e *Encoder) Encode(v any) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.encode(v)
}

// EncodeString writes s as one field at the current coding path.
func (e *Encoder) EncodeString(s string) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.write(s)
}

// EncodeBool writes b as "true" or "false".
func (e *Encoder) EncodeBool(b bool) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.write(strconv.FormatBool(b))
}

// EncodeInt64 writes n in base 10.
func (e *Encoder) EncodeInt64(n int64) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.write(strconv.FormatInt(n, 10))
}

// EncodeUint64 writes n in base 10.
func (e *Encoder) EncodeUint64(n uint64) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.write(strconv.FormatUint(n, 10))
}

// EncodeFloat64 writes the shortest round-trip text for f, deferring to the
// float strategy when f is NaN or infinite.
func (e *Encoder) EncodeFloat64(f float64) error {
	return e.encodeFloatBits(f, 64)
}

// EncodeNil writes an empty field.
func (e *Encoder) EncodeNil() error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.write("")
}

func (e *Encoder) encodeFloatBits(f float64, bits int) error {
	c, err := newCell(e)
	if err != nil {
		return err
	}
	return c.encodeFloat(f, bits)
}

// encodeOpaque handles values outside the well-known set: marshaler
// implementations first, then the reflection walk.
func (e *Encoder) encodeOpaque(v any) error {
	switch m := v.(type) {
	case Marshaler:
		text, err := m.MarshalCSV()
		if err != nil {
			return fmt.Errorf("marshal csv at %q: %w", e.path.String(), err)
		}
		return e.EncodeString(text)
	case encoding.TextMarshaler:
		text, err := m.MarshalText()
		if err != nil {
			return fmt.Errorf("marshal text at %q: %w", e.path.String(), err)
		}
		return e.EncodeString(string(text))
	}
	return e.encodeReflect(reflect.ValueOf(v))
}

func (e *Encoder) encodeReflect(rv reflect.Value) error {
	if !rv.IsValid() {
		return e.EncodeNil()
	}
	switch rv.Kind() {
	case reflect.String:
		return e.EncodeString(rv.String())
	case reflect.Bool:
		return e.EncodeBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.EncodeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return e.EncodeUint64(rv.Uint())
	case reflect.Float32:
		return e.encodeFloatBits(rv.Float(), 32)
	case reflect.Float64:
		return e.encodeFloatBits(rv.Float(), 64)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return e.EncodeNil()
		}
		return e.Encode(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return e.encodeSequence(rv)
	case reflect.Struct:
		return e.encodeStruct(rv)
	case reflect.Map:
		return e.encodeMap(rv)
	default:
		return fmt.Errorf("cannot encode %s at %q", rv.Type(), e.path.String())
	}
}

// encodeSequence places each element one level below the current path. At the
// root the first element continues from the rows already encoded, so several
// appends in one session keep extending the same file.
func (e *Encoder) encodeSequence(rv reflect.Value) error {
	base := 0
	if len(e.path) == 0 {
		base = e.sink.RowsEncoded()
	}
	n := rv.Len()
	for i := 0; i < n; i++ {
		if err := e.encodeAt(IndexKey(base+i), rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// encodeStruct writes a struct as one row when reached from the root, or as
// the fields of the row being encoded. Field order follows the declaration.
func (e *Encoder) encodeStruct(rv reflect.Value) error {
	switch len(e.path) {
	case 0:
		return e.encodeAt(IndexKey(e.sink.RowsEncoded()), rv.Interface())
	case 1:
		return e.encodeRowStruct(rv)
	default:
		for _, f := range cachedFields(rv.Type()) {
			if err := e.encodeAt(NameKey(f.name), fieldInterface(rv, f)); err != nil {
				return err
			}
		}
		return nil
	}
}

// encodeRowStruct writes each visible field of one row. The field index is
// resolved once per field; the write itself goes through the unchecked field
// shortcut instead of a second full path resolve.
func (e *Encoder) encodeRowStruct(rv reflect.Value) error {
	row, _ := e.path[0].Index() // validated by the enclosing cell's resolve
	depth := len(e.path)
	for _, f := range cachedFields(rv.Type()) {
		key := NameKey(f.name)
		e.path = append(e.path, key)
		idx, err := e.sink.FieldIndex(key, e.path)
		if err == nil {
			err = newFieldCell(e, row, idx).encode(fieldInterface(rv, f))
		}
		e.path = e.path[:depth]
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeMap writes a map keyed by field name. Keys are sorted so the walk is
// deterministic; only string keys can address columns.
func (e *Encoder) encodeMap(rv reflect.Value) error {
	if rv.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("cannot encode map keyed by %s at %q", rv.Type().Key(), e.path.String())
	}
	switch len(e.path) {
	case 0:
		return e.encodeAt(IndexKey(e.sink.RowsEncoded()), rv.Interface())
	case 1:
		return e.encodeRowMap(rv)
	default:
		for _, name := range sortedMapKeys(rv) {
			if err := e.encodeAt(NameKey(name), rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())).Interface()); err != nil {
				return err
			}
		}
		return nil
	}
}

func (e *Encoder) encodeRowMap(rv reflect.Value) error {
	row, _ := e.path[0].Index() // validated by the enclosing cell's resolve
	depth := len(e.path)
	keyType := rv.Type().Key()
	for _, name := range sortedMapKeys(rv) {
		key := NameKey(name)
		e.path = append(e.path, key)
		idx, err := e.sink.FieldIndex(key, e.path)
		if err == nil {
			err = newFieldCell(e, row, idx).encode(rv.MapIndex(reflect.ValueOf(name).Convert(keyType)).Interface())
		}
		e.path = e.path[:depth]
		if err != nil {
			return err
		}
	}
	return nil
}

// encodeAt runs one Encode with key pushed onto the coding path.
func (e *Encoder) encodeAt(key Key, v any) error {
	e.path = append(e.path, key)
	err := e.Encode(v)
	e.path = e.path[:len(e.path)-1]
	return err
}

func sortedMapKeys(rv reflect.Value) []string {
	names := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		names = append(names, k.String())
	}
	sort.Strings(names)
	return names
}
