// Package csvexporter renders Go values as CSV text. Slices become rows,
// struct fields and map entries become named columns, and the value
// strategies decide how dates, decimals, binary blobs and non-finite floats
// are written.
package csvexporter

import (
	"bytes"
	"encoding"
	"fmt"
	"io"
	"net/url"
	"reflect"

	"github.com/cockroachdb/apd/v3"

	"github.com/baldanca/csv-exporter/encode"
	"github.com/baldanca/csv-exporter/writer"
)

// Marshaler lets a type render its own field text.
type Marshaler = encode.Marshaler

// Marshal renders v under DefaultConfig. A slice or array becomes one row
// per element; a single struct or map becomes one row.
func Marshal(v any) ([]byte, error) {
	return MarshalWith(DefaultConfig, v)
}

// MarshalWith renders v under cfg.
func MarshalWith(cfg Config, v any) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, cfg)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encoder streams values to a destination as CSV rows. Encode may be called
// repeatedly; rows accumulate and are serialized on Close.
type Encoder struct {
	cfg    Config
	dst    io.Writer
	out    *writer.Output
	enc    *encode.Encoder
	closed bool
}

// NewEncoder builds a streaming session over dst, which is required.
func NewEncoder(dst io.Writer, cfg Config) (*Encoder, error) {
	if dst == nil {
		panic("destination writer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{cfg: cfg, dst: dst}, nil
}

// Encode adds v to the output: a slice or array appends one row per element,
// anything else appends a single row. Headers settle when the first value
// arrives; later values must fit them.
func (e *Encoder) Encode(v any) error {
	if e.closed {
		return fmt.Errorf("encoder already closed")
	}
	if e.enc == nil {
		if err := e.begin(v); err != nil {
			return err
		}
	}
	return e.enc.Encode(v)
}

// Close serializes everything encoded so far and flushes the destination.
// Closing again is a no-op.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	if e.enc == nil {
		if err := e.begin(nil); err != nil {
			return err
		}
	}
	e.closed = true
	return e.out.Close()
}

func (e *Encoder) begin(first any) error {
	headers := e.cfg.Headers
	if len(headers) == 0 && e.cfg.AutoHeaders {
		h, err := deriveHeaders(first)
		if err != nil {
			return err
		}
		headers = h
	}
	w, err := writer.NewWriter(e.dst, e.cfg.writerOptions())
	if err != nil {
		return err
	}
	e.out = writer.NewOutput(w, headers)
	e.enc = encode.NewEncoder(e.out, e.cfg.encodeConfig())
	return nil
}

var (
	marshalerType     = reflect.TypeOf((*encode.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	urlType           = reflect.TypeOf(url.URL{})
	decimalType       = reflect.TypeOf(apd.Decimal{})
)

// deriveHeaders inspects the first value's row type. Structs contribute
// their column names; maps have no fixed key order and require explicit
// headers; primitives and self-marshaling types stay headerless.
func deriveHeaders(v any) ([]string, error) {
	t := rowType(reflect.TypeOf(v))
	if t == nil {
		return nil, nil
	}
	if t.Implements(marshalerType) || t.Implements(textMarshalerType) {
		return nil, nil
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
		if t.Implements(marshalerType) || t.Implements(textMarshalerType) {
			return nil, nil
		}
	}
	switch {
	case t == urlType, t == decimalType:
		return nil, nil
	case t.Kind() == reflect.Map:
		return nil, fmt.Errorf("map records need explicit headers")
	case t.Kind() == reflect.Struct:
		return encode.StructHeaders(t)
	default:
		return nil, nil
	}
}

// rowType unwraps outer pointers and one slice or array level to find the
// type that will become a row. Element pointers are kept so marshaler
// implementations on them are seen.
func rowType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		t = t.Elem()
	}
	return t
}
