package transformer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/baldanca/csv-exporter/source"
)

// Transformer converts one value into another.
//
// In this project it typically converts a source.Envelope into a typed record.
type Transformer[O any] interface {
	Transform(ctx context.Context, in source.Envelope) (O, error)
}

// JSON decodes JSON payloads into O.
//
// It accepts string, []byte and json.RawMessage payloads, which covers what
// the bundled sources produce.
type JSON[O any] struct{}

func (JSON[O]) Transform(ctx context.Context, in source.Envelope) (O, error) {
	var out O

	var data []byte
	switch p := in.Payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	case json.RawMessage:
		data = p
	default:
		return out, fmt.Errorf("unsupported payload type %T", in.Payload)
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode json payload: %w", err)
	}
	return out, nil
}
