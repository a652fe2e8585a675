package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// NDJSON encodes one JSON document per line, optionally compressing the text.
// Every line, including the last, ends with a newline.
type NDJSON[iType any] struct {
	// Compression (optional): "", "gzip", "zstd"
	Compression string
}

func NewNDJSON[iType any](compression string) NDJSON[iType] {
	return NDJSON[iType]{Compression: compression}
}

func (c NDJSON[iType]) FileExtension() string {
	switch c.Compression {
	case CompressionGzip:
		return ".ndjson.gz"
	case CompressionZstd:
		return ".ndjson.zst"
	default:
		return ".ndjson"
	}
}

func (c NDJSON[iType]) ContentType() string {
	switch c.Compression {
	case CompressionGzip:
		return "application/gzip"
	case CompressionZstd:
		return "application/zstd"
	default:
		return "application/x-ndjson"
	}
}

func (c NDJSON[iType]) Encode(ctx context.Context, items []iType) ([]byte, error) {
	output := &bytes.Buffer{}
	if err := c.EncodeTo(ctx, items, output); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}

func (c NDJSON[iType]) EncodeTo(ctx context.Context, items []iType, w io.Writer) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	dst := w
	var finish func() error

	switch c.Compression {
	case CompressionNone:
		// no compression
	case CompressionGzip:
		zw := gzip.NewWriter(w)
		dst = zw
		finish = zw.Close
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		dst = zw
		finish = zw.Close
	default:
		return fmt.Errorf("unsupported ndjson compression: %q", c.Compression)
	}

	encErr := c.encodeLines(items, dst)
	if finish != nil {
		// The compressor is closed even when encoding failed; zstd keeps
		// worker goroutines alive until then.
		if err := finish(); err != nil && encErr == nil {
			encErr = fmt.Errorf("close compressor: %w", err)
		}
	}
	if encErr != nil {
		return encErr
	}

	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

func (c NDJSON[iType]) encodeLines(items []iType, dst io.Writer) error {
	enc := json.NewEncoder(dst)
	enc.SetEscapeHTML(false)

	for i, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("ndjson encode item %d: %w", i, err)
		}
	}
	return nil
}
