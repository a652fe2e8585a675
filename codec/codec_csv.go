package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	csvexporter "github.com/baldanca/csv-exporter"
)

// CSV encodes one CSV row per record, optionally compressing the text.
type CSV[iType any] struct {
	// Config controls layout, headers and value strategies. The zero value
	// writes headerless comma-separated rows.
	Config csvexporter.Config

	// Compression (optional): "", "gzip", "zstd"
	Compression string
}

// NewCSV builds a codec under csvexporter.DefaultConfig, so headers are
// derived from the record type.
func NewCSV[iType any](compression string) CSV[iType] {
	return CSV[iType]{Config: csvexporter.DefaultConfig, Compression: compression}
}

func (c CSV[iType]) FileExtension() string {
	switch c.Compression {
	case CompressionGzip:
		return ".csv.gz"
	case CompressionZstd:
		return ".csv.zst"
	default:
		return ".csv"
	}
}

func (c CSV[iType]) ContentType() string {
	switch c.Compression {
	case CompressionGzip:
		return "application/gzip"
	case CompressionZstd:
		return "application/zstd"
	default:
		return "text/csv"
	}
}

func (c CSV[iType]) Encode(ctx context.Context, items []iType) ([]byte, error) {
	output := &bytes.Buffer{}
	if err := c.EncodeTo(ctx, items, output); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}

// EncodeTo writes the rows straight to w, compressing on the way when
// configured.
func (c CSV[iType]) EncodeTo(ctx context.Context, items []iType, w io.Writer) error {
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
		return fmt.Errorf("unsupported csv compression: %q", c.Compression)
	}

	encErr := c.encodeRows(items, dst)
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

func (c CSV[iType]) encodeRows(items []iType, dst io.Writer) error {
	enc, err := csvexporter.NewEncoder(dst, c.Config)
	if err != nil {
		return err
	}
	if err := enc.Encode(items); err != nil {
		return err
	}
	return enc.Close()
}
