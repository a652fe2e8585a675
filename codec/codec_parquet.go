package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// Parquet encodes records as one parquet file. The schema derives from the
// record type's parquet tags.
type Parquet[iType any] struct {
	// Compression (optional): "", "snappy", "gzip", "zstd"
	Compression string
}

// NewParquet builds a parquet codec.
func NewParquet[iType any](compression string) Parquet[iType] {
	return Parquet[iType]{Compression: compression}
}

func (e Parquet[iType]) FileExtension() string { return ".parquet" }

func (e Parquet[iType]) ContentType() string { return "application/vnd.apache.parquet" }

func (e Parquet[iType]) Encode(ctx context.Context, items []iType) ([]byte, error) {
	output := &bytes.Buffer{}
	if err := e.EncodeTo(ctx, items, output); err != nil {
		return nil, err
	}
	return output.Bytes(), nil
}

// EncodeTo writes the parquet file straight to w.
func (e Parquet[iType]) EncodeTo(ctx context.Context, items []iType, w io.Writer) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	options := make([]parquet.WriterOption, 0, 1)

	switch e.Compression {
	case CompressionNone:
		// no compression
	case CompressionSnappy:
		options = append(options, parquet.Compression(&parquet.Snappy))
	case CompressionGzip:
		options = append(options, parquet.Compression(&parquet.Gzip))
	case CompressionZstd:
		options = append(options, parquet.Compression(&parquet.Zstd))
	default:
		return fmt.Errorf("unsupported parquet compression: %q", e.Compression)
	}

	pw := parquet.NewGenericWriter[iType](w, options...)

	if _, err := pw.Write(items); err != nil {
		_ = pw.Close()
		return err
	}
	if err := pw.Close(); err != nil {
		return err
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
