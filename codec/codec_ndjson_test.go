package codec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
)

var (
	_ Codec[testItem]       = NDJSON[testItem]{}
	_ StreamCodec[testItem] = NDJSON[testItem]{}
)

func TestNDJSON_FileExtensionByCompression(t *testing.T) {
	cases := []struct{ compression, want string }{
		{CompressionNone, ".ndjson"},
		{CompressionGzip, ".ndjson.gz"},
		{CompressionZstd, ".ndjson.zst"},
	}
	for _, tc := range cases {
		if got := NewNDJSON[testItem](tc.compression).FileExtension(); got != tc.want {
			t.Fatalf("FileExtension() = %q; want %q", got, tc.want)
		}
	}
}

func TestNDJSON_ContentTypeByCompression(t *testing.T) {
	cases := []struct{ compression, want string }{
		{CompressionNone, "application/x-ndjson"},
		{CompressionGzip, "application/gzip"},
		{CompressionZstd, "application/zstd"},
	}
	for _, tc := range cases {
		if got := NewNDJSON[testItem](tc.compression).ContentType(); got != tc.want {
			t.Fatalf("ContentType() = %q; want %q", got, tc.want)
		}
	}
}

func TestNDJSON_Encode_OneDocumentPerLine(t *testing.T) {
	items := []testItem{
		{ID: 1, Name: "a", Value: 1.25},
		{ID: 2, Name: "b", Value: 2.5},
	}

	c := NewNDJSON[testItem](CompressionNone)
	data, err := c.Encode(context.Background(), items)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	want := "{\"ID\":1,\"Name\":\"a\",\"Value\":1.25}\n{\"ID\":2,\"Name\":\"b\",\"Value\":2.5}\n"
	if string(data) != want {
		t.Fatalf("expected %q, got %q", want, string(data))
	}
}

func TestNDJSON_Encode_DoesNotEscapeHTML(t *testing.T) {
	items := []testItem{{ID: 1, Name: "<b>&</b>", Value: 0}}

	c := NewNDJSON[testItem](CompressionNone)
	data, err := c.Encode(context.Background(), items)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	want := "{\"ID\":1,\"Name\":\"<b>&</b>\",\"Value\":0}\n"
	if string(data) != want {
		t.Fatalf("expected %q, got %q", want, string(data))
	}
}

func TestNDJSON_Encode_GzipRoundTrip(t *testing.T) {
	items := []testItem{{ID: 3, Name: "z", Value: 9}}

	c := NewNDJSON[testItem](CompressionGzip)
	data, err := c.Encode(context.Background(), items)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	text, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := zr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := "{\"ID\":3,\"Name\":\"z\",\"Value\":9}\n"
	if string(text) != want {
		t.Fatalf("expected %q, got %q", want, string(text))
	}
}

func TestNDJSON_Encode_UnsupportedCompression(t *testing.T) {
	c := NewNDJSON[testItem]("brotli")
	if _, err := c.Encode(context.Background(), []testItem{{ID: 1}}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNDJSON_Encode_ContextCanceledBefore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewNDJSON[testItem](CompressionNone)
	_, err := c.Encode(ctx, []testItem{{ID: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNDJSON_Encode_EmptyItems(t *testing.T) {
	c := NewNDJSON[testItem](CompressionNone)
	data, err := c.Encode(context.Background(), nil)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty output, got %q", data)
	}
}
