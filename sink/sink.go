package sink

import (
	"context"
	"io"
	"strings"
)

type WriteRequest struct {
	Key         string
	Data        []byte
	ContentType string
}

// StreamWriter represents something that can write its contents to a destination writer.
// This avoids allocating function closures in hot paths.
type StreamWriter interface {
	WriteTo(w io.Writer) error
}

type StreamWriteRequest struct {
	Key         string
	ContentType string
	// Writer streams directly to the destination.
	// Implementations must return when done writing.
	Writer StreamWriter
}

type Sink interface {
	Write(ctx context.Context, req WriteRequest) error
}

// StreamSink is an optional interface implemented by sinks that can stream data directly
// to the destination without buffering the full payload in memory.
type StreamSink interface {
	WriteStream(ctx context.Context, req StreamWriteRequest) error
}

// objectKey joins a normalized prefix with the request key. Keeps S3
// semantics: no path cleaning.
func objectKey(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
