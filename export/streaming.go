package export

import (
	"context"
	"io"

	"github.com/baldanca/csv-exporter/codec"
	"github.com/baldanca/csv-exporter/sink"
)

type encodeToWriter[iType any] struct {
	ctx   context.Context
	sc    codec.StreamCodec[iType]
	items []iType
}

func (w encodeToWriter[iType]) WriteTo(dst io.Writer) error {
	return w.sc.EncodeTo(w.ctx, w.items, dst)
}

func tryStreamWrite[iType any](
	ctx context.Context,
	c codec.Codec[iType],
	s sink.Sink,
	retry RetryPolicy,
	key string,
	items []iType,
) (streamed bool, err error) {

	sc, ok := c.(codec.StreamCodec[iType])
	if !ok {
		return false, nil
	}
	ss, ok := s.(sink.StreamSink)
	if !ok {
		return false, nil
	}

	if retry == nil {
		retry = nopRetry{}
	}

	ct := c.ContentType()
	if ct == "" {
		ct = "application/octet-stream"
	}

	req := sink.StreamWriteRequest{
		Key:         key,
		ContentType: ct,
		Writer:      encodeToWriter[iType]{ctx: ctx, sc: sc, items: items},
	}

	err = retry.Do(ctx, func(ctx context.Context) error {
		return ss.WriteStream(ctx, req)
	})

	return true, err
}
