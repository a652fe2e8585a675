package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baldanca/csv-exporter/batcher"
	"github.com/baldanca/csv-exporter/codec"
	"github.com/baldanca/csv-exporter/sink"
	"github.com/baldanca/csv-exporter/source"
	"github.com/baldanca/csv-exporter/transformer"
)

type KeyFunc[iType any] func(ctx context.Context, batch batcher.Batch[iType]) (key string, err error)

type Exporter[iType any] struct {
	batcherConfig batcher.BatcherConfig
	source        source.Source
	transformer   transformer.Transformer[iType]
	codec         codec.Codec[iType]
	sink          sink.Sink
	keyFunc       KeyFunc[iType]

	// retries
	retry    RetryPolicy // for sink write
	ackRetry RetryPolicy // for ack commit

	batcher *batcher.Batcher[iType]

	// flush workers (enabled via Run(ctx, workers, queue))
	flushOnce    sync.Once
	flushJobs    chan flushJob[iType]
	flushErrCh   chan error
	flushCancel  context.CancelFunc
	flushWG      sync.WaitGroup
	flushWorkers int
	flushQueue   int

	// lease
	leaseEnabled              bool
	leaseVisibilityTimeoutSec int32
	leaseRenewEvery           time.Duration
}

type flushJob[iType any] struct {
	key   string
	items []iType
	acks  source.AckGroup
}

func New[iType any](
	batcherConfig batcher.BatcherConfig,
	source source.Source,
	transformer transformer.Transformer[iType],
	codec codec.Codec[iType],
	sink sink.Sink,
	keyFunc KeyFunc[iType],
) (*Exporter[iType], error) {
	if source == nil {
		return nil, fmt.Errorf("source is nil")
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer is nil")
	}
	if codec == nil {
		return nil, fmt.Errorf("codec is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if keyFunc == nil {
		return nil, fmt.Errorf("keyFunc is nil")
	}

	b, err := batcher.NewBatcher[iType](batcherConfig)
	if err != nil {
		return nil, err
	}

	return &Exporter[iType]{
		batcherConfig: batcherConfig,
		source:        source,
		transformer:   transformer,
		codec:         codec,
		sink:          sink,
		keyFunc:       keyFunc,
		retry:         nopRetry{},
		ackRetry:      nopRetry{},
		batcher:       b,
	}, nil
}

func NewDefault[iType any](
	source source.Source,
	transformer transformer.Transformer[iType],
	codec codec.Codec[iType],
	sink sink.Sink,
	keyFunc KeyFunc[iType],
) (*Exporter[iType], error) {
	return New(batcher.DefaultBatcherConfig, source, transformer, codec, sink, keyFunc)
}

func (e *Exporter[iType]) SetRetryPolicy(p RetryPolicy) {
	if p == nil {
		e.retry = nopRetry{}
		return
	}
	e.retry = p
}

func (e *Exporter[iType]) SetAckRetryPolicy(p RetryPolicy) {
	if p == nil {
		e.ackRetry = nopRetry{}
		return
	}
	e.ackRetry = p
}

func (e *Exporter[iType]) EnableLease(visibilityTimeoutSec int32, renewEvery time.Duration) {
	e.leaseEnabled = true
	e.leaseVisibilityTimeoutSec = visibilityTimeoutSec
	e.leaseRenewEvery = renewEvery
}

// Run starts the export loop. If flushWorkers > 1, flush (encode/write/ack) is done
// concurrently by a worker pool and the export loop only enqueues flush jobs.
// flushQueue bounds the number of in-flight flushes (memory bound). Fail-fast.
func (e *Exporter[iType]) Run(ctx context.Context, flushWorkers, flushQueue int) error {
	if flushWorkers < 1 {
		flushWorkers = 1
	}
	if flushQueue < 1 {
		flushQueue = flushWorkers
	}

	e.flushWorkers = flushWorkers
	e.flushQueue = flushQueue
	e.maybeStartFlushPool(ctx)

	for {
		// surface worker errors quickly
		if err := e.pollFlushErr(); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return e.flushRemainingOnStop(ctx)
		}

		recvCtx := ctx
		var cancel context.CancelFunc
		if deadline, ok := e.batcher.Deadline(); ok {
			recvCtx, cancel = context.WithDeadline(ctx, deadline)
		}
		msg, err := e.source.Receive(recvCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			// Deadline hit => time-based flush.
			if errors.Is(err, context.DeadlineExceeded) {
				if err := e.flush(ctx); err != nil {
					return err
				}
				continue
			}

			// Graceful stop signaled by the source: drain what is buffered
			// before exiting.
			if errors.Is(err, source.ErrClosed) {
				return e.flushRemainingOnStop(ctx)
			}
			if errors.Is(err, context.Canceled) && ctx.Err() == nil {
				return e.flushRemainingOnStop(ctx)
			}

			if ctx.Err() != nil {
				return e.flushRemainingOnStop(ctx)
			}
			return err
		}

		flushNow, err := e.processMessage(ctx, msg)
		if err != nil {
			return err
		}
		if flushNow {
			if err := e.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (e *Exporter[iType]) maybeStartFlushPool(ctx context.Context) {
	if e.flushWorkers <= 1 {
		return
	}

	e.flushOnce.Do(func() {
		flushCtx, cancel := context.WithCancel(ctx)
		e.flushCancel = cancel

		e.flushJobs = make(chan flushJob[iType], e.flushQueue)
		e.flushErrCh = make(chan error, 1) // first error wins (fail-fast)

		e.flushWG.Add(e.flushWorkers)
		for w := 0; w < e.flushWorkers; w++ {
			go e.flushWorker(flushCtx)
		}
	})
}

func (e *Exporter[iType]) flushWorker(ctx context.Context) {
	defer e.flushWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-e.flushJobs:
			if !ok {
				return
			}
			if err := e.flushJob(ctx, job); err != nil {
				// fail-fast: report first error and cancel
				select {
				case e.flushErrCh <- err:
				default:
				}
				if e.flushCancel != nil {
					e.flushCancel()
				}
				return
			}
		}
	}
}

func (e *Exporter[iType]) pollFlushErr() error {
	if e.flushErrCh == nil {
		return nil
	}
	select {
	case err := <-e.flushErrCh:
		return err
	default:
		return nil
	}
}

func (e *Exporter[iType]) processMessage(ctx context.Context, msg source.Message) (flushNow bool, err error) {
	env := msg.Data()

	out, err := e.transformer.Transform(ctx, env)
	if err != nil {
		_ = msg.Fail(ctx, fmt.Errorf("%w: %w", ErrTransform, err))
		return false, nil
	}

	var sizeBytes int64
	if n, ok := msg.EstimatedSizeBytes(); ok {
		sizeBytes = n
	} else {
		var sizeErr error
		sizeBytes, sizeErr = estimateSizeBytesFallback(env.Payload)
		if sizeErr != nil {
			_ = msg.Fail(ctx, sizeErr)
			return false, nil
		}
	}

	now := time.Now()
	flushNow = e.batcher.Add(now, out, msg, sizeBytes)
	return flushNow, nil
}

func (e *Exporter[iType]) flush(ctx context.Context) error {
	// surface worker errors quickly
	if err := e.pollFlushErr(); err != nil {
		return err
	}

	batch := e.batcher.Flush()
	if len(batch.Items) == 0 {
		return nil
	}

	key, err := e.keyFunc(ctx, batch)
	if err != nil {
		return err
	}

	// If pool enabled: snapshot and enqueue.
	if e.flushJobs != nil && e.flushWorkers > 1 {
		items := append([]iType(nil), batch.Items...) // snapshot slice
		acks := batch.Acks.Snapshot()                 // snapshot internal slices

		job := flushJob[iType]{key: key, items: items, acks: acks}

		select {
		case e.flushJobs <- job:
			return nil
		case err := <-e.flushErrCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Single-threaded fallback (no pool)
	return e.flushJob(ctx, flushJob[iType]{key: key, items: batch.Items, acks: batch.Acks})
}

func (e *Exporter[iType]) flushJob(ctx context.Context, job flushJob[iType]) error {
	// Start lease if enabled and source supports it.
	var stopLease func()
	if e.leaseEnabled {
		if ext, ok := e.source.(source.VisibilityExtender); ok {
			stopLease = e.startJobLease(ctx, ext, job.acks.Metas())
		}
	}
	if stopLease != nil {
		defer stopLease()
	}

	// 1) Prefer streaming when both codec + sink support it.
	if streamed, err := tryStreamWrite(ctx, e.codec, e.sink, e.retry, job.key, job.items); streamed {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSinkWrite, err)
		}
		// Ack only after successful write (with retries).
		return e.ackCommit(ctx, job.acks)
	}

	// 2) Fallback: in-memory Encode + Write.
	data, err := e.codec.Encode(ctx, job.items)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	contentType := e.codec.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	writeReq := sink.WriteRequest{Key: job.key, Data: data, ContentType: contentType}

	// Retry sink write
	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.sink.Write(ctx, writeReq)
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkWrite, err)
	}

	// Ack only after successful write (with retries)
	return e.ackCommit(ctx, job.acks)
}

func (e *Exporter[iType]) ackCommit(ctx context.Context, acks source.AckGroup) error {
	err := e.ackRetry.Do(ctx, func(ctx context.Context) error {
		return acks.Commit(ctx, e.source)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAck, err)
	}
	return nil
}

func (e *Exporter[iType]) startJobLease(
	parent context.Context,
	ext source.VisibilityExtender,
	metas []source.AckMetadata,
) (stop func()) {
	if len(metas) == 0 {
		return func() {}
	}

	renewEvery := e.leaseRenewEvery
	if renewEvery <= 0 {
		renewEvery = 20 * time.Second // safe default
	}

	ctx, cancel := context.WithCancel(parent)

	go func() {
		t := time.NewTicker(renewEvery)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				// A failed extension fails the whole job (fail-fast) via flushErrCh.
				if err := ext.ExtendVisibilityBatch(ctx, metas, e.leaseVisibilityTimeoutSec); err != nil {
					select {
					case e.flushErrCh <- err:
					default:
					}
					if e.flushCancel != nil {
						e.flushCancel()
					}
					return
				}
			}
		}
	}()

	return cancel
}

func (e *Exporter[iType]) flushRemainingOnStop(ctx context.Context) error {
	// Best effort: keep values/deadlines but ignore cancellation, and don't block forever.
	base := context.WithoutCancel(ctx)
	stopCtx, cancel := context.WithTimeout(base, 10*time.Second)
	defer cancel()

	// flush what's currently in the batcher (enqueue or inline)
	if err := e.flush(stopCtx); err != nil {
		return err
	}

	// If no pool, done.
	if e.flushJobs == nil || e.flushWorkers <= 1 {
		return nil
	}

	// close queue so workers exit after draining
	close(e.flushJobs)

	done := make(chan struct{})
	go func() {
		e.flushWG.Wait()
		close(done)
	}()

	select {
	case err := <-e.flushErrCh:
		return err
	case <-done:
		return e.pollFlushErr()
	case <-stopCtx.Done():
		return stopCtx.Err()
	}
}

// DefaultKeyFunc partitions by time and avoids collisions (good for concurrent flush workers).
func DefaultKeyFunc[iType any](c codec.Codec[iType]) KeyFunc[iType] {
	ext := c.FileExtension()
	if ext == "" || ext[0] != '.' {
		ext = ".bin"
	}
	return func(ctx context.Context, batch batcher.Batch[iType]) (string, error) {
		_ = ctx
		_ = batch

		now := time.Now().UTC()
		return fmt.Sprintf("%04d/%02d/%02d/%02d/%d-%s%s",
			now.Year(), int(now.Month()), now.Day(), now.Hour(), now.UnixNano(), uuid.NewString(), ext,
		), nil
	}
}

func estimateSizeBytesFallback(v any) (int64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}
