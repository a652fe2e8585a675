// Package batcher groups transformed records until a size, count or time
// threshold is reached.
package batcher

import (
	"errors"
	"time"

	"github.com/baldanca/csv-exporter/source"
)

type BatcherConfig struct {
	// MaxEstimatedInputBytes controls flush-by-size using an *estimated* input size.
	// This is meant to be cheap (e.g. raw message body size) and does not represent encoded output size.
	MaxEstimatedInputBytes int64
	// MaxItems controls flush-by-count. If <= 0, it's ignored.
	MaxItems      int
	FlushInterval time.Duration

	// ReuseBuffers enables a double-buffer strategy to reduce allocations.
	// NOTE: Output slices must remain immutable after Flush, so we swap buffers instead of resetting in-place.
	ReuseBuffers bool
}

var DefaultBatcherConfig = BatcherConfig{
	MaxEstimatedInputBytes: 5 * 1024 * 1024,
	FlushInterval:          5 * time.Minute,
}

func (c BatcherConfig) validate() error {
	if c.MaxEstimatedInputBytes <= 0 {
		return errors.New("MaxEstimatedInputBytes must be > 0")
	}
	if c.FlushInterval <= 0 {
		return errors.New("FlushInterval must be > 0")
	}
	if c.MaxItems < 0 {
		return errors.New("MaxItems must be >= 0")
	}
	return nil
}

type Batcher[iType any] struct {
	cfg BatcherConfig

	items []iType
	bytes int64
	acks  source.AckGroup

	spareItems []iType
	spareAcks  source.AckGroup

	deadline time.Time
	active   bool
}

func NewBatcher[iType any](cfg BatcherConfig) (*Batcher[iType], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := &Batcher[iType]{cfg: cfg}
	if cfg.ReuseBuffers {
		hint := cfg.MaxItems
		if hint <= 0 {
			hint = 4096
		}
		b.items = make([]iType, 0, hint)
		b.spareItems = make([]iType, 0, hint)
	}
	return b, nil
}

// Add appends one record to the pending batch and reports whether the caller
// should flush now. Negative size estimates count as zero.
func (b *Batcher[iType]) Add(now time.Time, item iType, msg source.Message, sizeBytes int64) (flushNow bool) {
	if !b.active {
		b.active = true
		b.deadline = now.Add(b.cfg.FlushInterval)
	}

	if sizeBytes < 0 {
		sizeBytes = 0
	}

	b.items = append(b.items, item)
	b.bytes += sizeBytes
	b.acks.Add(msg)

	if b.cfg.MaxItems > 0 && len(b.items) >= b.cfg.MaxItems {
		return true
	}
	if b.bytes >= b.cfg.MaxEstimatedInputBytes {
		return true
	}
	return false
}

func (b *Batcher[iType]) ShouldFlushTime(now time.Time) bool {
	if !b.active {
		return false
	}
	return !now.Before(b.deadline)
}

func (b *Batcher[iType]) Deadline() (t time.Time, ok bool) {
	if !b.active {
		return time.Time{}, false
	}
	return b.deadline, true
}

type Batch[iType any] struct {
	Items []iType
	Bytes int64
	Acks  source.AckGroup
}

// Flush returns the pending batch and resets the batcher.
//
// With ReuseBuffers, the returned slices stay valid until the next Flush;
// callers must be done with a batch before flushing again.
func (b *Batcher[iType]) Flush() Batch[iType] {
	out := Batch[iType]{
		Items: b.items,
		Bytes: b.bytes,
		Acks:  b.acks,
	}

	if b.cfg.ReuseBuffers {
		// Swap buffers so the returned slices remain stable.
		b.items, b.spareItems = b.spareItems[:0], b.items[:0]
		b.acks, b.spareAcks = b.spareAcks, b.acks
		b.acks.Reset()
	} else {
		b.items = nil
		b.acks = source.AckGroup{}
	}
	b.bytes = 0
	b.active = false
	b.deadline = time.Time{}

	return out
}
