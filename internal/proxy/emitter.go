package proxy

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Emitter is the process-wide record publisher: the only state shared across
// connection workers, and it must be safe for concurrent publish from many
// of them at once.
type Emitter interface {
	// Publish delivers a completed exchange to all current subscribers.
	// Non-blocking: a slow subscriber drops records rather than stalling the
	// connection worker that owns the exchange.
	Publish(ExchangeRecord)
	// Subscribe registers a new observer and returns its channel plus a
	// cancel func that unregisters it and closes the channel.
	Subscribe(queueSize int) (<-chan ExchangeRecord, func())
}

// NoOpEmitter discards every record. Used when no observer is configured.
type NoOpEmitter struct{}

func (NoOpEmitter) Publish(ExchangeRecord)                                  {}
func (NoOpEmitter) Subscribe(int) (<-chan ExchangeRecord, func())           { return nil, func() {} }

// channelEmitter is the concrete Emitter. Subscribers are kept in a
// concurrent map (github.com/puzpuzpuz/xsync/v4) used here as a lock-free
// subscriber registry.
type channelEmitter struct {
	subs   *xsync.Map[int64, chan ExchangeRecord]
	nextID atomic.Int64
}

// NewEmitter constructs a process-wide Emitter.
func NewEmitter() Emitter {
	return &channelEmitter{subs: xsync.NewMap[int64, chan ExchangeRecord]()}
}

func (e *channelEmitter) Publish(rec ExchangeRecord) {
	e.subs.Range(func(_ int64, ch chan ExchangeRecord) bool {
		select {
		case ch <- rec:
		default:
			// Slow subscriber — drop rather than block the connection worker.
		}
		return true
	})
}

func (e *channelEmitter) Subscribe(queueSize int) (<-chan ExchangeRecord, func()) {
	if queueSize <= 0 {
		queueSize = 256
	}
	id := e.nextID.Add(1)
	ch := make(chan ExchangeRecord, queueSize)
	e.subs.Store(id, ch)
	cancel := func() {
		e.subs.Delete(id)
		close(ch)
	}
	return ch, cancel
}
