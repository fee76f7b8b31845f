package observability

import (
	"log"
	"sync"
)

// Emitter fans transaction events out to an EventStore over a single
// background goroutine, so a slow or unavailable store never adds
// latency to a request. The channel is bounded; once full, the oldest
// buffered event is dropped to make room for the newest one, on the
// theory that a live-but-overloaded store recovering later still wants
// to see what's happening now rather than replaying a backlog.
type Emitter struct {
	store  EventStore
	ch     chan Event
	done   chan struct{}
	once   sync.Once
	closed chan struct{}

	seqMu sync.Mutex
	seq   map[string]uint64
}

// DefaultBufferSize is the channel capacity NewEmitter uses when the
// caller doesn't specify one.
const DefaultBufferSize = 1024

// NewEmitter starts an Emitter draining into store with the given buffer
// size (DefaultBufferSize if bufferSize <= 0).
func NewEmitter(store EventStore, bufferSize int) *Emitter {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	e := &Emitter{
		store:  store,
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		seq:    make(map[string]uint64),
	}
	go e.drain()
	return e
}

// Emit enqueues e for durable writing, first assigning it the next
// sequence number for its transaction (0, 1, 2, ... in call order). It
// never blocks: if the channel is full, the oldest queued event is
// discarded to make room. Emit itself never returns an error; store
// failures are logged by the drain goroutine and never surfaced to the
// caller.
func (e *Emitter) Emit(ev Event) {
	ev.Seq = e.nextSeq(ev.TransactionID)

	select {
	case e.ch <- ev:
		return
	default:
	}

	// Channel full: drop the oldest queued event and retry once.
	select {
	case <-e.ch:
	default:
	}
	select {
	case e.ch <- ev:
	default:
		log.Printf("observability: dropped event %s for transaction %s (buffer full)", ev.Type, ev.TransactionID)
	}
}

// nextSeq returns the next sequence number for transactionID, starting
// at 0 and incrementing once per Emit call for that transaction.
func (e *Emitter) nextSeq(transactionID string) uint64 {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	n := e.seq[transactionID]
	e.seq[transactionID] = n + 1
	return n
}

// ForgetTransaction drops the sequence counter kept for transactionID.
// The pipeline driver calls this once a transaction's final event has
// been emitted, so a long-lived Emitter doesn't accumulate one counter
// entry per transaction for the life of the process.
func (e *Emitter) ForgetTransaction(transactionID string) {
	e.seqMu.Lock()
	defer e.seqMu.Unlock()
	delete(e.seq, transactionID)
}

func (e *Emitter) drain() {
	defer close(e.closed)
	for {
		select {
		case ev := <-e.ch:
			if err := e.store.Append(ev); err != nil {
				log.Printf("observability: event store append failed for transaction %s: %v", ev.TransactionID, err)
			}
		case <-e.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case ev := <-e.ch:
					if err := e.store.Append(ev); err != nil {
						log.Printf("observability: event store append failed for transaction %s: %v", ev.TransactionID, err)
					}
				default:
					return
				}
			}
		}
	}
}

// Close stops the drain goroutine after flushing any buffered events. It
// blocks until the goroutine exits. Safe to call more than once.
func (e *Emitter) Close() {
	e.once.Do(func() {
		close(e.done)
	})
	<-e.closed
}
