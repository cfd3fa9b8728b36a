package transport

import (
	"sync"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// BackpressurePolicy governs what happens when a consumer of the broadcast
// sink falls behind its buffer (spec.md §4.7). The default is Block.
type BackpressurePolicy int

const (
	BackpressureBlock BackpressurePolicy = iota
	BackpressureDropNewest
	BackpressureDropOldest
)

const defaultBroadcastBufferSize = 256

// broadcastSink is the single fan-out point every inbound record — regular
// message, control request, or control response — is offered to,
// regardless of how the inbound worker also routed it. The blocking
// iterator API (Transport.MessageIterator) is just a consumer of this
// channel; push-style consumers read Transport.ReceiveMessages() directly.
type broadcastSink struct {
	ch     chan protocol.ParsedRecord
	policy BackpressurePolicy

	mu     sync.Mutex
	closed bool
}

func newBroadcastSink(bufSize int, policy BackpressurePolicy) *broadcastSink {
	if bufSize <= 0 {
		bufSize = defaultBroadcastBufferSize
	}
	return &broadcastSink{
		ch:     make(chan protocol.ParsedRecord, bufSize),
		policy: policy,
	}
}

// offer delivers rec according to the configured backpressure policy. It is
// only ever called from the single inbound worker, so the drop-oldest path
// below needs no additional synchronization against concurrent offers.
func (s *broadcastSink) offer(rec protocol.ParsedRecord) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	switch s.policy {
	case BackpressureDropNewest:
		select {
		case s.ch <- rec:
		default:
		}
	case BackpressureDropOldest:
		for {
			select {
			case s.ch <- rec:
				return
			default:
			}
			select {
			case <-s.ch:
			default:
				return
			}
		}
	default: // BackpressureBlock
		s.ch <- rec
	}
}

// Chan exposes the underlying channel for push-style consumers.
func (s *broadcastSink) Chan() <-chan protocol.ParsedRecord {
	return s.ch
}

func (s *broadcastSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
