package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

// correlator matches outbound, host-originated control requests to their
// control_response by request_id. Entries are added by the sender and
// removed by the inbound worker (on a matching response), the timeout
// goroutine, or transport close — whichever fires first — so no slot
// outlives its request (spec.md §9 "Design Notes").
type correlator struct {
	mu      sync.Mutex
	pending map[string]chan protocol.ControlResponsePayload
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[string]chan protocol.ControlResponsePayload)}
}

// register opens a slot for requestID and returns the channel its response
// will be delivered on.
func (c *correlator) register(requestID string) chan protocol.ControlResponsePayload {
	ch := make(chan protocol.ControlResponsePayload, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	return ch
}

func (c *correlator) remove(requestID string) {
	c.mu.Lock()
	delete(c.pending, requestID)
	c.mu.Unlock()
}

// complete delivers payload to the slot for requestID, if one is open.
// Reports whether a slot was found.
func (c *correlator) complete(requestID string, payload protocol.ControlResponsePayload) bool {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- payload:
	default:
	}
	return true
}

// wait blocks on ch until a response arrives, ctx is cancelled, or timeout
// elapses, cleaning up the slot on every path but the happy one (the
// inbound worker already removed it there).
func (c *correlator) wait(ctx context.Context, requestID string, ch chan protocol.ControlResponsePayload, timeout time.Duration) (protocol.ControlResponsePayload, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.ControlResponsePayload{}, ErrTransportClosed
		}
		return resp, nil
	case <-timer.C:
		c.remove(requestID)
		return protocol.ControlResponsePayload{}, fmt.Errorf("%w: request_id %s", ErrRequestTimeout, requestID)
	case <-ctx.Done():
		c.remove(requestID)
		return protocol.ControlResponsePayload{}, ctx.Err()
	}
}

// closeAll drains every outstanding slot on transport close, so a
// host-originated request in flight at shutdown resolves with an error
// rather than blocking its caller forever.
func (c *correlator) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
