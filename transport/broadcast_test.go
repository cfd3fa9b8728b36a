package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bazelment/yoloswe/agentwire/protocol"
)

func TestBroadcastSink_DropNewestDiscardsWhenFull(t *testing.T) {
	sink := newBroadcastSink(1, BackpressureDropNewest)
	sink.offer(protocol.ParsedRecord{Raw: []byte("1")})
	sink.offer(protocol.ParsedRecord{Raw: []byte("2")})

	rec := <-sink.Chan()
	assert.Equal(t, []byte("1"), rec.Raw)
	select {
	case <-sink.Chan():
		t.Fatal("expected no second record under drop-newest")
	default:
	}
}

func TestBroadcastSink_DropOldestKeepsNewest(t *testing.T) {
	sink := newBroadcastSink(1, BackpressureDropOldest)
	sink.offer(protocol.ParsedRecord{Raw: []byte("1")})
	sink.offer(protocol.ParsedRecord{Raw: []byte("2")})

	rec := <-sink.Chan()
	assert.Equal(t, []byte("2"), rec.Raw)
}

func TestBroadcastSink_CloseIsIdempotentAndStopsOffers(t *testing.T) {
	sink := newBroadcastSink(1, BackpressureBlock)
	sink.close()
	sink.close()

	sink.offer(protocol.ParsedRecord{Raw: []byte("x")})
	_, ok := <-sink.Chan()
	assert.False(t, ok)
}
