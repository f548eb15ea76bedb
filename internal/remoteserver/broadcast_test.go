package remoteserver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andyrewlee/gridmux/internal/layout"
)

func TestPTYBroadcasterFansOutToSubscribers(t *testing.T) {
	b := NewPTYBroadcaster()
	sub1 := b.Subscribe(layout.Id("t1"))
	sub2 := b.Subscribe(layout.Id("t1"))

	b.Publish(layout.Id("t1"), []byte("hi"))

	for _, sub := range []*PTYSubscription{sub1, sub2} {
		select {
		case frame := <-sub.Frames:
			frameType, streamID, payload, err := DecodeFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, FrameLiveOutput, frameType)
			assert.Equal(t, sub.StreamID, streamID)
			assert.Equal(t, "hi", string(payload))
		case <-time.After(time.Second):
			t.Fatal("expected a frame")
		}
	}
}

func TestPTYBroadcasterDropsOnFullBuffer(t *testing.T) {
	b := NewPTYBroadcaster()
	sub := b.Subscribe(layout.Id("t1"))

	for i := 0; i < ptySubBuffer+10; i++ {
		b.Publish(layout.Id("t1"), []byte("x"))
	}

	assert.Greater(t, sub.Dropped(), uint64(0))
}

func TestPTYBroadcasterUnrelatedTopicUnaffected(t *testing.T) {
	b := NewPTYBroadcaster()
	sub := b.Subscribe(layout.Id("t1"))
	b.Publish(layout.Id("t2"), []byte("noise"))

	select {
	case <-sub.Frames:
		t.Fatal("subscriber to t1 should not see t2 traffic")
	default:
	}
}

func TestPTYSubscriptionCloseUnsubscribes(t *testing.T) {
	b := NewPTYBroadcaster()
	sub := b.Subscribe(layout.Id("t1"))
	sub.Close()
	b.Publish(layout.Id("t1"), []byte("after close"))
	// Publish to a topic with no subscribers must not panic or block.
}

func TestAppStateBroadcasterDeliversLatestOnly(t *testing.T) {
	b := NewAppStateBroadcaster()
	feed, cancel := b.Subscribe("app-1")
	defer cancel()

	b.Publish("app-1", "task_browser", json.RawMessage(`{"n":1}`))
	b.Publish("app-1", "task_browser", json.RawMessage(`{"n":2}`))
	b.Publish("app-1", "task_browser", json.RawMessage(`{"n":3}`))

	select {
	case msg := <-feed:
		assert.Equal(t, "app-1", msg.AppID)
		assert.JSONEq(t, `{"n":3}`, string(msg.ViewState))
	case <-time.After(time.Second):
		t.Fatal("expected a message")
	}

	select {
	case <-feed:
		t.Fatal("expected only one coalesced message")
	default:
	}
}

func TestAppStateBroadcasterIgnoresUnsubscribedApps(t *testing.T) {
	b := NewAppStateBroadcaster()
	b.Publish("no-subscribers", "x", json.RawMessage(`{}`))
	// Must not panic or block even with zero subscribers for the app.
}
