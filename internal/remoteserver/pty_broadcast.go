package remoteserver

import (
	"sync"
	"sync/atomic"

	"github.com/andyrewlee/gridmux/internal/layout"
)

// ptySubBuffer is how many frames a subscriber can lag behind before the
// broadcaster starts dropping. Subscribers that lag past this bound
// receive a dropped notice and are resynchronized with a snapshot frame.
const ptySubBuffer = 64

// PTYSubscription is a live feed of one terminal's output, handed back by
// PTYBroadcaster.Subscribe. The owning connection drains Frames and
// watches Dropped for gaps that need a resync.
type PTYSubscription struct {
	StreamID uint32
	Frames   <-chan []byte

	ch      chan []byte
	dropped atomic.Uint64
	cancel  func()
}

// Dropped returns the number of frames this subscription has lost to lag
// since it was created.
func (s *PTYSubscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes. Safe to call more than once.
func (s *PTYSubscription) Close() { s.cancel() }

type ptyTopic struct {
	mu   sync.Mutex
	subs map[uint64]*PTYSubscription
}

// PTYBroadcaster fans out raw PTY output to any number of remote
// subscribers per terminal, grounded in the publish-channel and
// bounded-buffer idiom of
// _examples/sandia-minimega-minimega/phenix/web/broker/client.go, adapted
// from one client-per-connection to one topic-per-terminal.
type PTYBroadcaster struct {
	mu         sync.Mutex
	topics     map[layout.Id]*ptyTopic
	nextSubID  uint64
	nextStream uint32
}

// NewPTYBroadcaster creates an empty broadcaster.
func NewPTYBroadcaster() *PTYBroadcaster {
	return &PTYBroadcaster{topics: make(map[layout.Id]*ptyTopic)}
}

// Subscribe registers a new feed for terminalID, assigning it a fresh
// stream_id used to tag outgoing frames.
func (b *PTYBroadcaster) Subscribe(terminalID layout.Id) *PTYSubscription {
	b.mu.Lock()
	topic, ok := b.topics[terminalID]
	if !ok {
		topic = &ptyTopic{subs: make(map[uint64]*PTYSubscription)}
		b.topics[terminalID] = topic
	}
	b.nextSubID++
	subID := b.nextSubID
	b.nextStream++
	streamID := b.nextStream
	b.mu.Unlock()

	ch := make(chan []byte, ptySubBuffer)
	sub := &PTYSubscription{
		StreamID: streamID,
		Frames:   ch,
		ch:       ch,
	}
	sub.cancel = func() {
		topic.mu.Lock()
		delete(topic.subs, subID)
		topic.mu.Unlock()
	}

	topic.mu.Lock()
	topic.subs[subID] = sub
	topic.mu.Unlock()

	return sub
}

// Publish sends data as one or more live-output frames to every current
// subscriber of terminalID, chunked to MaxFrameSize if data doesn't fit
// in a single frame. A subscriber whose buffer is full has its oldest
// pending frame dropped to make room; Dropped() on its subscription
// tracks this so the owning connection can notify the client and push a
// fresh snapshot.
func (b *PTYBroadcaster) Publish(terminalID layout.Id, data []byte) {
	b.mu.Lock()
	topic, ok := b.topics[terminalID]
	b.mu.Unlock()
	if !ok {
		return
	}

	topic.mu.Lock()
	defer topic.mu.Unlock()
	for _, sub := range topic.subs {
		frames, err := chunkFrames(FrameLiveOutput, sub.StreamID, data)
		if err != nil {
			continue
		}
		for _, frame := range frames {
			sendOrDropOldest(sub, frame)
		}
	}
}

func sendOrDropOldest(sub *PTYSubscription, frame []byte) {
	select {
	case sub.ch <- frame:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- frame:
		default:
		}
		sub.dropped.Add(1)
	}
}

// SendSnapshot delivers an out-of-band resync to a single subscription,
// used on initial subscribe and after a detected drop. A payload over
// MaxFrameSize is chunked: the first chunk goes out as a snapshot frame
// (the client resets its local emulator on receipt), and any remaining
// chunks follow as ordinary live-output frames on the same stream so the
// client appends rather than resetting again.
func (b *PTYBroadcaster) SendSnapshot(sub *PTYSubscription, data []byte) {
	frames, err := chunkFrames(FrameSnapshot, sub.StreamID, data)
	if err != nil {
		return
	}
	for _, frame := range frames {
		select {
		case sub.ch <- frame:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- frame
		}
	}
}

// chunkFrames splits payload into as many frames as needed to respect
// MaxFrameSize, with firstType on the first frame and FrameLiveOutput on
// any continuation frames (a continuation is always an append, never a
// reset, regardless of what kind of frame started the sequence).
// Produces exactly one frame, possibly empty, for an empty payload.
func chunkFrames(firstType FrameType, streamID uint32, payload []byte) ([][]byte, error) {
	maxPayload := MaxFrameSize - frameHeaderLen
	frameType := firstType
	var frames [][]byte
	for {
		n := len(payload)
		if n > maxPayload {
			n = maxPayload
		}
		frame, err := EncodeFrame(frameType, streamID, payload[:n])
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		payload = payload[n:]
		frameType = FrameLiveOutput
		if len(payload) == 0 {
			return frames, nil
		}
	}
}

// CloseTopic drops every subscriber of terminalID, used when the
// terminal itself is closed.
func (b *PTYBroadcaster) CloseTopic(terminalID layout.Id) {
	b.mu.Lock()
	topic, ok := b.topics[terminalID]
	delete(b.topics, terminalID)
	b.mu.Unlock()
	if !ok {
		return
	}
	topic.mu.Lock()
	defer topic.mu.Unlock()
	for id, sub := range topic.subs {
		close(sub.ch)
		delete(topic.subs, id)
	}
}
