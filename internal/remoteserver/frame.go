package remoteserver

import (
	"encoding/binary"
	"errors"
)

// frameProtoVersion is the first byte of every binary WS frame.
const frameProtoVersion = 1

// FrameType discriminates a binary PTY frame.
type FrameType uint8

const (
	// FrameLiveOutput is server->client: live PTY bytes.
	FrameLiveOutput FrameType = 1
	// FrameSnapshot is server->client: a full-screen redraw after
	// subscribe or after a lagging subscriber is resynchronized.
	FrameSnapshot FrameType = 2
	// FrameInput is client->server: bytes to write to the PTY.
	FrameInput FrameType = 3
)

// MaxFrameSize is the maximum binary frame size; larger payloads must be
// chunked by the sender.
const MaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned by EncodeFrame for an oversized payload.
var ErrFrameTooLarge = errors.New("remoteserver: frame exceeds MaxFrameSize")

// ErrMalformedFrame is returned by DecodeFrame for a frame shorter than
// the fixed header or carrying an unrecognized proto version.
var ErrMalformedFrame = errors.New("remoteserver: malformed frame")

// frameHeaderLen is [proto(1)][type(1)][stream_id(4)].
const frameHeaderLen = 1 + 1 + 4

// EncodeFrame builds the wire representation
// [proto=1][frame_type][stream_id BE][payload].
func EncodeFrame(frameType FrameType, streamID uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize-frameHeaderLen {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, frameHeaderLen+len(payload))
	buf[0] = frameProtoVersion
	buf[1] = byte(frameType)
	binary.BigEndian.PutUint32(buf[2:6], streamID)
	copy(buf[6:], payload)
	return buf, nil
}

// DecodeFrame parses the wire representation back into its parts.
func DecodeFrame(data []byte) (frameType FrameType, streamID uint32, payload []byte, err error) {
	if len(data) < frameHeaderLen {
		return 0, 0, nil, ErrMalformedFrame
	}
	if data[0] != frameProtoVersion {
		return 0, 0, nil, ErrMalformedFrame
	}
	frameType = FrameType(data[1])
	streamID = binary.BigEndian.Uint32(data[2:6])
	payload = data[6:]
	return frameType, streamID, payload, nil
}
