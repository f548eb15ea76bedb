package remoteserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrips(t *testing.T) {
	frame, err := EncodeFrame(FrameLiveOutput, 42, []byte("hello pty"))
	require.NoError(t, err)

	frameType, streamID, payload, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, FrameLiveOutput, frameType)
	assert.EqualValues(t, 42, streamID)
	assert.True(t, bytes.Equal([]byte("hello pty"), payload))
}

func TestEncodeFrameRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeFrame(FrameLiveOutput, 1, make([]byte, MaxFrameSize))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecodeFrameRejectsShortOrWrongVersion(t *testing.T) {
	_, _, _, err := DecodeFrame([]byte{1, 2})
	assert.ErrorIs(t, err, ErrMalformedFrame)

	bad := []byte{9, 1, 0, 0, 0, 1, 'x'}
	_, _, _, err = DecodeFrame(bad)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}
