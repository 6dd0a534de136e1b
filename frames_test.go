package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameToCANFrameRejectsOversizedPayload(t *testing.T) {
	f := Frame{Header: Header{PF: 0xF0}, Payload: make([]byte, 9)}
	_, err := f.ToCANFrame()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFrameToCANFrameRoundTrip(t *testing.T) {
	f := Frame{Header: Header{Priority: 6, PF: 0xEE, PS: 0xFF, SA: 0x80}, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	cf, err := f.ToCANFrame()
	require.NoError(t, err)
	assert.Equal(t, uint8(8), cf.DLC)
	assert.NotZero(t, cf.ID&CanEffFlag)

	back := FrameFromCANFrame(cf)
	assert.Equal(t, f.Header, back.Header)
	assert.Equal(t, f.Payload, back.Payload)
}

func TestFrameFromCANFrameTruncatesOversizedDLC(t *testing.T) {
	cf, err := (Frame{Header: Header{PF: 0xF0}, Payload: []byte{1, 2, 3}}).ToCANFrame()
	require.NoError(t, err)
	cf.DLC = 200 // malformed/corrupt on the wire
	f := FrameFromCANFrame(cf)
	assert.Len(t, f.Payload, 8)
}
