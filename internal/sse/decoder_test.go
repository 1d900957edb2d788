package sse

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_SingleFrame(t *testing.T) {
	dec := NewDecoder(strings.NewReader("data: {\"type\":\"finish\"}\n\n"))

	require.True(t, dec.Next())
	assert.Equal(t, "", dec.Current().Event)
	assert.Equal(t, `{"type":"finish"}`, dec.Current().Data)

	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestDecoder_EventName(t *testing.T) {
	input := "event: step\ndata: {\"step\":\"search\"}\n\n"
	dec := NewDecoder(strings.NewReader(input))

	require.True(t, dec.Next())
	assert.Equal(t, "step", dec.Current().Event)
	assert.Equal(t, `{"step":"search"}`, dec.Current().Data)
}

func TestDecoder_MultipleDataLinesJoined(t *testing.T) {
	input := "data: first\ndata: second\ndata: third\n\n"
	dec := NewDecoder(strings.NewReader(input))

	require.True(t, dec.Next())
	assert.Equal(t, "first\nsecond\nthird", dec.Current().Data)
}

func TestDecoder_MultipleFramesInOrder(t *testing.T) {
	input := "data: one\n\ndata: two\n\ndata: three\n\n"
	dec := NewDecoder(strings.NewReader(input))

	var got []string
	for dec.Next() {
		got = append(got, dec.Current().Data)
	}

	require.NoError(t, dec.Err())
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestDecoder_FragmentedReads(t *testing.T) {
	// One byte per read: frames must still assemble across fragment
	// boundaries.
	input := "data: {\"type\":\"text-delta\",\"delta\":\"Hello\"}\n\ndata: [DONE]\n\n"
	dec := NewDecoder(iotest.OneByteReader(strings.NewReader(input)))

	require.True(t, dec.Next())
	assert.Equal(t, `{"type":"text-delta","delta":"Hello"}`, dec.Current().Data)

	require.True(t, dec.Next())
	assert.Equal(t, "[DONE]", dec.Current().Data)

	assert.False(t, dec.Next())
}

func TestDecoder_IgnoresCommentsAndUnknownFields(t *testing.T) {
	input := ": keepalive\nid: 42\nretry: 1000\ndata: payload\n\n"
	dec := NewDecoder(strings.NewReader(input))

	require.True(t, dec.Next())
	assert.Equal(t, "payload", dec.Current().Data)
	assert.Equal(t, "", dec.Current().Event)
}

func TestDecoder_CRLFLines(t *testing.T) {
	input := "data: windows\r\n\r\n"
	dec := NewDecoder(strings.NewReader(input))

	require.True(t, dec.Next())
	assert.Equal(t, "windows", dec.Current().Data)
}

func TestDecoder_DiscardsUnterminatedTrailingEvent(t *testing.T) {
	// No terminating blank line: the partial event cannot be considered
	// complete and is dropped.
	input := "data: complete\n\ndata: partial"
	dec := NewDecoder(strings.NewReader(input))

	require.True(t, dec.Next())
	assert.Equal(t, "complete", dec.Current().Data)

	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestDecoder_BlankInputYieldsNothing(t *testing.T) {
	dec := NewDecoder(strings.NewReader("\n\n\n"))
	assert.False(t, dec.Next())
	assert.NoError(t, dec.Err())
}

func TestDecoder_ValueSpaceHandling(t *testing.T) {
	// Only a single leading space is stripped from the value.
	dec := NewDecoder(strings.NewReader("data:  spaced\n\ndata:none\n\n"))

	require.True(t, dec.Next())
	assert.Equal(t, " spaced", dec.Current().Data)

	require.True(t, dec.Next())
	assert.Equal(t, "none", dec.Current().Data)
}

func TestDecoder_ReadError(t *testing.T) {
	dec := NewDecoder(iotest.TimeoutReader(strings.NewReader("data: x\n\ndata: y\n\n")))

	// First read succeeds, then the reader fails.
	for dec.Next() {
	}
	assert.Error(t, dec.Err())
}
