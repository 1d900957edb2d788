package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assistbox/streamkit/internal/chunk"
)

type recorder struct {
	chunks []chunk.Chunk
	closed int
}

func (r *recorder) sink(c chunk.Chunk) { r.chunks = append(r.chunks, c) }
func (r *recorder) onClose()           { r.closed++ }

func (r *recorder) kinds() []chunk.Kind {
	out := make([]chunk.Kind, len(r.chunks))
	for i, c := range r.chunks {
		out[i] = c.Kind
	}
	return out
}

func TestSession_BalancedSegmentDelivery(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextDelta("a", "Hello"))
	s.Deliver(chunk.TextDelta("a", ", world"))
	s.Deliver(chunk.TextEnd("a"))
	s.Deliver(chunk.Finish())

	assert.Equal(t, []chunk.Kind{
		chunk.KindTextStart,
		chunk.KindTextDelta,
		chunk.KindTextDelta,
		chunk.KindTextEnd,
		chunk.KindFinish,
	}, rec.kinds())
	assert.Equal(t, StateFinished, s.State())
	assert.Equal(t, 1, rec.closed)
}

func TestSession_ImplicitOpenOnBareDelta(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Deliver(chunk.TextDelta("x", "Hi"))
	s.Finalize()

	require.Equal(t, []chunk.Kind{
		chunk.KindTextStart,
		chunk.KindTextDelta,
		chunk.KindTextEnd,
		chunk.KindFinish,
	}, rec.kinds())
	assert.Equal(t, "x", rec.chunks[0].ID)
	assert.Equal(t, "x", rec.chunks[2].ID)
	assert.Equal(t, 1, rec.closed)
}

func TestSession_ImplicitOpenGeneratesID(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextDelta("", "Hi"))

	require.Len(t, rec.chunks, 2)
	assert.NotEmpty(t, rec.chunks[0].ID)
	assert.Equal(t, rec.chunks[0].ID, rec.chunks[1].ID)
}

func TestSession_DoubleOpenIgnored(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextStart("b"))
	s.Deliver(chunk.TextDelta("a", "x"))
	s.Finalize()

	// Only segment "a" exists; its close is synthesized.
	assert.Equal(t, []chunk.Kind{
		chunk.KindTextStart,
		chunk.KindTextDelta,
		chunk.KindTextEnd,
		chunk.KindFinish,
	}, rec.kinds())
	assert.Equal(t, "a", rec.chunks[2].ID)
}

func TestSession_IdempotentTextEnd(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextEnd("a"))
	s.Deliver(chunk.TextEnd("a"))

	assert.Equal(t, []chunk.Kind{chunk.KindTextStart, chunk.KindTextEnd}, rec.kinds())
}

func TestSession_TextEndWithoutIDClosesOpenSegment(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextEnd(""))

	require.Len(t, rec.chunks, 2)
	assert.Equal(t, "a", rec.chunks[1].ID)
}

func TestSession_MismatchedTextEndIgnored(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextEnd("z"))

	assert.Equal(t, []chunk.Kind{chunk.KindTextStart}, rec.kinds())
}

func TestSession_SingleFinish(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Deliver(chunk.Finish())
	s.Deliver(chunk.Finish())
	s.Finalize()

	assert.Equal(t, []chunk.Kind{chunk.KindFinish}, rec.kinds())
	assert.Equal(t, 1, rec.closed)
}

func TestSession_FinishClosesOpenSegmentFirst(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.Finish())

	assert.Equal(t, []chunk.Kind{
		chunk.KindTextStart,
		chunk.KindTextEnd,
		chunk.KindFinish,
	}, rec.kinds())
}

func TestSession_FinalizeSynthesizesCloseAndFinish(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextDelta("a", "partial"))
	s.Finalize()

	assert.Equal(t, []chunk.Kind{
		chunk.KindTextStart,
		chunk.KindTextDelta,
		chunk.KindTextEnd,
		chunk.KindFinish,
	}, rec.kinds())
	assert.Equal(t, StateFinished, s.State())
	assert.Equal(t, 1, rec.closed)
}

func TestSession_CancelDeliversNothingFurther(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Deliver(chunk.TextStart("a"))
	s.Cancel()
	s.Deliver(chunk.TextDelta("a", "late"))
	s.Finalize()

	// No synthetic close, no finish: the caller asked to stop.
	assert.Equal(t, []chunk.Kind{chunk.KindTextStart}, rec.kinds())
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, 1, rec.closed)
}

func TestSession_CancelIdempotent(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, rec.onClose)

	s.Cancel()
	s.Cancel()

	assert.Equal(t, 1, rec.closed)
}

func TestSession_EmptyDeltaDropped(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.TextDelta("a", ""))

	assert.Empty(t, rec.chunks)
}

func TestSession_PassthroughChunks(t *testing.T) {
	rec := &recorder{}
	s := New("s1", rec.sink, nil)

	s.Deliver(chunk.Data("data-citations", []byte(`[]`)))
	s.Deliver(chunk.Error("boom"))

	assert.Equal(t, []chunk.Kind{chunk.KindData, chunk.KindError}, rec.kinds())
	assert.Equal(t, StateStreaming, s.State())
}

func TestSession_GeneratedIDWhenEmpty(t *testing.T) {
	s := New("", nil, nil)
	assert.NotEmpty(t, s.ID())
}

func TestAssembler_CollectsMessage(t *testing.T) {
	a := NewAssembler()
	s := New("s1", a.Sink(), nil)

	s.Deliver(chunk.TextStart("a"))
	s.Deliver(chunk.TextDelta("a", "Hello, "))
	s.Deliver(chunk.TextDelta("a", "world"))
	s.Deliver(chunk.TimelineStep([]byte(`{"step":"search"}`)))
	s.Deliver(chunk.Metadata(&chunk.MessageMetadata{Version: "1.0"}))
	s.Finalize()

	msg := a.Message()
	assert.Equal(t, "Hello, world", msg.Text)
	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "1.0", msg.Metadata.Version)
	assert.Len(t, msg.Steps, 1)
	assert.True(t, msg.Finished)
	assert.Empty(t, msg.Errors)
}

func TestAssembler_MultipleSegmentsInOrder(t *testing.T) {
	a := NewAssembler()

	a.Add(chunk.TextStart("a"))
	a.Add(chunk.TextDelta("a", "one "))
	a.Add(chunk.TextEnd("a"))
	a.Add(chunk.TextStart("b"))
	a.Add(chunk.TextDelta("b", "two"))
	a.Add(chunk.TextEnd("b"))

	assert.Equal(t, "one two", a.Message().Text)
}

func TestAssembler_RecordsErrors(t *testing.T) {
	a := NewAssembler()
	a.Add(chunk.Error("boom"))

	assert.Equal(t, []string{"boom"}, a.Message().Errors)
}
