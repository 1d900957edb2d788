package session

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/assistbox/streamkit/internal/chunk"
)

// AssembledMessage is the final shape of one streamed reply.
type AssembledMessage struct {
	Text     string
	Metadata *chunk.MessageMetadata
	Steps    []json.RawMessage
	Errors   []string
	Finished bool
}

// Assembler collects a session's chunks into a complete message. It is a
// convenience sink for callers that want the assembled reply rather than
// incremental delivery.
type Assembler struct {
	mu       sync.Mutex
	segments map[string]*strings.Builder
	order    []string
	metadata *chunk.MessageMetadata
	steps    []json.RawMessage
	errors   []string
	finished bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{segments: make(map[string]*strings.Builder)}
}

// Sink returns a Sink that feeds this assembler.
func (a *Assembler) Sink() Sink {
	return a.Add
}

// Add applies one chunk to the accumulated message.
func (a *Assembler) Add(c chunk.Chunk) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch c.Kind {
	case chunk.KindTextStart:
		if _, ok := a.segments[c.ID]; !ok {
			a.segments[c.ID] = &strings.Builder{}
			a.order = append(a.order, c.ID)
		}
	case chunk.KindTextDelta:
		if b, ok := a.segments[c.ID]; ok {
			b.WriteString(c.Delta)
		}
	case chunk.KindMessageMetadata:
		// Later summaries supersede earlier ones.
		a.metadata = c.Metadata
	case chunk.KindTimelineStep:
		a.steps = append(a.steps, c.Payload)
	case chunk.KindError:
		a.errors = append(a.errors, c.ErrorText)
	case chunk.KindFinish:
		a.finished = true
	}
}

// Message returns the assembled reply so far. Segment text is concatenated
// in arrival order.
func (a *Assembler) Message() AssembledMessage {
	a.mu.Lock()
	defer a.mu.Unlock()

	var text strings.Builder
	for _, id := range a.order {
		text.WriteString(a.segments[id].String())
	}
	return AssembledMessage{
		Text:     text.String(),
		Metadata: a.metadata,
		Steps:    a.steps,
		Errors:   a.errors,
		Finished: a.finished,
	}
}
