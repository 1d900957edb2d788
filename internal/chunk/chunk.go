// Package chunk defines the canonical message-chunk vocabulary produced by the
// streaming transport. Every upstream protocol variant is normalized into this
// one tagged union before anything else in the application sees it.
package chunk

import "encoding/json"

// Kind discriminates the chunk union.
type Kind string

const (
	KindTextStart       Kind = "text-start"
	KindTextDelta       Kind = "text-delta"
	KindTextEnd         Kind = "text-end"
	KindReasoning       Kind = "reasoning"
	KindTimelineStep    Kind = "timeline-step"
	KindMessageMetadata Kind = "message-metadata"
	KindData            Kind = "data"
	KindError           Kind = "error"
	KindFinish          Kind = "finish"
)

// Chunk is one canonical unit of the internal message-delivery vocabulary.
// Only the fields relevant to the Kind are populated.
type Chunk struct {
	Kind Kind `json:"kind"`

	// ID identifies the text segment for text-start/text-delta/text-end.
	ID string `json:"id,omitempty"`

	// Delta is the appended text for text-delta.
	Delta string `json:"delta,omitempty"`

	// Subtype tags reasoning traces and data side channels
	// (e.g. "reasoning-summary", "data-artifact").
	Subtype string `json:"subtype,omitempty"`

	// Payload carries opaque upstream data for reasoning, timeline-step
	// and data chunks.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata is the structured summary for message-metadata chunks.
	Metadata *MessageMetadata `json:"metadata,omitempty"`

	// ErrorText is the problem description for error chunks.
	ErrorText string `json:"errorText,omitempty"`
}

// TextStart opens a text segment.
func TextStart(id string) Chunk {
	return Chunk{Kind: KindTextStart, ID: id}
}

// TextDelta appends text to an open segment.
func TextDelta(id, delta string) Chunk {
	return Chunk{Kind: KindTextDelta, ID: id, Delta: delta}
}

// TextEnd closes a text segment.
func TextEnd(id string) Chunk {
	return Chunk{Kind: KindTextEnd, ID: id}
}

// Reasoning wraps an opaque thinking trace tagged by subtype.
func Reasoning(subtype string, payload json.RawMessage) Chunk {
	return Chunk{Kind: KindReasoning, Subtype: subtype, Payload: payload}
}

// TimelineStep wraps an intermediate tool/step event.
func TimelineStep(payload json.RawMessage) Chunk {
	return Chunk{Kind: KindTimelineStep, Payload: payload}
}

// Metadata attaches a structured summary to the logical message.
func Metadata(md *MessageMetadata) Chunk {
	return Chunk{Kind: KindMessageMetadata, Metadata: md}
}

// Data wraps a generic named side-channel event.
func Data(subtype string, payload json.RawMessage) Chunk {
	return Chunk{Kind: KindData, Subtype: subtype, Payload: payload}
}

// Error reports an upstream or request-level problem.
func Error(text string) Chunk {
	return Chunk{Kind: KindError, ErrorText: text}
}

// Finish marks the normal end of the logical message.
func Finish() Chunk {
	return Chunk{Kind: KindFinish}
}
