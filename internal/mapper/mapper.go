// Package mapper interprets decoded frame payloads and emits canonical
// message chunks. The two upstream protocol variants (the unified agent
// protocol and the legacy chat protocol) differ in a handful of payload
// shapes; one dispatch table keyed on the type discriminator covers the
// superset of both.
package mapper

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/assistbox/streamkit/internal/chunk"
	"github.com/assistbox/streamkit/internal/sse"
)

// Variant identifies the upstream protocol vocabulary for a stream.
type Variant string

const (
	// VariantUnified is the agent protocol used by log-analysis requests.
	VariantUnified Variant = "unified"
	// VariantLegacy is the default chat protocol.
	VariantLegacy Variant = "legacy"
)

// doneSentinel terminates a stream without a structured finish payload.
const doneSentinel = "[DONE]"

// Mapper converts one stream's frames into canonical chunks. It is stateful:
// it tracks the currently open text segment so that variants which never
// send an explicit text-start still produce balanced segments. A Mapper is
// owned by a single decode loop and must not be shared.
type Mapper struct {
	variant   Variant
	openID    string
	pendingID string
}

// New creates a mapper for one stream using the given protocol variant.
func New(variant Variant) *Mapper {
	return &Mapper{variant: variant}
}

// Map interprets one frame and returns zero or more canonical chunks plus a
// terminal flag. Once terminal is true no further frames should be mapped.
// Malformed payloads are logged and skipped; unrecognized types are ignored
// for forward compatibility.
func (m *Mapper) Map(frame sse.Frame) ([]chunk.Chunk, bool) {
	payload := frame.Data

	// Bare sentinels arrive without JSON framing.
	switch payload {
	case doneSentinel, "done":
		return m.closeOpen(nil), true
	case "finish":
		return m.finish(), true
	}

	if !gjson.Valid(payload) {
		logrus.Warnf("[Mapper] Skipping frame with invalid JSON payload: %.120s", payload)
		return nil, false
	}

	body := gjson.Parse(payload)
	typ := body.Get("type").String()
	if typ == "" && frame.Event != "" {
		typ = frame.Event
	}

	switch {
	case typ == "done":
		return m.closeOpen(nil), true

	case typ == "finish":
		return m.finish(), true

	case typ == "text-start":
		// Remembered until the first delta arrives; a second text-start
		// while a segment is open is ignored.
		if m.openID == "" {
			m.pendingID = body.Get("id").String()
		}
		return nil, false

	case typ == "text-delta":
		return m.textDelta(body), false

	case typ == "text-end":
		return m.textEnd(body), false

	case typ == "reasoning" || strings.HasPrefix(typ, "reasoning-"):
		return []chunk.Chunk{chunk.Reasoning(typ, json.RawMessage(body.Raw))}, false

	case typ == "step":
		if data := body.Get("data"); data.Exists() {
			return []chunk.Chunk{chunk.TimelineStep(json.RawMessage(data.Raw))}, false
		}
		return nil, false

	case typ == "result":
		return m.result(body), false

	case typ == "error":
		return m.upstreamError(errorText(body)), true

	case typ == "message-metadata":
		return m.passthroughMetadata(body), false

	case typ == "data" || strings.HasPrefix(typ, "data-"):
		return []chunk.Chunk{chunk.Data(typ, dataPayload(body))}, false

	case strings.HasPrefix(typ, "artifact-"):
		return []chunk.Chunk{chunk.Data(typ, dataPayload(body))}, false

	case typ == "":
		return m.legacyRole(body)
	}

	logrus.Debugf("[Mapper] Ignoring unrecognized frame type %q in %s stream", typ, m.variant)
	return nil, false
}

// OpenSegmentID returns the id of the currently open text segment, or ""
// when no segment is open.
func (m *Mapper) OpenSegmentID() string {
	return m.openID
}

// textDelta ensures a segment is open before the delta is applied, opening
// one implicitly for variants that never send text-start.
func (m *Mapper) textDelta(body gjson.Result) []chunk.Chunk {
	delta := body.Get("delta").String()
	if delta == "" {
		return nil
	}

	var out []chunk.Chunk
	if m.openID == "" {
		id := body.Get("id").String()
		if id == "" {
			id = m.pendingID
		}
		if id == "" {
			id = uuid.NewString()
		}
		m.openID = id
		m.pendingID = ""
		out = append(out, chunk.TextStart(id))
	}
	out = append(out, chunk.TextDelta(m.openID, delta))
	return out
}

// textEnd closes the segment named in the payload, falling back to whatever
// segment is open.
func (m *Mapper) textEnd(body gjson.Result) []chunk.Chunk {
	id := body.Get("id").String()
	if id == "" {
		id = m.openID
	}
	if id == "" {
		return nil
	}
	if id == m.openID {
		m.openID = ""
	}
	m.pendingID = ""
	return []chunk.Chunk{chunk.TextEnd(id)}
}

// result derives a metadata summary from the nested analysis object. The
// unified variant nests it under data.analysis, the legacy variant directly
// under analysis.
func (m *Mapper) result(body gjson.Result) []chunk.Chunk {
	analysis := body.Get("data.analysis")
	if !analysis.Exists() {
		analysis = body.Get("analysis")
	}
	if !analysis.Exists() {
		return nil
	}
	md := chunk.DeriveMetadata(json.RawMessage(analysis.Raw))
	if md == nil {
		return nil
	}
	return []chunk.Chunk{chunk.Metadata(md)}
}

// passthroughMetadata forwards a pre-built metadata summary.
func (m *Mapper) passthroughMetadata(body gjson.Result) []chunk.Chunk {
	raw := body.Get("metadata")
	if !raw.Exists() {
		return nil
	}
	var md chunk.MessageMetadata
	if err := json.Unmarshal([]byte(raw.Raw), &md); err != nil {
		logrus.Warnf("[Mapper] Skipping malformed message-metadata payload: %v", err)
		return nil
	}
	return []chunk.Chunk{chunk.Metadata(&md)}
}

// legacyRole handles untyped legacy payloads dispatched on their role field.
// Router and system chatter is dropped; error roles surface as error chunks.
func (m *Mapper) legacyRole(body gjson.Result) ([]chunk.Chunk, bool) {
	role := body.Get("role").String()
	switch role {
	case "error":
		return m.upstreamError(errorText(body)), true
	case "", "assistant":
		// Untyped assistant payloads carry nothing actionable here.
		return nil, false
	default:
		logrus.Debugf("[Mapper] Ignoring %s-role chatter in legacy stream", role)
		return nil, false
	}
}

// upstreamError closes any open segment before surfacing the error.
func (m *Mapper) upstreamError(text string) []chunk.Chunk {
	return m.closeOpen([]chunk.Chunk{chunk.Error(text)})
}

// finish closes any open segment and appends the finish chunk.
func (m *Mapper) finish() []chunk.Chunk {
	return m.closeOpen([]chunk.Chunk{chunk.Finish()})
}

// closeOpen prepends a text-end for the open segment, if any, to tail.
func (m *Mapper) closeOpen(tail []chunk.Chunk) []chunk.Chunk {
	if m.openID == "" {
		m.pendingID = ""
		return tail
	}
	out := []chunk.Chunk{chunk.TextEnd(m.openID)}
	m.openID = ""
	m.pendingID = ""
	return append(out, tail...)
}

// errorText pulls the human-readable message out of an error payload.
func errorText(body gjson.Result) string {
	for _, key := range []string{"errorText", "error", "message", "content"} {
		if v := body.Get(key); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return "upstream error"
}

// dataPayload prefers the nested data field, falling back to the whole
// payload for variants that inline their content.
func dataPayload(body gjson.Result) json.RawMessage {
	if data := body.Get("data"); data.Exists() {
		return json.RawMessage(data.Raw)
	}
	return json.RawMessage(body.Raw)
}
