// Package session owns the per-stream state machine. A Session consumes
// canonical chunks in decode order, keeps text segments balanced regardless
// of upstream discipline, and guarantees a single terminal finish.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/assistbox/streamkit/internal/chunk"
)

// State is the lifecycle phase of a session.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateFinished  State = "finished"
	StateCancelled State = "cancelled"
)

// Sink receives canonical chunks in delivery order.
type Sink func(chunk.Chunk)

// Session is the single-use pipeline instance for one stream request. It is
// mutated by the decode loop only; Cancel may be called from any goroutine.
type Session struct {
	mu            sync.Mutex
	id            string
	state         State
	openSegmentID string
	sink          Sink
	onClose       func()
	closeOnce     sync.Once
}

// New creates a session delivering to sink. onClose fires exactly once when
// the session reaches a terminal state; it may be nil.
func New(id string, sink Sink, onClose func()) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:      id,
		state:   StateIdle,
		sink:    sink,
		onClose: onClose,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deliver applies one chunk to the state machine and forwards the resulting
// chunks to the sink. Every transition is idempotent and defensive: chunks
// that would unbalance segments are repaired or dropped, never an error.
func (s *Session) Deliver(c chunk.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished || s.state == StateCancelled {
		return
	}
	if s.state == StateIdle {
		s.state = StateStreaming
	}

	switch c.Kind {
	case chunk.KindTextStart:
		if s.openSegmentID != "" {
			// A segment is already open; do not double-open.
			return
		}
		s.openSegmentID = c.ID
		s.emit(c)

	case chunk.KindTextDelta:
		if c.Delta == "" {
			return
		}
		if s.openSegmentID == "" {
			// Upstream variants may never send an explicit text-start.
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			s.openSegmentID = id
			s.emit(chunk.TextStart(id))
		}
		s.emit(chunk.TextDelta(s.openSegmentID, c.Delta))

	case chunk.KindTextEnd:
		if s.openSegmentID == "" {
			// Closing an already-closed segment is a no-op.
			return
		}
		if c.ID != "" && c.ID != s.openSegmentID {
			return
		}
		s.emit(chunk.TextEnd(s.openSegmentID))
		s.openSegmentID = ""

	case chunk.KindFinish:
		s.closeOpenSegment()
		s.emit(c)
		s.state = StateFinished
		s.fireClose()

	default:
		s.emit(c)
	}
}

// Finalize drives the session to its finished state after the decoder is
// exhausted, synthesizing the segment close and finish chunks if upstream
// never sent them. Safe to call after a natural finish.
func (s *Session) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished || s.state == StateCancelled {
		return
	}

	s.closeOpenSegment()
	s.emit(chunk.Finish())
	s.state = StateFinished
	s.fireClose()
}

// Cancel transitions directly to the cancelled state. The caller explicitly
// asked to stop, so nothing further is delivered, not even a synthetic close.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished || s.state == StateCancelled {
		return
	}
	logrus.Debugf("[Session] Cancelled stream session %s", s.id)
	s.state = StateCancelled
	s.fireClose()
}

// closeOpenSegment emits the balancing text-end when a segment is open.
// Callers must hold s.mu.
func (s *Session) closeOpenSegment() {
	if s.openSegmentID == "" {
		return
	}
	s.emit(chunk.TextEnd(s.openSegmentID))
	s.openSegmentID = ""
}

// emit forwards one chunk to the sink. Callers must hold s.mu.
func (s *Session) emit(c chunk.Chunk) {
	if s.sink != nil {
		s.sink(c)
	}
}

// fireClose invokes the close callback exactly once. Callers must hold s.mu.
func (s *Session) fireClose() {
	if s.onClose == nil {
		return
	}
	s.closeOnce.Do(s.onClose)
}
