// Package transport issues stream requests to the agent backend and wires
// the decode pipeline: SSE frames in, canonical chunks out to the caller's
// handler, with cooperative cancellation through the returned handle.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/assistbox/streamkit/internal/chunk"
	"github.com/assistbox/streamkit/internal/mapper"
	"github.com/assistbox/streamkit/internal/obs"
	"github.com/assistbox/streamkit/internal/session"
	"github.com/assistbox/streamkit/internal/sse"
	"github.com/assistbox/streamkit/internal/token"
)

// Default endpoint paths on the agent backend.
const (
	DefaultChatPath    = "/api/chat/stream"
	DefaultUnifiedPath = "/api/agent/stream"
	DefaultTokenPath   = "/api/chat/stream-token"
)

// ChunkHandler receives the canonical chunk stream for one exchange.
// OnClose fires exactly once when the session reaches a terminal state,
// whether it finished naturally or was cancelled.
type ChunkHandler interface {
	OnChunk(c chunk.Chunk)
	OnClose()
}

// ChunkHandlerFunc adapts a function to ChunkHandler with a no-op OnClose.
type ChunkHandlerFunc func(c chunk.Chunk)

// OnChunk implements ChunkHandler.
func (f ChunkHandlerFunc) OnChunk(c chunk.Chunk) { f(c) }

// OnClose implements ChunkHandler.
func (f ChunkHandlerFunc) OnClose() {}

// Config holds the dispatcher's backend endpoints.
type Config struct {
	// BaseURL is the agent backend origin, e.g. "https://api.example.com".
	BaseURL string

	// ChatPath and UnifiedPath override the default endpoint paths.
	ChatPath    string
	UnifiedPath string
}

// Dispatcher is the entry point of the streaming transport. It is safe for
// concurrent use; each Send runs an independent decode loop.
type Dispatcher struct {
	config     Config
	httpClient *http.Client
	broker     *token.Broker
	credential token.CredentialFunc
	metrics    *obs.StreamMetrics
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for stream exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.httpClient = client }
}

// WithTokenBroker attaches a stream-token broker.
func WithTokenBroker(broker *token.Broker) Option {
	return func(d *Dispatcher) { d.broker = broker }
}

// WithCredential sets the ambient bearer credential supplier.
func WithCredential(credential token.CredentialFunc) Option {
	return func(d *Dispatcher) { d.credential = credential }
}

// WithMetrics attaches stream metrics.
func WithMetrics(metrics *obs.StreamMetrics) Option {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// NewDispatcher creates a dispatcher for the configured backend.
func NewDispatcher(config Config, opts ...Option) *Dispatcher {
	if config.ChatPath == "" {
		config.ChatPath = DefaultChatPath
	}
	if config.UnifiedPath == "" {
		config.UnifiedPath = DefaultUnifiedPath
	}
	d := &Dispatcher{
		config: config,
		// Stream exchanges are long-lived; no client-level timeout. A hung
		// exchange is bounded by caller cancellation.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle controls one in-flight exchange.
type Handle struct {
	closeOnce sync.Once
	closeFn   func()
}

// Close cancels the exchange. No further chunks are delivered after Close
// returns; calling it again is a no-op.
func (h *Handle) Close() {
	h.closeOnce.Do(h.closeFn)
}

// Send issues one stream request and wires the decode pipeline to handler.
// It never returns an error: request-level failures surface through the
// handler as a single error chunk followed by finish.
func (d *Dispatcher) Send(ctx context.Context, req Request, handler ChunkHandler) *Handle {
	variant := mapper.VariantLegacy
	path := d.config.ChatPath
	if req.IsLogAnalysis() {
		variant = mapper.VariantUnified
		path = d.config.UnifiedPath
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	started := time.Now()
	sess := session.New(sessionID, d.countingSink(ctx, handler), handler.OnClose)

	streamCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{closeFn: func() {
		sess.Cancel()
		cancel()
	}}

	d.metrics.RecordStreamStarted(ctx, string(variant))
	logrus.Debugf("[Transport] Starting %s stream session %s -> %s", variant, sessionID, path)

	go func() {
		defer cancel()
		d.run(streamCtx, req, sess, variant, path, sessionID)
		d.metrics.RecordStreamDuration(ctx, float64(time.Since(started).Milliseconds()), string(sess.State()))
	}()

	return handle
}

// run performs the network exchange and decode loop for one session.
func (d *Dispatcher) run(ctx context.Context, req Request, sess *session.Session, variant mapper.Variant, path, sessionID string) {
	body, err := req.marshalBody(sessionID)
	if err != nil {
		d.fail(sess, fmt.Sprintf("failed to encode request: %v", err))
		return
	}

	// The stream token scopes the channel; the ambient credential below
	// authorizes the request itself. The two are independent.
	if d.broker != nil {
		if tok := d.broker.FetchToken(ctx); tok != "" {
			body, err = sjson.SetBytes(body, "_stream_token", tok)
			if err != nil {
				d.fail(sess, fmt.Sprintf("failed to attach stream token: %v", err))
				return
			}
			d.metrics.RecordTokenFetch(ctx, "issued")
		} else {
			d.metrics.RecordTokenFetch(ctx, "empty")
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		d.fail(sess, fmt.Sprintf("failed to build request: %v", err))
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if d.credential != nil {
		if cred := d.credential(ctx); cred != "" {
			httpReq.Header.Set("Authorization", "Bearer "+cred)
		}
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.fail(sess, fmt.Sprintf("stream request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.fail(sess, readErrorBody(resp))
		return
	}

	d.decodeLoop(ctx, resp.Body, sess, variant)
}

// decodeLoop pulls frames until the stream is exhausted, terminal, or
// cancelled. In-flight data after cancellation is discarded at the next
// suspension check.
func (d *Dispatcher) decodeLoop(ctx context.Context, r io.Reader, sess *session.Session, variant mapper.Variant) {
	dec := sse.NewDecoder(r)
	m := mapper.New(variant)

	for dec.Next() {
		select {
		case <-ctx.Done():
			logrus.Debugf("[Transport] Decode loop stopped for cancelled session %s", sess.ID())
			return
		default:
		}

		chunks, terminal := m.Map(dec.Current())
		for _, c := range chunks {
			sess.Deliver(c)
		}
		if terminal {
			break
		}
	}

	if err := dec.Err(); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Warnf("[Transport] Stream read error for session %s: %v", sess.ID(), err)
	}

	if ctx.Err() != nil {
		return
	}
	// Natural end of stream: balance any open segment and guarantee the
	// terminal finish.
	sess.Finalize()
}

// fail surfaces a request-level failure as an error chunk plus finish.
func (d *Dispatcher) fail(sess *session.Session, message string) {
	logrus.Warnf("[Transport] Stream session %s failed: %s", sess.ID(), message)
	sess.Deliver(chunk.Error(message))
	sess.Finalize()
}

// countingSink wraps the handler sink with chunk metrics.
func (d *Dispatcher) countingSink(ctx context.Context, handler ChunkHandler) session.Sink {
	return func(c chunk.Chunk) {
		d.metrics.RecordChunk(ctx, string(c.Kind))
		handler.OnChunk(c)
	}
}

// readErrorBody extracts a short error message from a non-success response.
func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Sprintf("stream request returned status %d", resp.StatusCode)
	}
	return fmt.Sprintf("stream request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
