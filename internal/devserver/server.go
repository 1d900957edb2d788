// Package devserver runs a development mock of the agent backend. It
// replays scripted frame sequences in both protocol vocabularies so the
// transport can be exercised without a hosted backend.
package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Options configures the mock backend.
type Options struct {
	// TokenEnabled controls whether the stream-token endpoint exists.
	// When false it returns 404, exercising the sticky-unavailable path.
	TokenEnabled bool

	// Delay is the pause between emitted frames.
	Delay time.Duration
}

// New builds the gin engine serving the mock endpoints.
func New(opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/api/chat/stream", func(c *gin.Context) {
		streamLegacy(c, opts)
	})
	engine.POST("/api/agent/stream", func(c *gin.Context) {
		streamUnified(c, opts)
	})
	engine.POST("/api/chat/stream-token", func(c *gin.Context) {
		if !opts.TokenEnabled {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stream_token": fmt.Sprintf("mock-token-%d", time.Now().UnixNano())})
	})

	return engine
}

// streamUnified replays a unified-protocol stream: explicit segment
// boundaries, a reasoning trace, a step, an analysis result and a finish.
func streamUnified(c *gin.Context, opts Options) {
	message := requestMessage(c)
	reply := fmt.Sprintf("Looked into %q. The log window shows a healthy service with two recoverable warnings.", message)

	frames := []string{
		`{"type":"reasoning-summary","text":"Scanning the provided log content"}`,
		`{"type":"text-start","id":"seg_1"}`,
	}
	for _, word := range splitWords(reply) {
		frames = append(frames, fmt.Sprintf(`{"type":"text-delta","id":"seg_1","delta":%q}`, word))
	}
	frames = append(frames,
		`{"type":"text-end","id":"seg_1"}`,
		`{"type":"step","data":{"step":"search","query":"warning patterns"}}`,
		`{"type":"result","data":{"analysis":{"version":"7.4.2","platform":"linux","health_status":"healthy","confidence":"high","entry_count":5321,"error_count":0,"warning_count":2,"summary":"Two transient connection warnings, no action needed.","issues":[{"severity":"warning","message":"connection retry to sync host","context":"sync/worker.go"}]}}}`,
		`{"type":"finish"}`,
	)

	emitFrames(c, frames, opts.Delay)
}

// streamLegacy replays the legacy chat protocol: router chatter, deltas
// without an explicit text-start, and the [DONE] sentinel.
func streamLegacy(c *gin.Context, opts Options) {
	message := requestMessage(c)
	reply := fmt.Sprintf("Sure - here is what I found about %q.", message)

	frames := []string{
		`{"role":"router","content":"routing to support agent"}`,
	}
	for _, word := range splitWords(reply) {
		frames = append(frames, fmt.Sprintf(`{"type":"text-delta","id":"m0","delta":%q}`, word))
	}
	frames = append(frames, "[DONE]")

	emitFrames(c, frames, opts.Delay)
}

// emitFrames writes the scripted payloads as SSE data records, stopping
// when the client disconnects.
func emitFrames(c *gin.Context, frames []string, delay time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	for _, frame := range frames {
		select {
		case <-c.Request.Context().Done():
			logrus.Debug("[DevServer] Client disconnected, stopping stream")
			return
		default:
		}

		fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
		flusher.Flush()
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

// requestMessage pulls the user message out of the request body.
func requestMessage(c *gin.Context) string {
	body, err := c.GetRawData()
	if err != nil {
		return ""
	}
	return gjson.GetBytes(body, "message").String()
}

// splitWords breaks a reply into word-sized deltas, preserving spaces.
func splitWords(s string) []string {
	words := strings.SplitAfter(s, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
