package transport

import "encoding/json"

// Turn is one prior conversation turn. Anything richer than text is
// flattened before transmission.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment is one user-supplied file carried inline as a data URL.
type Attachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	DataURL   string `json:"data_url"`
}

// Request describes one outgoing stream exchange.
type Request struct {
	// Message is the current user message text.
	Message string

	// History holds the prior turns, role and text only.
	History []Turn

	// Provider and Model select the backing generation service.
	Provider string
	Model    string

	// SessionID ties the exchange to a conversation; generated when empty.
	SessionID string

	// LogContent and LogMetadata carry log-analysis input. Their presence
	// routes the request to the unified endpoint and protocol variant.
	LogContent  string
	LogMetadata map[string]any

	// TraceID propagates the caller's trace context.
	TraceID string

	// ForceWebsearch requests a web search regardless of model judgment.
	ForceWebsearch bool

	Attachments         []Attachment
	WebsearchMaxResults int
	WebsearchProfile    string
	UseServerMemory     bool
}

// IsLogAnalysis reports whether the request carries log-analysis input.
func (r *Request) IsLogAnalysis() bool {
	return r.LogContent != ""
}

// wireRequest is the outgoing JSON body. Field names are a wire contract
// with the agent backend.
type wireRequest struct {
	Message             string          `json:"message"`
	Messages            []Turn          `json:"messages"`
	Provider            string          `json:"provider"`
	Model               string          `json:"model"`
	SessionID           string          `json:"session_id"`
	AgentType           string          `json:"agent_type,omitempty"`
	LogContent          string          `json:"log_content,omitempty"`
	LogMetadata         map[string]any  `json:"log_metadata,omitempty"`
	TraceID             string          `json:"trace_id,omitempty"`
	ForceWebsearch      bool            `json:"force_websearch,omitempty"`
	Attachments         []Attachment    `json:"attachments,omitempty"`
	WebsearchMaxResults int             `json:"websearch_max_results,omitempty"`
	WebsearchProfile    string          `json:"websearch_profile,omitempty"`
	UseServerMemory     bool            `json:"use_server_memory,omitempty"`
}

// marshalBody builds the request body for the wire. The stream token, when
// present, is spliced in afterwards by the dispatcher.
func (r *Request) marshalBody(sessionID string) ([]byte, error) {
	wire := wireRequest{
		Message:             r.Message,
		Messages:            r.History,
		Provider:            r.Provider,
		Model:               r.Model,
		SessionID:           sessionID,
		LogContent:          r.LogContent,
		LogMetadata:         r.LogMetadata,
		TraceID:             r.TraceID,
		ForceWebsearch:      r.ForceWebsearch,
		Attachments:         r.Attachments,
		WebsearchMaxResults: r.WebsearchMaxResults,
		WebsearchProfile:    r.WebsearchProfile,
		UseServerMemory:     r.UseServerMemory,
	}
	if wire.Messages == nil {
		wire.Messages = []Turn{}
	}
	if r.IsLogAnalysis() {
		wire.AgentType = "log_analysis"
	}
	return json.Marshal(wire)
}
