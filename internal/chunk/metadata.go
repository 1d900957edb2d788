package chunk

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// MessageMetadata is the structured summary derived from a log-analysis
// result payload. Every field is optional; absent source data simply leaves
// the field at its zero value.
type MessageMetadata struct {
	Version       string          `json:"version,omitempty"`
	Platform      string          `json:"platform,omitempty"`
	DatabaseSize  string          `json:"databaseSize,omitempty"`
	AccountCount  int64           `json:"accountCount,omitempty"`
	EntryCount    int64           `json:"entryCount,omitempty"`
	ErrorCount    int64           `json:"errorCount,omitempty"`
	WarningCount  int64           `json:"warningCount,omitempty"`
	TimeRange     *TimeRange      `json:"timeRange,omitempty"`
	Performance   json.RawMessage `json:"performance,omitempty"`
	HealthStatus  string          `json:"healthStatus,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	ErrorSnippets []ErrorSnippet  `json:"errorSnippets,omitempty"`
	RootCause     *RootCause      `json:"rootCause,omitempty"`
}

// TimeRange bounds the analyzed log window.
type TimeRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ErrorSnippet is one identified issue or finding from the analysis.
type ErrorSnippet struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	Context    string `json:"context,omitempty"`
	StackTrace string `json:"stackTrace,omitempty"`
}

// RootCause summarizes the most likely underlying problem.
type RootCause struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence,omitempty"`
	Category   string  `json:"category,omitempty"`
}

// DeriveMetadata builds a MessageMetadata from an analysis payload. The
// upstream shape varies between protocol variants, so every field is looked
// up through a fallback chain and extraction is best-effort throughout.
func DeriveMetadata(analysis json.RawMessage) *MessageMetadata {
	root := gjson.ParseBytes(analysis)
	if !root.Exists() || !root.IsObject() {
		return nil
	}

	md := &MessageMetadata{
		Version:      firstString(root, "version", "environment.version", "metadata.version"),
		Platform:     firstString(root, "platform", "environment.platform", "environment.os"),
		DatabaseSize: firstString(root, "database_size", "environment.database_size"),
		AccountCount: firstInt(root, "account_count", "statistics.account_count", "statistics.accounts"),
		EntryCount:   firstInt(root, "entry_count", "statistics.entry_count", "statistics.entries"),
		ErrorCount:   firstInt(root, "error_count", "statistics.error_count", "statistics.errors"),
		WarningCount: firstInt(root, "warning_count", "statistics.warning_count", "statistics.warnings"),
		HealthStatus: firstString(root, "health_status", "health.status"),
		Confidence:   confidenceValue(first(root, "confidence", "analysis_confidence")),
	}

	if tr := first(root, "time_range", "statistics.time_range"); tr.IsObject() {
		md.TimeRange = &TimeRange{
			Start: tr.Get("start").String(),
			End:   tr.Get("end").String(),
		}
	}

	if perf := first(root, "performance_metrics", "performance"); perf.IsObject() {
		md.Performance = json.RawMessage(perf.Raw)
	}

	md.ErrorSnippets = deriveSnippets(root)
	md.RootCause = deriveRootCause(root)

	return md
}

// deriveSnippets extracts one ErrorSnippet per identified issue or finding.
func deriveSnippets(root gjson.Result) []ErrorSnippet {
	items := first(root, "issues", "findings")
	if !items.IsArray() {
		return nil
	}

	var snippets []ErrorSnippet
	items.ForEach(func(_, item gjson.Result) bool {
		msg := firstString(item, "message", "title", "description")
		if msg == "" {
			return true
		}
		snippets = append(snippets, ErrorSnippet{
			Level:      severityLevel(firstString(item, "severity", "level")),
			Message:    msg,
			Context:    item.Get("context").String(),
			StackTrace: firstString(item, "stack_trace", "stack"),
		})
		return true
	})
	return snippets
}

// deriveRootCause picks the first priority concern, falling back to the
// overall summary and then the first finding's detail.
func deriveRootCause(root gjson.Result) *RootCause {
	summary := firstString(root,
		"priority_concerns.0",
		"summary",
		"findings.0.detail",
		"findings.0.details",
	)
	if summary == "" {
		return nil
	}
	return &RootCause{
		Summary:    summary,
		Confidence: confidenceValue(first(root, "root_cause_confidence", "confidence")),
		Category:   firstString(root, "root_cause_category", "category", "issues.0.category"),
	}
}

// severityLevel maps an upstream severity label to a snippet level.
func severityLevel(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "fatal":
		return "CRITICAL"
	case "error", "high":
		return "ERROR"
	default:
		return "WARNING"
	}
}

// confidenceValue accepts either a numeric confidence or a
// high/medium/low label.
func confidenceValue(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Float()
	case gjson.String:
		switch strings.ToLower(v.String()) {
		case "high":
			return 0.9
		case "medium":
			return 0.6
		case "low":
			return 0.35
		}
	}
	return 0
}

// first returns the first existing result along the fallback chain.
func first(root gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func firstInt(root gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}
