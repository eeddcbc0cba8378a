// File: api/schemas/schemas.go
package schemas

import "time"

// Event types recorded by the network harvester.
const (
	EventTypeRequest = "request"
)

// NetworkRequest is a single outgoing request observed on the wire while the
// page was loading. Only request metadata is recorded; bodies are never
// fetched.
type NetworkRequest struct {
	EventType    string            `json:"event_type"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	DocumentURL  string            `json:"document_url,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ConsoleLog captures a single console message, log entry, or uncaught
// exception emitted by the page.
type ConsoleLog struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// HarvestArtifacts bundles everything a browser session collected.
type HarvestArtifacts struct {
	Requests    []NetworkRequest `json:"requests"`
	ConsoleLogs []ConsoleLog     `json:"console_logs"`
}

// ExtractionResult is the parsed outcome of scanning one target's traffic.
type ExtractionResult struct {
	UserID     string `json:"user_id"`
	Hash       string `json:"hash"`
	Operation  string `json:"operation"`
	RequestURL string `json:"request_url"`
}

// Outcome is the envelope printed to stdout for each target. Downstream
// tooling parses these objects, so the JSON tags are a public contract.
type Outcome struct {
	Success    bool      `json:"success"`
	UserID     string    `json:"user_id"`
	Hash       string    `json:"hash,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	RequestURL string    `json:"request_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
