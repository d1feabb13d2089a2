// Package eventstream carries the structured events a session emits. A
// presentation layer subscribes to them instead of the core writing
// narrative text.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeInitialized is emitted once a session is ready.
	EventTypeInitialized = "glassbox.session.initialized"

	// EventTypeContextRetrieved is emitted after retrieval for a prompt.
	EventTypeContextRetrieved = "glassbox.context.retrieved"

	// EventTypeResponseGenerated is emitted after a response is decoded.
	EventTypeResponseGenerated = "glassbox.response.generated"

	// EventTypeAppended is emitted after an interaction is committed.
	EventTypeAppended = "glassbox.audit.appended"
)

// Event is a transport-neutral envelope. Exactly one payload is set and it
// matches EventType.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	Initialized       *Initialized       `json:"initialized,omitempty"`
	ContextRetrieved  *ContextRetrieved  `json:"context_retrieved,omitempty"`
	ResponseGenerated *ResponseGenerated `json:"response_generated,omitempty"`
	Appended          *Appended          `json:"appended,omitempty"`
}

// Initialized describes the resources a session opened.
type Initialized struct {
	ModelPath   string `json:"model_path"`
	DBPath      string `json:"db_path"`
	Chunks      int    `json:"chunks"`
	AuditLength uint64 `json:"audit_length"`
	RootHash    string `json:"root_hash"`
}

// ContextRetrieved summarizes the context window for one prompt.
type ContextRetrieved struct {
	ChunkIDs []string `json:"chunk_ids"`
	Tokens   int      `json:"tokens"`
	Dropped  int      `json:"dropped"`
}

// ResponseGenerated summarizes one decode.
type ResponseGenerated struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	ResponseLen  int    `json:"response_bytes"`
	StopReason   string `json:"stop_reason"`
	DurationMs   int64  `json:"duration_ms"`
}

// Appended carries the root hash after a commit.
type Appended struct {
	Sequence uint64 `json:"sequence"`
	RootHash string `json:"root_hash"`
}

// New wraps a payload in an envelope with a fresh ID.
func New(eventType string, set func(*Event)) *Event {
	e := &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
	if set != nil {
		set(e)
	}
	return e
}

// NewInitialized builds an EventTypeInitialized event.
func NewInitialized(p Initialized) *Event {
	return New(EventTypeInitialized, func(e *Event) { e.Initialized = &p })
}

// NewContextRetrieved builds an EventTypeContextRetrieved event.
func NewContextRetrieved(p ContextRetrieved) *Event {
	return New(EventTypeContextRetrieved, func(e *Event) { e.ContextRetrieved = &p })
}

// NewResponseGenerated builds an EventTypeResponseGenerated event.
func NewResponseGenerated(p ResponseGenerated) *Event {
	return New(EventTypeResponseGenerated, func(e *Event) { e.ResponseGenerated = &p })
}

// NewAppended builds an EventTypeAppended event.
func NewAppended(p Appended) *Event {
	return New(EventTypeAppended, func(e *Event) { e.Appended = &p })
}
