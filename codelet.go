// Package codelet defines the wire types exchanged between an editor host and
// the codelet daemon. Messages are JSON-encoded, one per line.
package codelet

// Message types sent by the editor host.
const (
	TypeDidOpen    = "didOpen"
	TypeDidChange  = "didChange"
	TypeDidClose   = "didClose"
	TypeCompletion = "completion"
	TypeStatus     = "status"
)

// Message is a single editor event sent from the host to the daemon.
type Message struct {
	// Type selects the event kind ("didOpen", "didChange", "didClose",
	// "completion" or "status").
	Type string `json:"type"`
	// ID is the host-assigned request identifier. Completion results echo it
	// back so the host can correlate them with pending requests.
	ID int `json:"id"`
	// File is the path of the document the event refers to.
	File string `json:"file,omitempty"`
	// Msg carries the event payload.
	Msg Payload `json:"msg"`
}

// Payload is the body of a Message.
type Payload struct {
	File string `json:"file,omitempty"`
	Text string `json:"text,omitempty"`
}

// Path returns the document path, preferring msg.file over the top-level file.
func (m *Message) Path() string {
	if m.Msg.File != "" {
		return m.Msg.File
	}
	return m.File
}

// ProviderName is attached to every completion item produced by codelet.
const ProviderName = "codelet"

// CompletionItemKind follows the LSP CompletionItemKind numbering.
type CompletionItemKind int

// KindText is the generic "text" kind used for every LLM suggestion.
const KindText CompletionItemKind = 1

// CompletionItem is a single suggestion rendered by the editor.
type CompletionItem struct {
	Label         string             `json:"label"`
	InsertText    string             `json:"insertText"`
	FilterText    string             `json:"filterText"`
	SortText      int                `json:"sortText"`
	Documentation string             `json:"documentation"`
	Kind          CompletionItemKind `json:"kind"`
	Provider      string             `json:"provider"`
}

// CompletionResult answers a completion Message.
type CompletionResult struct {
	// Type is always "completion".
	Type string `json:"type"`
	// RequestID is echoed from the originating Message.
	RequestID int `json:"requestId"`
	// Params holds the items in the order the model returned them.
	Params []CompletionItem `json:"params"`
	// Error is set when no suggestions could be produced.
	Error *Error `json:"error,omitempty"`
}

// Status kinds.
const (
	StatusReady = "ready"
	StatusInfo  = "status"
	StatusError = "error"
)

// Status is a side-channel notification for the host's status indicator.
type Status struct {
	Kind  string `json:"kind"`
	Model string `json:"model,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// StatusNotification wraps a Status for the wire.
type StatusNotification struct {
	// Type is always "status".
	Type   string `json:"type"`
	Status Status `json:"status"`
}

// Error codes.
const (
	CodeFileNotOpen       = "file_not_open"
	CodeNotReady          = "not_ready"
	CodeCredential        = "credential_error"
	CodeAPIError          = "api_error"
	CodeTimeout           = "timeout"
	CodeMalformedResponse = "malformed_response"
	CodeNoSuggestions     = "no_suggestions"
	CodeInvalidRequest    = "invalid_request"
	CodeConfigError       = "config_error"
	CodeUnknownAction     = "unknown_action"
)

// Human-readable status messages.
const (
	MessageNoSuggestions = "No suggestions available"
	MessageMissingAPIKey = "Missing OpenAI API key"
	MessageUnexpected    = "Unexpected error"
)

// Error describes a daemon-side error reported to the host.
type Error struct {
	// Code is a machine-readable error identifier (e.g. "not_ready", "api_error").
	Code string `json:"code"`
	// Message is a human-readable error description.
	Message string `json:"message"`
}

// ConfigRequest is sent from the host for configuration operations.
type ConfigRequest struct {
	// Action is the config operation: "get", "reload", "defaults",
	// "default_prompt" or "validate".
	Action string `json:"action"`
}

// ConfigResponse is sent from the daemon in response to a ConfigRequest.
type ConfigResponse struct {
	// Config is the current configuration (for "get", "reload", and "defaults" actions).
	Config *Config `json:"config,omitempty"`
	// Prompt is the default prompt template (for "default_prompt" action).
	Prompt string `json:"prompt,omitempty"`
	// Warnings contains configuration warnings (for "validate" action).
	Warnings []string `json:"warnings,omitempty"`
	// Error is set when the operation fails.
	Error *Error `json:"error,omitempty"`
}
