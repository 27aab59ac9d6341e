package schema

// PromptKind identifies the shape of input a prompt asks the user for.
type PromptKind string

const (
	PromptText      PromptKind = "text"
	PromptChoice    PromptKind = "choice"
	PromptMulti     PromptKind = "multi"
	PromptConfirm   PromptKind = "confirm"
	PromptFile      PromptKind = "file"
	PromptWriteFile PromptKind = "write-confirm"
)

// PromptRequest is sent to the interactive hook when a node suspends for user input.
type PromptRequest struct {
	ID      string     `json:"id"`
	RunID   string     `json:"runId,omitempty"`
	NodeID  string     `json:"nodeId"`
	Kind    PromptKind `json:"kind"`
	Title   string     `json:"title,omitempty"`
	Message string     `json:"message,omitempty"`
	Options []string   `json:"options,omitempty"`
	Default string     `json:"default,omitempty"`
	Folder  string     `json:"folder,omitempty"`
	Filters []string   `json:"filters,omitempty"`
	Preview string     `json:"preview,omitempty"`
}

// PromptResponse resolves a PromptRequest. Cancelled means the user dismissed it.
type PromptResponse struct {
	RequestID string   `json:"requestId"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	Cancelled bool     `json:"cancelled,omitempty"`
}
