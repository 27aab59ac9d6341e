package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity separates problems that block a run from advice.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// maxSummarized bounds how many messages ToError folds into its message.
const maxSummarized = 3

// ValidationIssue is one finding about a workflow document. Path locates it
// in the document (nodes[2].trueNext); NodeID is set when it concerns a
// single node with a usable id.
type ValidationIssue struct {
	Path     string             `json:"path"`
	NodeID   string             `json:"nodeId,omitempty"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult collects the findings of every validation layer. Only
// errors make a workflow unrunnable.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// NodePath builds the document path of a node field; an empty field
// addresses the node itself.
func NodePath(index int, field string) string {
	if field == "" {
		return fmt.Sprintf("nodes[%d]", index)
	}
	return fmt.Sprintf("nodes[%d].%s", index, field)
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records a blocking issue at a document path.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarning records advice at a document path.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// AddNodeError records a blocking issue on field of the node at index.
func (r *ValidationResult) AddNodeError(index int, nodeID, field, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: NodePath(index, field), NodeID: nodeID, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddNodeWarning records advice on field of the node at index.
func (r *ValidationResult) AddNodeWarning(index int, nodeID, field, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: NodePath(index, field), NodeID: nodeID, Code: code, Message: message, Severity: SeverityWarning,
	})
}

// Merge appends other's findings; a nil other is ignored.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ForNode returns the errors and warnings attached to node id, errors first.
func (r *ValidationResult) ForNode(id string) []ValidationIssue {
	var out []ValidationIssue
	for _, list := range [][]ValidationIssue{r.Errors, r.Warnings} {
		for _, issue := range list {
			if issue.NodeID == id {
				out = append(out, issue)
			}
		}
	}
	return out
}

// ToError returns nil for a valid result. Otherwise the error carries the
// first few messages, the node of the first error and every issue in
// Details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	n := min(len(r.Errors), maxSummarized)
	msgs := make([]string, 0, n)
	for _, issue := range r.Errors[:n] {
		msgs = append(msgs, issue.Message)
	}
	msg := strings.Join(msgs, "; ")
	if extra := len(r.Errors) - n; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}

	err := NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
	if id := r.Errors[0].NodeID; id != "" {
		err = err.WithNode(id)
	}
	return err
}
