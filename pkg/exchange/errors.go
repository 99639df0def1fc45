package exchange

import (
	"fmt"

	"github.com/papercomputeco/chatkeep/pkg/completion"
)

// ValidationError reports caller input that was rejected before any state
// was touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ErrEmptyMessage is returned for a message that is empty after trimming.
var ErrEmptyMessage = &ValidationError{Field: "message", Reason: "No message provided"}

// FaultReply is the assistant text recorded in place of a failed completion.
func FaultReply(f *completion.Fault) string {
	return "Error: " + f.Error()
}

// SummaryFaultReply is returned in place of a failed summary.
func SummaryFaultReply(f *completion.Fault) string {
	return "Error generating summary: " + f.Error()
}
