package ai

import "context"

// Summarizer condenses a cluster report message into a short paragraph
// appended for the benefit of the collectors reading the report.
type Summarizer interface {
	Summarize(ctx context.Context, message string) (string, error)
}
