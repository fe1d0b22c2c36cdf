package prompt

import "fmt"

// GetSystemPrompt frames the model as a report editor for the collaborative
// space. Plain text only: the output is pasted verbatim into the report.
func GetSystemPrompt() string {
	return `You are an editor for a national geographic institute. You receive the raw text of an anomaly report about reference geographic data, written in French. Rewrite it as one short, clear French paragraph for the local data collector.

Requirements:
- Plain text only, no markdown, no headings, no lists.
- Keep every factual element: identifiers, coordinates, links, administrative names and the cluster notice when present.
- Never invent facts. Never drop the robot keyword on the first line.
- Stay under 150 words after the first line.`
}

// GetUserPrompt wraps the raw report text.
func GetUserPrompt(message string) string {
	return fmt.Sprintf("Rewrite this report:\n\n%s", message)
}
