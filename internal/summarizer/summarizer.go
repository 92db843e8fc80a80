package summarizer

import (
	"context"
)

// Input describes the payload for a summary request.
type Input struct {
	// Text contains the article body. It is sent as is.
	Text string
	// SourceURL is optional metadata used only for logging.
	SourceURL string
}

// Summarizer produces a single summary for a given input text.
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}

const instruction = "Write a neutral, concise summary in English of the following press article " +
	"in about 100 to 130 words. " +
	"Do NOT include phrases like 'Here is a summary' or 'In conclusion'; " +
	"start directly with the content of the summary."

// BuildPrompt prepends the fixed instruction to the article text.
func BuildPrompt(text string) string {
	return instruction + "\n\n" + text
}
