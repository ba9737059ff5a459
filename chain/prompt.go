package chain

import (
	"log/slog"
	"strings"
	"text/template"

	codelet "github.com/Paranoid-AF/codelet"
	defaults "github.com/Paranoid-AF/codelet/default"
)

// DefaultSuggestions is used when the configured count is out of range.
const DefaultSuggestions = 4

// PromptData holds the data passed to the system prompt template.
type PromptData struct {
	Language    string
	Suggestions int
}

func promptData(cfg codelet.CompletionConfig) PromptData {
	n := cfg.Suggestions
	if n < 1 || n > 10 {
		n = DefaultSuggestions
	}
	return PromptData{
		Language:    strings.TrimSpace(cfg.Language),
		Suggestions: n,
	}
}

// RenderSystemPrompt renders the system instructions from custom, falling
// back to the embedded default when custom is empty or fails to render.
func RenderSystemPrompt(custom string, cfg codelet.CompletionConfig) string {
	data := promptData(cfg)
	if custom != "" {
		out, err := render(custom, data)
		if err == nil {
			return out
		}
		slog.Warn("failed to render custom prompt, falling back to default", "error", err)
	}
	out, err := render(defaults.DefaultPrompt, data)
	if err != nil {
		slog.Error("failed to render default prompt", "error", err)
		return "Complete the following code. Respond with JSON {\"suggestions\": [...]}."
	}
	return out
}

func render(src string, data PromptData) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), " \t\n"), nil
}
