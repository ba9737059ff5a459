// Package suggest parses model output into ordered completion items.
package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	codelet "github.com/Paranoid-AF/codelet"
)

// ErrMalformedResponse is returned when no parsing rule yields a suggestion list.
var ErrMalformedResponse = errors.New("malformed model response")

type response struct {
	Suggestions *[]string `json:"suggestions"`
}

var quoteSwap = strings.NewReplacer(`"`, `'`, `'`, `"`)

// Parse extracts the suggestion list from raw model output.
//
// The output is tried as-is, then wrapped in braces when the outer { } is
// missing, then with single and double quotes swapped (models sometimes
// answer with a single-quoted dict). The first variant that decodes to an
// object with a "suggestions" string array wins. Blank suggestions are
// dropped; everything else is kept in the model's order, repeats included.
func Parse(raw string) ([]string, error) {
	for _, variant := range variants(raw) {
		var r response
		if err := json.Unmarshal([]byte(variant), &r); err != nil || r.Suggestions == nil {
			continue
		}
		return clean(*r.Suggestions), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(raw, 120))
}

// variants returns the candidate JSON texts for raw, in the order they are tried.
func variants(raw string) []string {
	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		return nil
	}
	out := []string{text}
	if !strings.HasPrefix(text, "{") {
		out = append(out, "{"+text+"}")
	}
	if strings.Contains(text, "'") {
		for _, v := range out {
			out = append(out, quoteSwap.Replace(v))
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence (```json ... ```).
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clean(suggestions []string) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Items maps suggestions to completion items. The rank of each item is its
// position in suggestions.
func Items(suggestions []string) []codelet.CompletionItem {
	items := make([]codelet.CompletionItem, 0, len(suggestions))
	for i, s := range suggestions {
		items = append(items, codelet.CompletionItem{
			Label:         s,
			InsertText:    s,
			SortText:      i,
			Documentation: s,
			Kind:          codelet.KindText,
			Provider:      codelet.ProviderName,
		})
	}
	return items
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
