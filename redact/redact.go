// Package redact scrubs secrets from source text before it is sent to a
// remote model.
package redact

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// secretName matches identifiers whose assigned value should never leave the machine.
var secretName = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|passw(or)?d|credential)`)

var (
	reQuotedAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)(["']?\s*[:=]\s*)(["'])([^"'\n]*)["']`)
	reShellAssign  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
	reKeyToken     = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)
)

// Text redacts secrets in text written in the given language.
func Text(text, language string) string {
	switch strings.ToLower(language) {
	case "bash", "sh", "shell", "zsh":
		return Shell(text)
	}
	return Generic(text)
}

// Shell replaces the values assigned to secret-looking variables in a shell
// script with ***. The rest of the script is left byte-for-byte intact.
// Scripts that fail to parse (usually because the last line is still being
// typed) are redacted with a regex instead.
func Shell(script string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return shellRegex(script)
	}

	type span struct{ start, end uint }
	var spans []span
	syntax.Walk(prog, func(node syntax.Node) bool {
		if a, ok := node.(*syntax.Assign); ok && a.Name != nil && a.Value != nil && secretName.MatchString(a.Name.Value) {
			spans = append(spans, span{a.Value.Pos().Offset(), a.Value.End().Offset()})
		}
		return true
	})

	out := script
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		if s.end > uint(len(out)) || s.start > s.end {
			continue
		}
		out = out[:s.start] + "***" + out[s.end:]
	}
	return reKeyToken.ReplaceAllString(out, "sk-***")
}

// shellRegex is a fallback for scripts that fail AST parsing.
func shellRegex(script string) string {
	script = reShellAssign.ReplaceAllStringFunc(script, func(m string) string {
		parts := reShellAssign.FindStringSubmatch(m)
		if !secretName.MatchString(parts[1]) {
			return m
		}
		return parts[1] + "=***"
	})
	return reKeyToken.ReplaceAllString(script, "sk-***")
}

// Generic redacts quoted values assigned to secret-looking names
// (api_key = "...", "token": "...") and OpenAI-style sk- keys.
func Generic(text string) string {
	text = reQuotedAssign.ReplaceAllStringFunc(text, func(m string) string {
		parts := reQuotedAssign.FindStringSubmatch(m)
		if parts[4] == "" || !secretName.MatchString(parts[1]) {
			return m
		}
		return parts[1] + parts[2] + parts[3] + "***" + parts[3]
	})
	return reKeyToken.ReplaceAllString(text, "sk-***")
}
