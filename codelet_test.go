package codelet

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompletionResultParamsEmptyNotNull(t *testing.T) {
	res := CompletionResult{Type: TypeCompletion, RequestID: 3, Params: []CompletionItem{}}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"params":[]`) {
		t.Errorf("expected params:[], got %s", data)
	}
	if !strings.Contains(string(data), `"requestId":3`) {
		t.Errorf("expected requestId:3, got %s", data)
	}
}

func TestCompletionResultErrorOmittedWhenNil(t *testing.T) {
	data, err := json.Marshal(CompletionResult{Params: []CompletionItem{}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("expected no error key, got %s", data)
	}
}

func TestCompletionItemJSONFields(t *testing.T) {
	item := CompletionItem{
		Label:         "print(a)",
		InsertText:    "print(a)",
		SortText:      2,
		Documentation: "print(a)",
		Kind:          KindText,
		Provider:      ProviderName,
	}
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"label":"print(a)"`, `"insertText":"print(a)"`, `"filterText":""`, `"sortText":2`, `"kind":1`, `"provider":"codelet"`} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %s in %s", want, s)
		}
	}
}

func TestMessageDecode(t *testing.T) {
	raw := `{"type":"didOpen","id":1,"file":"/a.py","msg":{"file":"/b.py","text":"x = 1"}}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}
	if m.Type != TypeDidOpen || m.ID != 1 {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Path() != "/b.py" {
		t.Errorf("expected msg.file to win, got %q", m.Path())
	}
	m.Msg.File = ""
	if m.Path() != "/a.py" {
		t.Errorf("expected top-level file fallback, got %q", m.Path())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Generation.Backend != BackendLangchain {
		t.Errorf("expected langchain backend, got %q", cfg.Generation.Backend)
	}
	if cfg.Generation.Model != "gpt-3.5-turbo" {
		t.Errorf("expected gpt-3.5-turbo, got %q", cfg.Generation.Model)
	}
	if cfg.Completion.Language != "python" {
		t.Errorf("expected python, got %q", cfg.Completion.Language)
	}
	if cfg.Completion.Suggestions != 4 {
		t.Errorf("expected 4 suggestions, got %d", cfg.Completion.Suggestions)
	}
	if !cfg.Completion.RedactSecrets {
		t.Error("expected redact_secrets on by default")
	}
	if cfg.Files.MaxOpen <= 0 {
		t.Errorf("expected positive max_open, got %d", cfg.Files.MaxOpen)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != DefaultConfig().Generation.Model {
		t.Errorf("expected default model, got %q", cfg.Generation.Model)
	}
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[generation]\nmodel = \"gpt-4\"\n\n[completion]\nsuggestions = 7\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != "gpt-4" {
		t.Errorf("expected gpt-4, got %q", cfg.Generation.Model)
	}
	if cfg.Completion.Suggestions != 7 {
		t.Errorf("expected 7, got %d", cfg.Completion.Suggestions)
	}
	if cfg.Completion.Language != "python" {
		t.Errorf("expected default language, got %q", cfg.Completion.Language)
	}
	if cfg.Generation.TimeoutSeconds != 30 {
		t.Errorf("expected default timeout, got %d", cfg.Generation.TimeoutSeconds)
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[generation\nmodel="), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfigDirResolution(t *testing.T) {
	t.Setenv("CODELET_CONFIG_DIR", "/custom/codelet")
	if got := ConfigDir(); got != "/custom/codelet" {
		t.Errorf("expected /custom/codelet, got %s", got)
	}
	t.Setenv("CODELET_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != "/xdg/codelet" {
		t.Errorf("expected /xdg/codelet, got %s", got)
	}
	if got := ConfigPath(); got != "/xdg/codelet/config.toml" {
		t.Errorf("expected /xdg/codelet/config.toml, got %s", got)
	}
}

func TestResolveAPIKeyPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.APIKey = "from-config"

	t.Setenv("CODELET_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if got := ResolveAPIKey(cfg); got != "from-config" {
		t.Errorf("expected from-config, got %q", got)
	}
	t.Setenv("OPENAI_API_KEY", "from-openai-env")
	if got := ResolveAPIKey(cfg); got != "from-openai-env" {
		t.Errorf("expected from-openai-env, got %q", got)
	}
	t.Setenv("CODELET_API_KEY", "from-codelet-env")
	if got := ResolveAPIKey(cfg); got != "from-codelet-env" {
		t.Errorf("expected from-codelet-env, got %q", got)
	}
}

func TestResolveModelEnvOverride(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("CODELET_MODEL", "")
	if got := ResolveModel(cfg); got != "gpt-3.5-turbo" {
		t.Errorf("expected config model, got %q", got)
	}
	t.Setenv("CODELET_MODEL", "gpt-4")
	if got := ResolveModel(cfg); got != "gpt-4" {
		t.Errorf("expected env model, got %q", got)
	}
}

func TestAPIKeyNotMarshaled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.APIKey = "sk-secret"
	data, err := json.Marshal(ConfigResponse{Config: cfg})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Errorf("API key leaked into config response: %s", data)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Setenv("CODELET_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := DefaultConfig()
	cfg.Generation.APIKey = "key"
	if w := ValidateConfig(cfg); len(w) != 0 {
		t.Errorf("expected no warnings, got %v", w)
	}

	cfg.Generation.APIKey = ""
	cfg.Generation.Backend = "llama"
	cfg.Completion.Suggestions = 11
	w := ValidateConfig(cfg)
	if len(w) != 3 {
		t.Fatalf("expected 3 warnings, got %v", w)
	}
	if ValidateConfig(nil) != nil {
		t.Error("expected nil warnings for nil config")
	}
}
