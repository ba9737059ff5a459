package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	codelet "github.com/Paranoid-AF/codelet"
	"github.com/Paranoid-AF/codelet/chain"
)

func TestCompleteOnce(t *testing.T) {
	t.Setenv("CODELET_MODEL", "")
	cfg := testConfig()
	cfg.Generation.Model = "one-shot"

	r, err := completeOnce(cfg, "main.go", "package main\n", stubFactory(nil))
	if err != nil {
		t.Fatal(err)
	}
	if r.Error != nil {
		t.Fatalf("unexpected error: %+v", r.Error)
	}
	if len(r.Suggestions) != 1 || r.Suggestions[0].Text != "one-shot" || r.Suggestions[0].Rank != 0 {
		t.Errorf("suggestions = %+v", r.Suggestions)
	}
	if r.Request.File != "main.go" || r.Request.Model != "one-shot" {
		t.Errorf("request = %+v", r.Request)
	}

	var buf bytes.Buffer
	if err := writeReport(&buf, r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"[request]", "[[suggestion]]", `text = "one-shot"`} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}

	var decoded report
	if _, err := toml.Decode(out, &decoded); err != nil {
		t.Fatalf("report is not valid TOML: %v", err)
	}
}

func TestCompleteOnceMissingCredential(t *testing.T) {
	r, err := completeOnce(testConfig(), "main.go", "x", stubFactory(chain.ErrMissingCredential))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Suggestions) != 0 {
		t.Errorf("suggestions = %+v, want none", r.Suggestions)
	}
	if r.Error == nil || r.Error.Code != codelet.CodeNotReady {
		t.Fatalf("error = %+v, want %s", r.Error, codelet.CodeNotReady)
	}

	found := false
	for _, s := range r.Status {
		if s == codelet.MessageMissingAPIKey {
			found = true
		}
	}
	if !found {
		t.Errorf("status = %v, want %q", r.Status, codelet.MessageMissingAPIKey)
	}
}
