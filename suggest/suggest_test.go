package suggest

import (
	"errors"
	"reflect"
	"testing"

	codelet "github.com/Paranoid-AF/codelet"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"bare object", `{"suggestions": ["a", "b"]}`, []string{"a", "b"}},
		{"missing braces", `"suggestions": ["a", "b"]`, []string{"a", "b"}},
		{"surrounding whitespace", "\n  {\"suggestions\": [\"x\"]}\n", []string{"x"}},
		{"code fence", "```json\n{\"suggestions\": [\"x\", \"y\"]}\n```", []string{"x", "y"}},
		{"single quoted dict", `{'suggestions': ['print(a)', 'print(b)']}`, []string{"print(a)", "print(b)"}},
		{"single quoted without braces", `'suggestions': ['c = a + b']`, []string{"c = a + b"}},
		{"blank dropped", `{"suggestions": ["a", " ", "", "b"]}`, []string{"a", "b"}},
		{"repeats kept", `{"suggestions": ["x", "x", "y"]}`, []string{"x", "x", "y"}},
		{"empty list", `{"suggestions": []}`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseMissingBracesMatchesBareObject(t *testing.T) {
	wrapped, err := Parse(`{"suggestions": ["a", "b"]}`)
	if err != nil {
		t.Fatal(err)
	}
	bare, err := Parse(`"suggestions": ["a", "b"]`)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(wrapped, bare) {
		t.Errorf("expected %q, got %q", wrapped, bare)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"truncated", `{"suggestions": ["a", "b`},
		{"empty", ""},
		{"prose", "Here are some suggestions: print(a)"},
		{"no suggestions key", `{"completions": ["a"]}`},
		{"non string items", `{"suggestions": [1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedResponse", tt.raw, err)
			}
		})
	}
}

func TestItemsPreserveOrder(t *testing.T) {
	items := Items([]string{"x", "y", "z"})
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, want := range []string{"x", "y", "z"} {
		it := items[i]
		if it.SortText != i {
			t.Errorf("item %d: expected rank %d, got %d", i, i, it.SortText)
		}
		if it.Label != want || it.InsertText != want || it.Documentation != want {
			t.Errorf("item %d: expected label/insertText/documentation %q, got %+v", i, want, it)
		}
		if it.Kind != codelet.KindText {
			t.Errorf("item %d: expected text kind, got %d", i, it.Kind)
		}
		if it.Provider != codelet.ProviderName {
			t.Errorf("item %d: expected provider %q, got %q", i, codelet.ProviderName, it.Provider)
		}
	}
}

func TestItemsEmptyNotNil(t *testing.T) {
	if items := Items(nil); items == nil {
		t.Error("expected non-nil empty slice")
	}
}

func TestRepeatedSuggestionsKeepTheirRank(t *testing.T) {
	got, err := Parse(`{"suggestions": ["x", "x", "y"]}`)
	if err != nil {
		t.Fatal(err)
	}
	items := Items(got)
	want := []string{"x", "x", "y"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, it := range items {
		if it.Label != want[i] || it.SortText != i {
			t.Errorf("item %d: expected %q at rank %d, got %q at rank %d", i, want[i], i, it.Label, it.SortText)
		}
	}
}
