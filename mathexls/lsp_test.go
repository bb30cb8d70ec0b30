package mathexls

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/mathex"
	"github.com/chazu/mathex/presets"
)

func newTestParser(t *testing.T) *mathex.Parser {
	t.Helper()
	p := mathex.New()
	if err := presets.RegisterStandard(p); err != nil {
		t.Fatal(err)
	}
	return p
}

// ---------------------------------------------------------------------------
// text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractWord_SimpleWord(t *testing.T) {
	text := "sin(x) + y"
	pos := protocol.Position{Line: 0, Character: 1}
	if word := extractWord(text, pos); word != "sin" {
		t.Errorf("extractWord = %q, want %q", word, "sin")
	}
}

func TestExtractWord_EmptyLine(t *testing.T) {
	pos := protocol.Position{Line: 0, Character: 0}
	if word := extractWord("", pos); word != "" {
		t.Errorf("extractWord = %q, want empty string", word)
	}
}

func TestExtractWord_MultiLine(t *testing.T) {
	text := "a = 1\nsin(a)"
	pos := protocol.Position{Line: 1, Character: 1}
	if word := extractWord(text, pos); word != "sin" {
		t.Errorf("extractWord = %q, want %q", word, "sin")
	}
}

func TestExtractWord_LineBeyondDocument(t *testing.T) {
	pos := protocol.Position{Line: 5, Character: 0}
	if word := extractWord("single line", pos); word != "" {
		t.Errorf("extractWord beyond doc = %q, want empty string", word)
	}
}

func TestExtractPrefix_SimpleWord(t *testing.T) {
	text := "max(1, mi"
	pos := protocol.Position{Line: 0, Character: 9}
	if prefix := extractPrefix(text, pos); prefix != "mi" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "mi")
	}
}

func TestExtractPrefix_CursorAtBeginning(t *testing.T) {
	pos := protocol.Position{Line: 0, Character: 0}
	if prefix := extractPrefix("hello", pos); prefix != "" {
		t.Errorf("extractPrefix at position 0 = %q, want empty string", prefix)
	}
}

func TestIdentifiersIn(t *testing.T) {
	got := identifiersIn("a + b2 * sin(c)")
	want := map[string]bool{"a": true, "b2": true, "sin": true, "c": true}
	if len(got) != len(want) {
		t.Fatalf("identifiersIn = %v, want 4 names", got)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected identifier %q", name)
		}
	}
}

// ---------------------------------------------------------------------------
// diagnostics
// ---------------------------------------------------------------------------

func TestCompileDocument_ReportsErrorLine(t *testing.T) {
	p := newTestParser(t)
	diags := compileDocument(p, "1 + 1\n1 +\nsin(2)")
	if len(diags) != 1 {
		t.Fatalf("compileDocument: %d diagnostics, want 1 (got %+v)", len(diags), diags)
	}
	if diags[0].Range.Start.Line != 1 {
		t.Errorf("diagnostic on line %d, want line 1", diags[0].Range.Start.Line)
	}
}

func TestCompileDocument_PreDeclaresIdentifiersAcrossLines(t *testing.T) {
	p := newTestParser(t)
	// "a" is only ever assigned in the first line but used standalone
	// in the second; both must compile since a is pre-declared once
	// for the whole document.
	diags := compileDocument(p, "a = 3\na * 2")
	if len(diags) != 0 {
		t.Fatalf("compileDocument: unexpected diagnostics %+v", diags)
	}
}

func TestCompileDocument_BlankLinesSkipped(t *testing.T) {
	p := newTestParser(t)
	diags := compileDocument(p, "1+1\n\n   \n2+2")
	if len(diags) != 0 {
		t.Fatalf("compileDocument: unexpected diagnostics %+v", diags)
	}
}

// ---------------------------------------------------------------------------
// hover / completion
// ---------------------------------------------------------------------------

func TestHoverForFunction(t *testing.T) {
	p := newTestParser(t)
	hover := hoverFor(p, "sin")
	if hover == nil {
		t.Fatal("hoverFor(sin) = nil, want a hover")
	}
}

func TestHoverForUnknownWord(t *testing.T) {
	p := newTestParser(t)
	if hover := hoverFor(p, "nope"); hover != nil {
		t.Errorf("hoverFor(nope) = %+v, want nil", hover)
	}
}

func TestHoverForVariable(t *testing.T) {
	p := newTestParser(t)
	if _, err := p.DefineVar("x"); err != nil {
		t.Fatal(err)
	}
	if hover := hoverFor(p, "x"); hover == nil {
		t.Fatal("hoverFor(x) = nil, want a hover describing the variable")
	}
}

func TestCompletionsForPrefix(t *testing.T) {
	p := newTestParser(t)
	items := completionsFor(p, "si")
	found := false
	for _, item := range items {
		if item.Label == "sin" {
			found = true
		}
		if item.Label == "max" {
			t.Errorf("completionsFor(si) included non-matching label %q", item.Label)
		}
	}
	if !found {
		t.Error("completionsFor(si) did not include sin")
	}
}

func TestCompletionsForEmptyPrefixListsEverything(t *testing.T) {
	p := newTestParser(t)
	items := completionsFor(p, "")
	if len(items) == 0 {
		t.Fatal("completionsFor(\"\") returned no items")
	}
}
