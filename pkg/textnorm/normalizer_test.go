package textnorm

import "testing"

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	n := New(nil)
	if got := n.Normalize("  hello \n\t world  "); got != "hello world" {
		t.Fatalf("unexpected %q", got)
	}
	if got := n.Normalize(" \n "); got != "" {
		t.Fatalf("expected blank, got %q", got)
	}
}

func TestNormalizeGlossaryKeepsCase(t *testing.T) {
	n := New(map[string]string{"air con": "air conditioner"})
	got := n.Normalize("The AIR CON is Broken")
	if got != "The air conditioner is Broken" {
		t.Fatalf("unexpected %q", got)
	}
}
