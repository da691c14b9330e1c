package notedoc

import (
	"encoding/json"
	"testing"
)

func TestWireFormat(t *testing.T) {
	// WHAT: JSON encoding matches the publish API contract exactly.
	// WHY: The wire format is a bit-exact external interface.
	doc := NewDoc(
		NewParagraph(
			NewText("hello ", BoldMark()),
			NewText("world", LinkMark("https://example.com")),
		),
		NewImage("img-uuid-1", "center", "a cat"),
	)

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"doc","content":[` +
		`{"type":"paragraph","content":[` +
		`{"type":"text","text":"hello ","marks":[{"type":"bold"}]},` +
		`{"type":"text","text":"world","marks":[{"type":"link","attrs":{"href":"https://example.com"}}]}]},` +
		`{"type":"image","attrs":{"align":"center","alt":"a cat","uuid":"img-uuid-1"}}]}`
	if string(raw) != want {
		t.Errorf("wire mismatch:\n got %s\nwant %s", raw, want)
	}
}

func TestAddMarkDedup(t *testing.T) {
	// WHAT: Marks are deduplicated by kind.
	run := NewText("x", BoldMark(), BoldMark(), LinkMark("a"))
	run.AddMark(LinkMark("b"))
	if len(run.Marks) != 2 {
		t.Fatalf("marks: got %d, want 2", len(run.Marks))
	}
	if run.Marks[1].Attrs["href"] != "a" {
		t.Errorf("first link must win, got %q", run.Marks[1].Attrs["href"])
	}
}

func TestVisibleLen(t *testing.T) {
	// WHAT: Visible length counts runes of text runs only.
	// WHY: The split budget governs human-readable length, not markup.
	doc := NewDoc(
		NewParagraph(NewText("héllo", BoldMark())),
		NewImage("u", "center", "ignored alt"),
		NewQuote(NewText("引用")),
	)
	if got := doc.VisibleLen(); got != 7 {
		t.Errorf("visible len: got %d, want 7", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	// WHAT: Clone yields an independent tree.
	orig := NewDoc(NewParagraph(NewText("a", LinkMark("x"))))
	cp := orig.Clone()
	cp.Content[0].Content[0].Text = "b"
	cp.Content[0].Content[0].Marks[0].Attrs["href"] = "y"
	if orig.Content[0].Content[0].Text != "a" {
		t.Error("clone shares text")
	}
	if orig.Content[0].Content[0].Marks[0].Attrs["href"] != "x" {
		t.Error("clone shares mark attrs")
	}
}
