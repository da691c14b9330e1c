package split

import (
	"strings"
	"testing"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

func docOfParagraphs(sizes ...int) *notedoc.Node {
	blocks := make([]*notedoc.Node, len(sizes))
	for i, n := range sizes {
		blocks[i] = notedoc.NewParagraph(notedoc.NewText(strings.Repeat("字", n)))
	}
	return notedoc.NewDoc(blocks...)
}

func TestUnderBudgetSinglePart(t *testing.T) {
	// WHAT: Inputs under the budget return exactly one part equal to
	// the input, title untouched.
	doc := docOfParagraphs(100, 200)
	parts := Split("标题", doc, 1000)
	if len(parts) != 1 {
		t.Fatalf("parts: got %d, want 1", len(parts))
	}
	if parts[0].Title != "标题" || parts[0].Total != 1 {
		t.Errorf("part: %+v", parts[0])
	}
	if parts[0].Content != doc {
		t.Error("single part must be the input document")
	}
}

func TestOverBudgetExample(t *testing.T) {
	// WHAT: budget=19000 with a 25000-char input yields ≥2 parts, each
	// ≤19000 visible chars, titled X（1/2）, X（2/2）.
	// WHY: Worked example from the splitter contract.
	sizes := make([]int, 25)
	for i := range sizes {
		sizes[i] = 1000
	}
	parts := Split("X", docOfParagraphs(sizes...), 19000)
	if len(parts) != 2 {
		t.Fatalf("parts: got %d, want 2", len(parts))
	}
	for _, p := range parts {
		if got := p.Content.VisibleLen(); got > 19000 {
			t.Errorf("part %d: %d visible chars over budget", p.Index, got)
		}
	}
	if parts[0].Title != "X（1/2）" || parts[1].Title != "X（2/2）" {
		t.Errorf("titles: %q / %q", parts[0].Title, parts[1].Title)
	}
	if parts[0].Total != 2 || parts[1].Total != 2 {
		t.Error("total must be shared across parts")
	}
}

func TestVisibleTextReconstructs(t *testing.T) {
	// WHAT: Concatenating all parts reconstructs the original visible
	// text, nothing reordered or duplicated.
	doc := notedoc.NewDoc(
		notedoc.NewParagraph(notedoc.NewText(strings.Repeat("a", 40))),
		notedoc.NewQuote(notedoc.NewText(strings.Repeat("b", 40))),
		notedoc.NewParagraph(notedoc.NewText(strings.Repeat("c", 40))),
		notedoc.NewParagraph(notedoc.NewText(strings.Repeat("d", 40))),
	)
	parts := Split("t", doc, 90)
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Content.PlainText())
	}
	if sb.String() != doc.PlainText() {
		t.Errorf("reconstruction mismatch:\n got %q\nwant %q", sb.String(), doc.PlainText())
	}
}

func TestOversizedSingleBlock(t *testing.T) {
	// WHAT: A block bigger than the budget travels alone; a part is
	// never closed while empty.
	parts := Split("t", docOfParagraphs(10, 500, 10), 100)
	if len(parts) != 3 {
		t.Fatalf("parts: got %d, want 3", len(parts))
	}
	if got := parts[1].Content.VisibleLen(); got != 500 {
		t.Errorf("middle part: %d", got)
	}
	for _, p := range parts {
		if len(p.Content.Content) == 0 {
			t.Error("empty part emitted")
		}
	}
}
