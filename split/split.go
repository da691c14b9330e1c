// Package split partitions an oversized document into length-bounded
// parts along block boundaries.
//
// The budget counts visible characters — what the server-side length
// limit is enforced against — not markup length. Parts are block-granular:
// a block is never cut in half, so a single block larger than the budget
// still travels alone in its own part.
package split

import (
	"fmt"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// DefaultBudget is the visible-character ceiling for one note, kept a
// little under the server's hard limit.
const DefaultBudget = 19000

// Part is one length-bounded slice of the original document. It is
// created here, consumed once by the publish orchestrator, and then
// discarded.
type Part struct {
	Index   int // 1-based
	Total   int
	Title   string
	Content *notedoc.Node // a doc node
}

// Split partitions a title/content pair under the given budget. Content
// under budget comes back as exactly one part with the title untouched;
// otherwise every part is titled "T（i/n）" with a shared total.
func Split(title string, doc *notedoc.Node, budget int) []Part {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if doc.VisibleLen() <= budget {
		return []Part{{Index: 1, Total: 1, Title: title, Content: doc}}
	}

	var groups [][]*notedoc.Node
	var current []*notedoc.Node
	used := 0
	for _, block := range doc.Content {
		n := block.VisibleLen()
		// Close the part when the next block would overflow it, but never
		// close a part that is still empty.
		if used+n > budget && len(current) > 0 {
			groups = append(groups, current)
			current = nil
			used = 0
		}
		current = append(current, block)
		used += n
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	total := len(groups)
	parts := make([]Part, total)
	for i, blocks := range groups {
		parts[i] = Part{
			Index:   i + 1,
			Total:   total,
			Title:   fmt.Sprintf("%s（%d/%d）", title, i+1, total),
			Content: notedoc.NewDoc(blocks...),
		}
	}
	return parts
}
