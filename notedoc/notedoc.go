// Package notedoc defines the structured-document tree produced by the
// converter and consumed by the publish API.
//
// The tree has exactly five node kinds: a doc owns block nodes
// (paragraph, quote, image), paragraphs and quotes own text runs, and a
// text run carries a string plus optional formatting marks. An empty
// paragraph (no runs) denotes an intentional blank line. The JSON
// encoding of a Node is the bit-exact wire payload the API expects.
package notedoc

import "unicode/utf8"

// NodeType identifies one of the five node kinds.
type NodeType string

const (
	TypeDoc       NodeType = "doc"
	TypeParagraph NodeType = "paragraph"
	TypeQuote     NodeType = "quote"
	TypeImage     NodeType = "image"
	TypeText      NodeType = "text"
)

// MarkType identifies an inline formatting mark.
type MarkType string

const (
	MarkBold      MarkType = "bold"
	MarkItalic    MarkType = "italic"
	MarkHighlight MarkType = "highlight"
	MarkLink      MarkType = "link"
	MarkCode      MarkType = "code"
)

// Mark is an inline formatting annotation on a text run. Link marks carry
// the target in Attrs["href"].
type Mark struct {
	Type  MarkType          `json:"type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Node is the tagged-union document node. Which fields are meaningful is
// determined by Type: Content for doc/paragraph/quote, Text+Marks for
// text, Attrs for image (uuid, align, alt).
type Node struct {
	Type    NodeType          `json:"type"`
	Text    string            `json:"text,omitempty"`
	Marks   []Mark            `json:"marks,omitempty"`
	Content []*Node           `json:"content,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// NewDoc returns a doc node owning the given blocks.
func NewDoc(blocks ...*Node) *Node {
	return &Node{Type: TypeDoc, Content: blocks}
}

// NewParagraph returns a paragraph owning the given runs. With no runs it
// is an intentional blank line.
func NewParagraph(runs ...*Node) *Node {
	return &Node{Type: TypeParagraph, Content: runs}
}

// NewQuote returns a quote owning the given runs.
func NewQuote(runs ...*Node) *Node {
	return &Node{Type: TypeQuote, Content: runs}
}

// NewText returns a text run. Marks are deduplicated by kind.
func NewText(text string, marks ...Mark) *Node {
	n := &Node{Type: TypeText, Text: text}
	for _, m := range marks {
		n.AddMark(m)
	}
	return n
}

// NewImage returns an image node for an uploaded asset. alt may be empty.
func NewImage(uuid, align, alt string) *Node {
	attrs := map[string]string{"uuid": uuid, "align": align}
	if alt != "" {
		attrs["alt"] = alt
	}
	return &Node{Type: TypeImage, Attrs: attrs}
}

// AddMark attaches a mark to a text run unless a mark of the same kind is
// already present.
func (n *Node) AddMark(m Mark) {
	for _, have := range n.Marks {
		if have.Type == m.Type {
			return
		}
	}
	n.Marks = append(n.Marks, m)
}

// HasMark reports whether a mark of the given kind is attached.
func (n *Node) HasMark(t MarkType) bool {
	for _, m := range n.Marks {
		if m.Type == t {
			return true
		}
	}
	return false
}

// IsEmptyParagraph reports whether n is a paragraph with no runs, i.e. an
// intentional blank line.
func (n *Node) IsEmptyParagraph() bool {
	return n.Type == TypeParagraph && len(n.Content) == 0
}

// VisibleLen returns the number of human-visible characters (runes) in
// the subtree. Markup, marks and image attributes do not count; this is
// the quantity the server-side length limit is enforced against.
func (n *Node) VisibleLen() int {
	if n == nil {
		return 0
	}
	if n.Type == TypeText {
		return utf8.RuneCountInString(n.Text)
	}
	total := 0
	for _, c := range n.Content {
		total += c.VisibleLen()
	}
	return total
}

// PlainText flattens the subtree to its visible text, in reading order.
func (n *Node) PlainText() string {
	if n == nil {
		return ""
	}
	if n.Type == TypeText {
		return n.Text
	}
	var out string
	for _, c := range n.Content {
		out += c.PlainText()
	}
	return out
}

// Clone returns a deep copy of the subtree. Each pass of the pipeline
// owns its tree exclusively; cloning is how a tree crosses an ownership
// boundary.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, Text: n.Text}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			out.Marks[i] = Mark{Type: m.Type}
			if m.Attrs != nil {
				out.Marks[i].Attrs = make(map[string]string, len(m.Attrs))
				for k, v := range m.Attrs {
					out.Marks[i].Attrs[k] = v
				}
			}
		}
	}
	if n.Attrs != nil {
		out.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if n.Content != nil {
		out.Content = make([]*Node, len(n.Content))
		for i, c := range n.Content {
			out.Content[i] = c.Clone()
		}
	}
	return out
}

// LinkMark builds a link mark targeting href.
func LinkMark(href string) Mark {
	return Mark{Type: MarkLink, Attrs: map[string]string{"href": href}}
}

// BoldMark builds a bold mark.
func BoldMark() Mark { return Mark{Type: MarkBold} }
