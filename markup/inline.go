package markup

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

var (
	bareURLRe    = regexp.MustCompile(`https?://[^\s<>"'）)]+`)
	whitespaceRe = regexp.MustCompile(`[ \t\r\n\f]+`)

	boldStyleRe   = regexp.MustCompile(`(?i)font-weight\s*:\s*(bold|bolder|[6-9]00)`)
	italicStyleRe = regexp.MustCompile(`(?i)font-style\s*:\s*italic`)
)

// imageRun is an inline placeholder for an <img> met while collecting
// runs. The block assembly splits it out into its own node.
func imageRun(src, alt string) *notedoc.Node {
	return &notedoc.Node{Type: notedoc.TypeImage, Attrs: map[string]string{"src": src, "alt": alt}}
}

func isImageRun(n *notedoc.Node) bool {
	return n.Type == notedoc.TypeImage && n.Attrs["src"] != ""
}

// runCollector accumulates text runs for one inline context, split into
// lines at <br> (and optionally at nested block boundaries).
type runCollector struct {
	lines       [][]*notedoc.Node
	blockBreaks bool // treat nested block elements as line breaks
	skipLists   bool // ignore nested ul/ol subtrees (handled by the caller)
	keepImages  bool // record <img> as placeholder runs
}

func newRunCollector() *runCollector {
	return &runCollector{lines: make([][]*notedoc.Node, 1)}
}

func (c *runCollector) breakLine() {
	c.lines = append(c.lines, nil)
}

func (c *runCollector) add(run *notedoc.Node) {
	i := len(c.lines) - 1
	c.lines[i] = append(c.lines[i], run)
}

// collect walks an inline subtree, maintaining the mark stack. Opening a
// formatting element pushes its mark; the stack never holds two marks of
// the same kind, so nested emphasis cannot duplicate marks.
func (c *runCollector) collect(n *html.Node, stack []notedoc.Mark) {
	switch n.Type {
	case html.TextNode:
		c.addText(n.Data, stack)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		case atom.Br:
			c.breakLine()
			return
		case atom.Img:
			if c.keepImages {
				if src := imgSrc(n); src != "" {
					c.add(imageRun(src, attrVal(n, "alt")))
				}
			}
			return
		case atom.Ul, atom.Ol:
			if c.skipLists {
				return
			}
		}
		if hasHiddenStyle(n) {
			return
		}
		if c.blockBreaks && isBlockLevel(n.DataAtom) {
			c.breakLine()
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				c.collect(child, stack)
			}
			c.breakLine()
			return
		}
		stack = pushMarks(stack, n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collect(child, stack)
	}
}

// addText normalizes whitespace, splits out bare URLs as their own runs
// with an implicit link mark, and stamps the current mark stack.
func (c *runCollector) addText(text string, stack []notedoc.Mark) {
	text = whitespaceRe.ReplaceAllString(text, " ")
	if text == "" {
		return
	}
	linked := hasMarkKind(stack, notedoc.MarkLink)
	rest := text
	for rest != "" {
		loc := bareURLRe.FindStringIndex(rest)
		if loc == nil || linked {
			c.add(textRun(rest, stack))
			return
		}
		if loc[0] > 0 {
			c.add(textRun(rest[:loc[0]], stack))
		}
		url := rest[loc[0]:loc[1]]
		run := textRun(url, stack)
		run.AddMark(notedoc.LinkMark(url))
		c.add(run)
		rest = rest[loc[1]:]
	}
}

// finish merges adjacent same-mark runs, trims edge whitespace per line,
// and drops runs that became empty.
func (c *runCollector) finish() [][]*notedoc.Node {
	out := make([][]*notedoc.Node, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, tidyLine(line))
	}
	return out
}

func textRun(text string, stack []notedoc.Mark) *notedoc.Node {
	run := notedoc.NewText(text)
	for _, m := range stack {
		run.AddMark(m)
	}
	return run
}

// pushMarks returns the stack extended with whatever marks the element
// implies, from semantic tags or style-attribute heuristics.
func pushMarks(stack []notedoc.Mark, n *html.Node) []notedoc.Mark {
	push := func(m notedoc.Mark) {
		if !hasMarkKind(stack, m.Type) {
			stack = append(stack, m)
		}
	}
	switch n.DataAtom {
	case atom.B, atom.Strong:
		push(notedoc.BoldMark())
	case atom.I, atom.Em:
		push(notedoc.Mark{Type: notedoc.MarkItalic})
	case atom.Mark:
		push(notedoc.Mark{Type: notedoc.MarkHighlight})
	case atom.Code, atom.Tt, atom.Kbd, atom.Samp:
		push(notedoc.Mark{Type: notedoc.MarkCode})
	case atom.A:
		if href := attrVal(n, "href"); href != "" {
			push(notedoc.LinkMark(href))
		}
	}
	if style := attrVal(n, "style"); style != "" {
		if boldStyleRe.MatchString(style) {
			push(notedoc.BoldMark())
		}
		if italicStyleRe.MatchString(style) {
			push(notedoc.Mark{Type: notedoc.MarkItalic})
		}
	}
	return stack
}

func hasMarkKind(stack []notedoc.Mark, t notedoc.MarkType) bool {
	for _, m := range stack {
		if m.Type == t {
			return true
		}
	}
	return false
}

func marksEqual(a, b []notedoc.Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if a[i].Attrs["href"] != b[i].Attrs["href"] {
			return false
		}
	}
	return true
}

// tidyLine merges adjacent runs with identical mark sets and trims the
// line's outer whitespace.
func tidyLine(line []*notedoc.Node) []*notedoc.Node {
	merged := make([]*notedoc.Node, 0, len(line))
	for _, run := range line {
		if isImageRun(run) {
			merged = append(merged, run)
			continue
		}
		last := len(merged) - 1
		if last >= 0 && !isImageRun(merged[last]) && marksEqual(merged[last].Marks, run.Marks) {
			merged[last].Text += run.Text
			continue
		}
		merged = append(merged, run)
	}

	// Trim leading whitespace off the first text run and trailing off the
	// last, dropping runs that end up empty.
	for len(merged) > 0 && !isImageRun(merged[0]) {
		merged[0].Text = strings.TrimLeft(merged[0].Text, " ")
		if merged[0].Text != "" {
			break
		}
		merged = merged[1:]
	}
	for len(merged) > 0 && !isImageRun(merged[len(merged)-1]) {
		last := merged[len(merged)-1]
		last.Text = strings.TrimRight(last.Text, " ")
		if last.Text != "" {
			break
		}
		merged = merged[:len(merged)-1]
	}
	return merged
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func imgSrc(n *html.Node) string {
	for _, key := range []string{"src", "data-src", "data-original"} {
		if v := attrVal(n, key); v != "" {
			return v
		}
	}
	return ""
}
