package markup

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	regexp.MustCompile(`(?i)font-size\s*:\s*0[^1-9]`),
	regexp.MustCompile(`(?i)opacity\s*:\s*0[^.]`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	style := attrVal(n, "style")
	if style == "" {
		return false
	}
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func isBlockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Aside,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li, atom.Table,
		atom.Tr, atom.Td, atom.Th, atom.Figure, atom.Figcaption, atom.Hr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Dl,
		atom.Dt, atom.Dd:
		return true
	}
	return false
}

// blockParser walks the parsed tree and assembles block nodes. Inline
// content between block boundaries accumulates in an open collector and
// is flushed to paragraphs whenever a block boundary is crossed.
type blockParser struct {
	opts   Options
	blocks []*notedoc.Node
	col    *runCollector
}

func (p *blockParser) collector() *runCollector {
	if p.col == nil {
		p.col = newRunCollector()
		p.col.keepImages = true
	}
	return p.col
}

// flush closes the open inline collector and emits its lines. A blank
// first line is formatting whitespace between tags, not intentional
// spacing; lines opened by an explicit <br> are kept even when blank.
func (p *blockParser) flush() {
	if p.col == nil {
		return
	}
	lines := p.col.finish()
	p.col = nil
	if len(lines) > 0 && len(lines[0]) == 0 {
		lines = lines[1:]
	}
	p.emitLines(lines, false)
}

func (p *blockParser) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		p.collector().addText(n.Data, nil)
		return
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.walk(c)
		}
		return
	case html.ElementNode:
		// fall through
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Iframe,
		atom.Nav, atom.Footer, atom.Form, atom.Button, atom.Svg, atom.Canvas,
		atom.Head:
		return
	}
	if hasHiddenStyle(n) {
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		// Headings are rewritten as fully bold paragraphs; the tree keeps
		// only the five node kinds.
		p.flush()
		p.emitLines(collectLines(n, false), true)

	case atom.P, atom.Figcaption, atom.Dt, atom.Dd, atom.Tr:
		p.flush()
		p.emitLines(collectLines(n, false), false)

	case atom.Blockquote:
		p.flush()
		p.emitQuote(n)

	case atom.Pre:
		p.flush()
		p.emitPre(n)

	case atom.Ul, atom.Ol:
		p.flush()
		p.emitList(n, n.DataAtom == atom.Ol)

	case atom.Img:
		p.flush()
		p.emitImage(imgSrc(n), attrVal(n, "alt"))

	case atom.Hr:
		p.flush()

	case atom.Br:
		// A bare line break at block level is a blank-line marker.
		p.collector().breakLine()

	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Aside,
		atom.Body, atom.Html, atom.Figure, atom.Table,
		atom.Tbody, atom.Thead, atom.Li, atom.Td, atom.Th, atom.Dl:
		p.flush()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.walk(c)
		}
		p.flush()

	default:
		// Inline-level content joins the open run accumulation.
		p.collector().collect(n, nil)
	}
}

// emitLines turns collected lines into paragraphs. A blank line becomes
// an explicit empty paragraph (intentional spacing), unless it would be
// the document's leading block. Lines holding an inline image are split
// so the image becomes its own node.
func (p *blockParser) emitLines(lines [][]*notedoc.Node, forceBold bool) {
	for _, line := range lines {
		if len(line) == 0 {
			if len(p.blocks) > 0 {
				p.blocks = append(p.blocks, notedoc.NewParagraph())
			}
			continue
		}
		var runs []*notedoc.Node
		flushRuns := func() {
			if len(runs) == 0 {
				return
			}
			if forceBold {
				for _, r := range runs {
					r.AddMark(notedoc.BoldMark())
				}
			}
			p.blocks = append(p.blocks, notedoc.NewParagraph(runs...))
			runs = nil
		}
		for _, run := range line {
			if isImageRun(run) {
				flushRuns()
				p.emitImage(run.Attrs["src"], run.Attrs["alt"])
				continue
			}
			runs = append(runs, run)
		}
		flushRuns()
	}
}

// emitQuote renders a blockquote as a single quote node. Nested block
// boundaries and <br> inside the quote are normalized to literal
// newlines inside the node, so multi-line quotes stay one block.
func (p *blockParser) emitQuote(n *html.Node) {
	c := newRunCollector()
	c.blockBreaks = true
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collect(child, nil)
	}
	lines := c.finish()

	// Drop blank edge lines introduced by wrapper tags.
	for len(lines) > 0 && len(lines[0]) == 0 {
		lines = lines[1:]
	}
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	var runs []*notedoc.Node
	for i, line := range lines {
		if i > 0 {
			if len(line) > 0 {
				line[0].Text = "\n" + line[0].Text
			} else {
				runs = append(runs, notedoc.NewText("\n"))
				continue
			}
		}
		runs = append(runs, line...)
	}
	if len(runs) == 0 {
		return
	}
	p.blocks = append(p.blocks, notedoc.NewQuote(runs...))
}

// emitPre renders a code block as a quote holding the tag-stripped text
// with its line breaks preserved verbatim.
func (p *blockParser) emitPre(n *html.Node) {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				sb.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	text := strings.Trim(sb.String(), "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	p.blocks = append(p.blocks, notedoc.NewQuote(notedoc.NewText(text)))
}

// emitList expands a list into one paragraph per item, bullet-prefixed
// or ordinal-prefixed. Nested paragraph wrappers inside an item are
// consumed into the item's single paragraph; nested lists produce their
// own items after it.
func (p *blockParser) emitList(n *html.Node, ordered bool) {
	idx := 0
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		idx++
		c := newRunCollector()
		c.blockBreaks = true
		c.skipLists = true
		for child := li.FirstChild; child != nil; child = child.NextSibling {
			c.collect(child, nil)
		}
		runs := joinLinesWithSpace(c.finish())
		if len(runs) > 0 {
			prefix := "• "
			if ordered {
				prefix = fmt.Sprintf("%d. ", idx)
			}
			runs = append([]*notedoc.Node{notedoc.NewText(prefix)}, runs...)
			p.blocks = append(p.blocks, notedoc.NewParagraph(runs...))
		}
		// Nested lists inside the item.
		var findLists func(*html.Node)
		findLists = func(m *html.Node) {
			if m.Type == html.ElementNode && (m.DataAtom == atom.Ul || m.DataAtom == atom.Ol) {
				p.emitList(m, m.DataAtom == atom.Ol)
				return
			}
			for c := m.FirstChild; c != nil; c = c.NextSibling {
				findLists(c)
			}
		}
		for child := li.FirstChild; child != nil; child = child.NextSibling {
			findLists(child)
		}
	}
}

func joinLinesWithSpace(lines [][]*notedoc.Node) []*notedoc.Node {
	var runs []*notedoc.Node
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		if len(runs) > 0 {
			line[0].Text = " " + line[0].Text
		}
		runs = append(runs, line...)
	}
	return runs
}

// emitImage resolves an <img> source through the caller's resolver. An
// image that resolves to an uploaded asset becomes an image node; one
// that resolves to a fallback URL degrades to a plain link paragraph;
// anything unresolvable is dropped silently, never emitted broken.
func (p *blockParser) emitImage(src, alt string) {
	if src == "" || p.opts.Images == nil {
		return
	}
	res, ok := p.opts.Images(src)
	if !ok {
		return
	}
	switch {
	case res.UUID != "":
		if res.Alt != "" {
			alt = res.Alt
		}
		p.blocks = append(p.blocks, notedoc.NewImage(res.UUID, "center", alt))
	case res.LinkURL != "":
		run := notedoc.NewText(res.LinkURL, notedoc.LinkMark(res.LinkURL))
		p.blocks = append(p.blocks, notedoc.NewParagraph(run))
	}
}

// collectLines runs an inline collector over an element's children.
func collectLines(n *html.Node, blockBreaks bool) [][]*notedoc.Node {
	c := newRunCollector()
	c.blockBreaks = blockBreaks
	c.keepImages = true
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.collect(child, nil)
	}
	return c.finish()
}
