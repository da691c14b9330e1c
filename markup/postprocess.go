package markup

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// Heading promotion: short paragraphs that open with an enumeration
// marker, an em-dash lead-in, or a known section label.
const headingMaxLen = 48

var (
	enumMarkerRe  = regexp.MustCompile(`^[0-9０-９一二三四五六七八九十百]+[、.．:：)）]`)
	emDashLeadRe  = regexp.MustCompile(`^[—–]`)
	sectionWordRe = regexp.MustCompile(`^(总结|结论|前言|摘要|导读|引言|小结|后记|Summary|Conclusion|Overview|Introduction|TL;DR)([:：]|$)`)
)

// Forced-split labels: a paragraph containing one of these mid-text is
// split so the label starts its own paragraph.
var splitKeywordRe = regexp.MustCompile(`注意[:：]|提示[:：]|总结[:：]|重点[:：]|划重点|Note:|Tip:|Warning:`)

// A label must have some real text before it to force a split; a bullet
// glyph or a single character prefix does not count.
const splitMinLead = 4

// Metadata labels that demote a quote to a plain paragraph.
var metadataLabelRe = regexp.MustCompile(`来源[:：]|作者[:：]|出处[:：]|原文链接|编辑[:：]|译者[:：]|Source:|Author:|via\s`)

// Social-interaction boilerplate dropped outright.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(点赞|在看|关注|分享|收藏|转发|打赏|点个赞)[。!！~～]?$`),
	regexp.MustCompile(`^(长按|扫码|扫描).{0,12}二维码`),
	regexp.MustCompile(`^点击.{0,12}关注`),
	regexp.MustCompile(`^(微信扫一扫|分享到朋友圈|阅读原文)`),
	regexp.MustCompile(`(?i)^(follow|subscribe|like and subscribe)\b.{0,40}$`),
	regexp.MustCompile(`^\d{1,4}$`),
}

var bulletGlyphs = map[string]bool{
	"•": true, "·": true, "●": true, "▪": true, "◦": true, "∙": true,
}

// PostProcess applies the heuristic cleanup pass to a raw block list.
// The pass is idempotent: applying it to its own output is a no-op.
func PostProcess(blocks []*notedoc.Node) []*notedoc.Node {
	blocks = demoteMetadataQuotes(blocks)
	blocks = mergeStrayBullets(blocks)
	blocks = forceKeywordSplits(blocks)
	blocks = dropNoise(blocks)
	blocks = promoteHeadings(blocks)
	blocks = collapseSpacers(blocks)
	return blocks
}

// demoteMetadataQuotes reclassifies source/byline quotes as plain
// paragraphs so citation lines render inline rather than as blockquotes.
func demoteMetadataQuotes(blocks []*notedoc.Node) []*notedoc.Node {
	for i, b := range blocks {
		if b.Type == notedoc.TypeQuote && metadataLabelRe.MatchString(b.PlainText()) {
			blocks[i] = notedoc.NewParagraph(b.Content...)
		}
	}
	return blocks
}

// mergeStrayBullets repairs bullets separated from their content by
// line-break normalization: a paragraph holding only a bullet glyph is
// not emitted, its glyph is prepended to the next paragraph instead.
func mergeStrayBullets(blocks []*notedoc.Node) []*notedoc.Node {
	out := blocks[:0]
	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		if b.Type == notedoc.TypeParagraph && bulletGlyphs[strings.TrimSpace(b.PlainText())] {
			if i+1 < len(blocks) && blocks[i+1].Type == notedoc.TypeParagraph && len(blocks[i+1].Content) > 0 {
				next := blocks[i+1]
				if next.Content[0].Type == notedoc.TypeText {
					next.Content[0].Text = strings.TrimSpace(b.PlainText()) + next.Content[0].Text
				}
			}
			continue
		}
		out = append(out, b)
	}
	return out
}

// forceKeywordSplits splits paragraphs so each label keyword starts a
// new paragraph, preserving the marks on the split runs.
func forceKeywordSplits(blocks []*notedoc.Node) []*notedoc.Node {
	var out []*notedoc.Node
	for _, b := range blocks {
		if b.Type != notedoc.TypeParagraph {
			out = append(out, b)
			continue
		}
		out = append(out, splitAtKeywords(b)...)
	}
	return out
}

func splitAtKeywords(p *notedoc.Node) []*notedoc.Node {
	text := p.PlainText()
	loc := findSplitPoint(text)
	if loc < 0 {
		return []*notedoc.Node{p}
	}
	head, tail := splitRunsAt(p.Content, loc)
	rest := splitAtKeywords(notedoc.NewParagraph(tail...))
	return append([]*notedoc.Node{notedoc.NewParagraph(head...)}, rest...)
}

// findSplitPoint returns the rune offset of the first keyword occurrence
// with enough lead text before it, or -1.
func findSplitPoint(text string) int {
	offset := 0
	rest := text
	for {
		loc := splitKeywordRe.FindStringIndex(rest)
		if loc == nil {
			return -1
		}
		lead := offset + utf8.RuneCountInString(rest[:loc[0]])
		if lead >= splitMinLead {
			return lead
		}
		advance := loc[1]
		offset += utf8.RuneCountInString(rest[:advance])
		rest = rest[advance:]
	}
}

// splitRunsAt splits a run list at a visible-character offset; the run
// straddling the boundary is cut in two with its marks duplicated.
func splitRunsAt(runs []*notedoc.Node, offset int) (head, tail []*notedoc.Node) {
	pos := 0
	for i, run := range runs {
		n := utf8.RuneCountInString(run.Text)
		if pos+n <= offset {
			head = append(head, run)
			pos += n
			continue
		}
		cut := offset - pos
		if cut > 0 {
			left := notedoc.NewText(string([]rune(run.Text)[:cut]), run.Marks...)
			head = append(head, left)
		}
		right := notedoc.NewText(string([]rune(run.Text)[cut:]), run.Marks...)
		tail = append([]*notedoc.Node{right}, runs[i+1:]...)
		return head, tail
	}
	return runs, nil
}

// dropNoise removes social-interaction boilerplate paragraphs.
func dropNoise(blocks []*notedoc.Node) []*notedoc.Node {
	out := blocks[:0]
	for _, b := range blocks {
		if b.Type == notedoc.TypeParagraph && len(b.Content) > 0 {
			text := strings.TrimSpace(b.PlainText())
			noisy := false
			for _, pat := range noisePatterns {
				if pat.MatchString(text) {
					noisy = true
					break
				}
			}
			if noisy {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// promoteHeadings bolds short label-like paragraphs.
func promoteHeadings(blocks []*notedoc.Node) []*notedoc.Node {
	for _, b := range blocks {
		if b.Type != notedoc.TypeParagraph || len(b.Content) == 0 {
			continue
		}
		if b.VisibleLen() > headingMaxLen {
			continue
		}
		text := strings.TrimSpace(b.PlainText())
		if enumMarkerRe.MatchString(text) || emDashLeadRe.MatchString(text) || sectionWordRe.MatchString(text) {
			for _, run := range b.Content {
				if run.Type == notedoc.TypeText {
					run.AddMark(notedoc.BoldMark())
				}
			}
		}
	}
	return blocks
}

// collapseSpacers enforces the blank-line rules: consecutive empty
// paragraphs collapse to one, an empty paragraph touching an image is
// dropped, and leading/trailing empties are trimmed.
func collapseSpacers(blocks []*notedoc.Node) []*notedoc.Node {
	// Runs of empties collapse to one. This must happen before the
	// image-adjacency pruning so that the survivor of a run is the one
	// judged against its neighbours.
	collapsed := make([]*notedoc.Node, 0, len(blocks))
	for _, b := range blocks {
		if b.IsEmptyParagraph() && len(collapsed) > 0 && collapsed[len(collapsed)-1].IsEmptyParagraph() {
			continue
		}
		collapsed = append(collapsed, b)
	}

	// Empty paragraphs touching an image node are dropped.
	out := collapsed[:0]
	for i, b := range collapsed {
		if b.IsEmptyParagraph() {
			if i > 0 && collapsed[i-1].Type == notedoc.TypeImage {
				continue
			}
			if i+1 < len(collapsed) && collapsed[i+1].Type == notedoc.TypeImage {
				continue
			}
		}
		out = append(out, b)
	}

	// Trim the edges.
	for len(out) > 0 && out[0].IsEmptyParagraph() {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1].IsEmptyParagraph() {
		out = out[:len(out)-1]
	}
	return out
}
