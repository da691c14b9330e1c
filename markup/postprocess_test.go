package markup

import (
	"encoding/json"
	"testing"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

func para(text string) *notedoc.Node {
	if text == "" {
		return notedoc.NewParagraph()
	}
	return notedoc.NewParagraph(notedoc.NewText(text))
}

func TestHeadingPromotion(t *testing.T) {
	// WHAT: Short enumerated/labelled paragraphs become fully bold.
	blocks := PostProcess([]*notedoc.Node{
		para("一、背景介绍"),
		para("1. Short point"),
		para("总结：要点如下"),
		para("这是一段足够长的正文内容，不应该被当作标题处理，因为它明显超过了标题的长度限制，而且也不以编号开头哦哦哦哦哦哦哦"),
	})
	for i := 0; i < 3; i++ {
		if !blocks[i].Content[0].HasMark(notedoc.MarkBold) {
			t.Errorf("block %d should be promoted: %q", i, blocks[i].PlainText())
		}
	}
	if blocks[3].Content[0].HasMark(notedoc.MarkBold) {
		t.Errorf("long body text wrongly promoted")
	}
}

func TestKeywordForcedSplit(t *testing.T) {
	// WHAT: A label keyword mid-paragraph starts a new paragraph, marks
	// preserved on the split runs.
	p := notedoc.NewParagraph(
		notedoc.NewText("前面的正文内容很长", notedoc.BoldMark()),
		notedoc.NewText("注意：这里是要点"),
	)
	blocks := PostProcess([]*notedoc.Node{p})
	if len(blocks) != 2 {
		t.Fatalf("blocks: got %d, want 2: %q", len(blocks), blocks[0].PlainText())
	}
	if blocks[0].PlainText() != "前面的正文内容很长" {
		t.Errorf("head: %q", blocks[0].PlainText())
	}
	if !blocks[0].Content[0].HasMark(notedoc.MarkBold) {
		t.Error("head lost its bold mark")
	}
	if blocks[1].PlainText() != "注意：这里是要点" {
		t.Errorf("tail: %q", blocks[1].PlainText())
	}
}

func TestMetadataQuoteDemotion(t *testing.T) {
	// WHAT: A quote holding byline labels becomes a plain paragraph.
	blocks := PostProcess([]*notedoc.Node{
		notedoc.NewQuote(notedoc.NewText("作者：张三 来源：某刊")),
		notedoc.NewQuote(notedoc.NewText("一句普通的引用")),
	})
	if blocks[0].Type != notedoc.TypeParagraph {
		t.Errorf("byline quote not demoted: %s", blocks[0].Type)
	}
	if blocks[1].Type != notedoc.TypeQuote {
		t.Errorf("ordinary quote wrongly demoted")
	}
}

func TestNoiseFiltering(t *testing.T) {
	blocks := PostProcess([]*notedoc.Node{
		para("正文第一段"),
		para("点赞"),
		para("长按识别二维码关注"),
		para("42"),
		para("正文第二段"),
	})
	if len(blocks) != 2 {
		texts := make([]string, len(blocks))
		for i, b := range blocks {
			texts[i] = b.PlainText()
		}
		t.Fatalf("blocks: %q", texts)
	}
}

func TestStrayBulletMerge(t *testing.T) {
	// WHAT: A paragraph that is only a bullet glyph is folded into the
	// next paragraph.
	blocks := PostProcess([]*notedoc.Node{
		para("intro"),
		para("•"),
		para("point one"),
	})
	if len(blocks) != 2 {
		t.Fatalf("blocks: got %d", len(blocks))
	}
	if blocks[1].PlainText() != "•point one" {
		t.Errorf("merged: %q", blocks[1].PlainText())
	}
}

func TestSpacerCollapsing(t *testing.T) {
	img := notedoc.NewImage("u", "center", "")
	blocks := PostProcess([]*notedoc.Node{
		para(""),
		para("a"),
		para(""),
		para(""),
		para("b"),
		para(""),
		img,
		para(""),
		para("c"),
		para(""),
	})
	want := []notedoc.NodeType{
		notedoc.TypeParagraph, // a
		notedoc.TypeParagraph, // blank
		notedoc.TypeParagraph, // b
		notedoc.TypeImage,
		notedoc.TypeParagraph, // c
	}
	if len(blocks) != len(want) {
		t.Fatalf("blocks: got %d, want %d", len(blocks), len(want))
	}
	for i, w := range want {
		if blocks[i].Type != w {
			t.Errorf("block %d: got %s, want %s", i, blocks[i].Type, w)
		}
	}
	if !blocks[1].IsEmptyParagraph() {
		t.Error("interior blank line must survive as one empty paragraph")
	}
}

func TestPostProcessIdempotent(t *testing.T) {
	// WHAT: Running the pass twice equals running it once.
	// WHY: Guarantee stated by the post-processor contract.
	input := []*notedoc.Node{
		para(""),
		para("一、标题"),
		notedoc.NewQuote(notedoc.NewText("来源：某处")),
		para("•"),
		para("bullet content"),
		notedoc.NewParagraph(
			notedoc.NewText("前面的长长的正文"),
			notedoc.NewText("注意：后半段", notedoc.LinkMark("https://x")),
		),
		para("点赞"),
		para(""),
		para(""),
		notedoc.NewImage("u", "center", ""),
		para(""),
		para("tail"),
		para(""),
	}
	once := PostProcess(cloneBlocks(input))
	twice := PostProcess(cloneBlocks(once))

	a, _ := json.Marshal(once)
	b, _ := json.Marshal(twice)
	if string(a) != string(b) {
		t.Errorf("not idempotent:\n once %s\ntwice %s", a, b)
	}
}

func cloneBlocks(blocks []*notedoc.Node) []*notedoc.Node {
	out := make([]*notedoc.Node, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}
