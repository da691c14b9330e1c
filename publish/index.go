package publish

import (
	"context"
	"fmt"

	"github.com/yult97/mowen-plugin-sub000/mowen"
	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// publishIndex builds and publishes the index note linking every
// successfully published part. It goes through the same retry path as
// the parts themselves.
func (o *Orchestrator) publishIndex(ctx context.Context, req Request, out *Outcome) (string, error) {
	doc := buildIndexDoc(req.Title, out.Parts)
	noteID, err := o.createWithRetry(ctx, req, doc)
	if err != nil {
		return "", err
	}
	o.afterCreate(ctx, req, noteID, doc)
	return noteID, nil
}

// buildIndexDoc lays out the index note: a bold title line, then one
// linked line per published part.
func buildIndexDoc(title string, parts []PartResult) *notedoc.Node {
	blocks := []*notedoc.Node{
		notedoc.NewParagraph(notedoc.NewText(fmt.Sprintf("%s · 目录", title), notedoc.BoldMark())),
		notedoc.NewParagraph(),
	}
	for _, p := range parts {
		if p.Err != nil {
			continue
		}
		blocks = append(blocks, notedoc.NewParagraph(
			notedoc.NewText(p.Title, notedoc.LinkMark(mowen.NoteURL(p.NoteID))),
		))
	}
	return notedoc.NewDoc(blocks...)
}
