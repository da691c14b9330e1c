package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// AppendHighlight extends an existing note with a timestamped separator
// and the converted fragment, then re-submits the whole tree. The API
// replaces full note content, so the previously published tree comes
// from the note cache; an uncached note starts from the fragment alone.
func (o *Orchestrator) AppendHighlight(ctx context.Context, noteID string, fragment *notedoc.Node) error {
	var tree *notedoc.Node
	if o.cfg.Store != nil {
		cached, err := o.cfg.Store.CachedNote(noteID)
		if err != nil {
			return err
		}
		tree = cached
	}

	if tree == nil {
		tree = notedoc.NewDoc()
	} else {
		tree = tree.Clone()
		tree.Content = append(tree.Content,
			notedoc.NewParagraph(),
			separatorParagraph(time.Now()),
		)
	}
	tree.Content = append(tree.Content, fragment.Content...)

	if err := o.cfg.Client.EditNote(ctx, noteID, tree); err != nil {
		return err
	}
	if o.cfg.Store != nil {
		if err := o.cfg.Store.CacheNote(noteID, tree); err != nil {
			o.cfg.Logger.Warn("note cache write failed", "note_id", noteID, "error", err)
		}
	}
	return nil
}

func separatorParagraph(at time.Time) *notedoc.Node {
	ts := at.Format("2006-01-02 15:04")
	return notedoc.NewParagraph(notedoc.NewText(fmt.Sprintf("——— %s ———", ts)))
}
