// Package markup converts loosely-structured page markup into the
// notedoc document tree.
//
// The converter is a recursive-descent walk over the real tag stream
// (golang.org/x/net/html): block assembly emits paragraph/quote/image
// nodes, inline collection attaches formatting marks, and a heuristic
// post-process pass cleans the result. Malformed input never fails —
// the worst case degrades to a single best-effort paragraph recovered
// through an HTML→Markdown rendering of the fragment.
package markup

import (
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// Resolution tells the converter how to render one image source.
// Exactly one of UUID and LinkURL is expected to be set.
type Resolution struct {
	UUID    string // uploaded asset identifier → image node
	LinkURL string // upload failed → degrade to a plain link paragraph
	Alt     string // optional caption override
}

// ImageResolver maps an <img> source from the markup to its resolution.
// Returning ok=false drops the image silently: an image that cannot be
// tied to an asset is never emitted as a broken reference.
type ImageResolver func(src string) (Resolution, bool)

// Options configures a conversion.
type Options struct {
	// Images resolves markup image sources. Nil drops all images.
	Images ImageResolver
	Logger *slog.Logger
}

// ToDoc converts a markup fragment into a document tree. It never
// fails: inputs that defeat the block walk yield a doc holding one
// best-effort paragraph, and truly empty input yields an empty doc.
func ToDoc(fragment string, opts Options) *notedoc.Node {
	blocks := PostProcess(ParseBlocks(fragment, opts))
	if len(blocks) == 0 && strings.TrimSpace(fragment) != "" {
		if p := fallbackParagraph(fragment); p != nil {
			blocks = []*notedoc.Node{p}
		}
	}
	return notedoc.NewDoc(blocks...)
}

// ParseBlocks runs sanitization and the block walk, returning the raw
// ordered block list before post-processing.
func ParseBlocks(fragment string, opts Options) []*notedoc.Node {
	root, err := html.Parse(strings.NewReader(Sanitize(fragment)))
	if err != nil {
		if opts.Logger != nil {
			opts.Logger.Warn("markup: parse failed, degrading", "error", err)
		}
		return nil
	}
	p := &blockParser{opts: opts}
	p.walk(root)
	p.flush()
	return p.blocks
}

// fallbackParagraph recovers readable text from a fragment the block
// walk could not handle, via an HTML→Markdown rendering.
func fallbackParagraph(fragment string) *notedoc.Node {
	text, err := htmltomarkdown.ConvertString(fragment)
	if err != nil || strings.TrimSpace(text) == "" {
		return nil
	}
	return notedoc.NewParagraph(notedoc.NewText(strings.TrimSpace(text)))
}
