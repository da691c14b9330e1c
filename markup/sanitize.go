package markup

import "github.com/microcosm-cc/bluemonday"

// clipPolicy is applied to every fragment before parsing. Scripts, event
// handlers and embeds are stripped; style attributes survive because the
// inline heuristics read font-weight/font-style from them.
var clipPolicy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style").Globally()
	// Only the declarations the heuristics read survive sanitization.
	p.AllowStyles("font-weight", "font-style", "font-size", "display",
		"visibility", "opacity").Globally()
	p.AllowElements("mark", "figure", "figcaption", "section", "article", "main")
	p.AllowAttrs("data-src", "data-original").OnElements("img")
	p.AllowDataURIImages()
	return p
}

// Sanitize strips unsafe markup from a fragment. The output is still
// arbitrary HTML, just guaranteed free of script content.
func Sanitize(fragment string) string {
	return clipPolicy.Sanitize(fragment)
}
