package imagepipe

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Matcher re-associates markup image sources with their candidates by
// decreasing specificity: exact URL → URL without query → long tail
// identifier → filename → CDN asset token. The precedence is a policy,
// kept as an ordered stage list so it stays easy to retune.
type Matcher struct {
	stages []map[string]string // key → candidate ID
}

var cdnTokenRe = regexp.MustCompile(`[0-9a-fA-F]{16,}|[A-Za-z0-9_-]{24,}`)

const tailMinLen = 12

// NewMatcher indexes candidates under all their match keys. The first
// candidate claiming a key keeps it.
func NewMatcher(cands []Candidate) *Matcher {
	m := &Matcher{stages: make([]map[string]string, 5)}
	for i := range m.stages {
		m.stages[i] = make(map[string]string)
	}
	claim := func(stage int, key, id string) {
		if key == "" {
			return
		}
		if _, taken := m.stages[stage][key]; !taken {
			m.stages[stage][key] = id
		}
	}
	for _, c := range cands {
		for _, raw := range []string{c.SourceURL, c.NormalizedURL} {
			if raw == "" {
				continue
			}
			claim(0, raw, c.ID)
			claim(1, stripQuery(raw), c.ID)
			for _, seg := range tailSegments(raw) {
				claim(2, seg, c.ID)
			}
			claim(3, filenameKey(raw), c.ID)
			for _, tok := range cdnTokenRe.FindAllString(raw, -1) {
				claim(4, tok, c.ID)
			}
		}
	}
	return m
}

// Resolve maps a markup src to a candidate ID, trying each stage in
// order of specificity.
func (m *Matcher) Resolve(src string) (string, bool) {
	if src == "" {
		return "", false
	}
	if id, ok := m.stages[0][src]; ok {
		return id, true
	}
	if id, ok := m.stages[1][stripQuery(src)]; ok {
		return id, true
	}
	for _, seg := range tailSegments(src) {
		if id, ok := m.stages[2][seg]; ok {
			return id, true
		}
	}
	if id, ok := m.stages[3][filenameKey(src)]; ok {
		return id, true
	}
	for _, tok := range cdnTokenRe.FindAllString(src, -1) {
		if id, ok := m.stages[4][tok]; ok {
			return id, true
		}
	}
	return "", false
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// tailSegments returns path segments long enough to identify an asset
// on their own (hash-like directory or file names).
func tailSegments(raw string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	var out []string
	for _, seg := range strings.Split(u.Path, "/") {
		if len(seg) >= tailMinLen {
			out = append(out, seg)
		}
	}
	return out
}

func filenameKey(raw string) string {
	u, err := url.Parse(stripQuery(raw))
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
