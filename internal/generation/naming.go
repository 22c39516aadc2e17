package generation

import (
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const modelExtension = ".glb"

// slugify folds s to a lowercase ASCII slug: accents are stripped and every
// other run of non-alphanumerics becomes a single dash.
func slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if len(out) > 64 {
		out = strings.TrimSuffix(out[:64], "-")
	}
	return out
}

// sanitizeFilename keeps [A-Za-z0-9._-] and maps everything else to '-'.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), ".-")
}

// modelFilename derives the stored name of a materialized asset from the
// remote URL's basename. Without one it falls back to the dish slug and a
// timestamp. A missing extension becomes .glb.
func modelFilename(jobID, dishID, remoteURL string, now time.Time) string {
	base := ""
	if u, err := url.Parse(strings.TrimSpace(remoteURL)); err == nil {
		base = path.Base(u.Path)
	}
	if base == "." || base == "/" {
		base = ""
	}
	base = sanitizeFilename(base)
	if base == "" {
		slug := slugify(dishID)
		if slug == "" {
			slug = "dish"
		}
		base = slug + "-" + now.UTC().Format("20060102T150405")
	}
	if path.Ext(base) == "" {
		base += modelExtension
	}
	return jobID + "_" + base
}
