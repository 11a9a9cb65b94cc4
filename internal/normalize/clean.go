package normalize

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = func() *bluemonday.Policy {
		p := bluemonday.StrictPolicy()
		p.AddSpaceWhenStrippingTag(true)
		return p
	}()
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	astralPattern     = regexp.MustCompile(`[\x{10000}-\x{10FFFF}]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// CleanText removes HTML markup, URLs and astral-plane symbols (emoji) from s
// and collapses runs of whitespace.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(stripPolicy.Sanitize(s))
	out = urlPattern.ReplaceAllString(out, "")
	out = astralPattern.ReplaceAllString(out, "")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// CleanAll cleans every entry and drops the ones that end up empty.
func CleanAll(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if c := CleanText(t); c != "" {
			out = append(out, c)
		}
	}
	return out
}
