package enrich

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// PageText converts fetched page content into plain text suitable for email
// extraction. HTML is parsed and script/style subtrees dropped; anything that
// fails to parse, or non-HTML content, is returned as-is so extraction still
// sees raw mailto: links and plain-text bodies.
func PageText(body []byte, contentType string) string {
	if len(body) == 0 {
		return ""
	}
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return string(body)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	doc.Find("script, style, noscript").Remove()
	text := doc.Text()
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
