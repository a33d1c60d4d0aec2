// Package audit runs technical checks on generated post HTML.
package audit

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the outcome of an audit.
type Result struct {
	HTMLValid   bool     `json:"html_valid"`
	BrokenLinks []string `json:"broken_links"`
	Headings    int      `json:"headings"`
	Images      int      `json:"images"`
	Passed      bool     `json:"passed"`
}

// Audit checks that content's tags are balanced and that every anchor has a
// usable href.
func Audit(content string) Result {
	r := Result{HTMLValid: balanced(content), BrokenLinks: []string{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		r.HTMLValid = false
		return r
	}

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			label := strings.TrimSpace(a.Text())
			if label == "" {
				label = "empty link"
			}
			r.BrokenLinks = append(r.BrokenLinks, label)
			return
		}
		if !validHref(href) {
			r.BrokenLinks = append(r.BrokenLinks, href)
		}
	})
	r.Headings = doc.Find("h1, h2, h3, h4, h5, h6").Length()
	r.Images = doc.Find("img").Length()
	r.Passed = r.HTMLValid && len(r.BrokenLinks) == 0
	return r
}

func validHref(href string) bool {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return true
	}
	if !strings.HasPrefix(lower, "http") {
		href = "https://" + href
	}
	u, err := url.Parse(href)
	return err == nil && u.Host != ""
}

var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true, atom.Embed: true,
	atom.Hr: true, atom.Img: true, atom.Input: true, atom.Link: true, atom.Meta: true,
	atom.Source: true, atom.Track: true, atom.Wbr: true,
}

// balanced reports whether every non-void element opened in s is closed,
// in order.
func balanced(s string) bool {
	var stack []string
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return z.Err() == io.EOF && len(stack) == 0
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[atom.Lookup(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if voidElements[atom.Lookup(name)] {
				continue
			}
			if len(stack) == 0 || stack[len(stack)-1] != string(name) {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
}
