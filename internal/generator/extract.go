package generator

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// section returns the text between [tag] and [/tag]. When the closing tag
// is missing it returns the text up to the next '['. A missing opening tag
// yields "".
func section(text, tag string) string {
	open, end := "["+tag+"]", "[/"+tag+"]"
	start := strings.Index(text, open)
	if start == -1 {
		return ""
	}
	rest := text[start+len(open):]
	if i := strings.Index(rest, end); i != -1 {
		return strings.TrimSpace(rest[:i])
	}
	if i := strings.IndexByte(rest, '['); i != -1 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

var (
	ad1Pattern = regexp.MustCompile(`(?i)\[\s*AD1\s*\]`)
	ad2Pattern = regexp.MustCompile(`(?i)\[\s*AD2\s*\]`)
)

func adBlock(code string) string {
	if strings.TrimSpace(code) == "" {
		return ""
	}
	return `<div style="margin:20px 0 !important; text-align:center !important;">` + code + `</div>`
}

// injectAds replaces the [AD1] and [AD2] markers with the wrapped ad codes,
// or removes them when a code is empty.
func injectAds(content, ad1, ad2 string) string {
	content = ad1Pattern.ReplaceAllLiteralString(content, adBlock(ad1))
	return ad2Pattern.ReplaceAllLiteralString(content, adBlock(ad2))
}

// StripTags returns the text content of an HTML fragment with entities
// decoded.
func StripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return strings.TrimSpace(s)
			}
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// insertAfterFirstH2 places fragment right after the first </h2>, or at the
// end when content has no H2.
func insertAfterFirstH2(content, fragment string) string {
	if fragment == "" {
		return content
	}
	if strings.Contains(content, "</h2>") {
		return strings.Replace(content, "</h2>", "</h2>"+fragment, 1)
	}
	return content + fragment
}

func figureHTML(src, alt string) string {
	return `<figure style="margin:40px 0 !important;"><img src="` + src + `" alt="` + html.EscapeString(alt) +
		`" style="width:100% !important; border-radius:25px !important; box-shadow:0 10px 30px rgba(0,0,0,0.1) !important;"></figure>`
}

func thumbnailHTML(src, alt string) string {
	return `<div style="margin-bottom:60px !important; text-align:center !important;"><img src="` + src + `" alt="` + html.EscapeString(alt) +
		`" style="width:100% !important; max-width:500px !important; border-radius:20px !important; box-shadow:0 15px 40px rgba(0,0,0,0.15) !important;"></div>`
}
