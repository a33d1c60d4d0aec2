package audit

import (
	"reflect"
	"testing"
)

func TestAudit_Clean(t *testing.T) {
	html := `<div><img src="x.png"><h2>One</h2><p>See <a href="https://www.gov.kr">Gov24</a>.<br></p>` +
		`<h3>Sub</h3><a href="javascript:void(0)" data-cta="final">Go</a></div>`
	r := Audit(html)
	if !r.HTMLValid || !r.Passed {
		t.Errorf("result = %+v, want valid and passed", r)
	}
	if r.Headings != 2 || r.Images != 1 {
		t.Errorf("headings=%d images=%d, want 2 and 1", r.Headings, r.Images)
	}
	if len(r.BrokenLinks) != 0 {
		t.Errorf("BrokenLinks = %v", r.BrokenLinks)
	}
}

func TestAudit_BrokenLinks(t *testing.T) {
	html := `<p><a href="#">Click here</a><a>   </a><a href="www.example.org/page">ok</a><a href="http://bad host">bad</a></p>`
	r := Audit(html)
	want := []string{"Click here", "empty link", "http://bad host"}
	if !reflect.DeepEqual(r.BrokenLinks, want) {
		t.Errorf("BrokenLinks = %q, want %q", r.BrokenLinks, want)
	}
	if r.Passed {
		t.Error("audit with broken links passed")
	}
	if !r.HTMLValid {
		t.Error("balanced markup reported invalid")
	}
}

func TestBalanced(t *testing.T) {
	tests := []struct {
		html string
		want bool
	}{
		{`<p>a</p>`, true},
		{`<p><strong>a</strong></p>`, true},
		{`<p>a<br>b<img src="x"></p>`, true},
		{`<p>unclosed`, false},
		{`<p><strong>a</p></strong>`, false},
		{`</div>`, false},
		{`plain text`, true},
	}
	for _, tt := range tests {
		if got := balanced(tt.html); got != tt.want {
			t.Errorf("balanced(%q) = %v, want %v", tt.html, got, tt.want)
		}
	}
}
