package post

import (
	"testing"
	"time"
)

func TestParseTopic(t *testing.T) {
	tests := []struct {
		line        string
		wantTitle   string
		wantKeyword string
	}{
		{"Best coffee beans///coffee", "Best coffee beans", "coffee"},
		{"  Spaced title  ///  spaced kw ", "Spaced title", "spaced kw"},
		{"No keyword///", "No keyword", "No keyword"},
		{"Plain title", "Plain title", "Plain title"},
		{"a///b///c", "a", "b///c"},
	}
	for _, tt := range tests {
		got := ParseTopic(tt.line)
		if got.Title != tt.wantTitle || got.Keyword != tt.wantKeyword {
			t.Errorf("ParseTopic(%q) = {%q, %q}, want {%q, %q}", tt.line, got.Title, got.Keyword, tt.wantTitle, tt.wantKeyword)
		}
	}
}

func TestParseTopics_DropsLinesWithoutSeparator(t *testing.T) {
	input := "first///one\n\nignored line\nsecond///two\r\n   \nthird///"
	topics := ParseTopics(input)
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3: %+v", len(topics), topics)
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if topics[i].Title != w {
			t.Errorf("topics[%d].Title = %q, want %q", i, topics[i].Title, w)
		}
	}
	if topics[1].Keyword != "two" {
		t.Errorf("topics[1].Keyword = %q, want two", topics[1].Keyword)
	}
}

func TestParseTopics_Empty(t *testing.T) {
	if got := ParseTopics(""); len(got) != 0 {
		t.Errorf("ParseTopics(\"\") = %v, want empty", got)
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusDraft, StatusPublish, StatusFuture, StatusPending, StatusPrivate} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false", s)
		}
	}
	if Status("trash").Valid() {
		t.Error(`"trash".Valid() = true`)
	}
}

func TestClone_Independent(t *testing.T) {
	d := time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC)
	p := &Post{
		Title:      "t",
		Date:       &d,
		Thumbnail:  &Image{MIMEType: "image/png", Data: []byte{1, 2, 3}},
		Categories: []int{4},
	}
	cp := p.Clone()
	cp.Thumbnail.Data[0] = 9
	cp.Categories[0] = 7
	*cp.Date = cp.Date.Add(time.Hour)

	if p.Thumbnail.Data[0] != 1 {
		t.Error("clone shares thumbnail data")
	}
	if p.Categories[0] != 4 {
		t.Error("clone shares categories")
	}
	if !p.Date.Equal(d) {
		t.Error("clone shares date")
	}
	var nilPost *Post
	if nilPost.Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestImageDataURI(t *testing.T) {
	img := Image{MIMEType: "image/png", Data: []byte("abc")}
	if got, want := img.DataURI(), "data:image/png;base64,YWJj"; got != want {
		t.Errorf("DataURI() = %q, want %q", got, want)
	}
}
