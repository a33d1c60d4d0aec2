package post

import (
	"encoding/base64"
	"strings"
	"time"
)

// Separator splits a topic line into its title and keyword.
const Separator = "///"

// Status is a WordPress post visibility state.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPublish Status = "publish"
	StatusFuture  Status = "future"
	StatusPending Status = "pending"
	StatusPrivate Status = "private"
)

// Valid reports whether s is a status WordPress accepts on create.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublish, StatusFuture, StatusPending, StatusPrivate:
		return true
	}
	return false
}

// Topic is one parsed input line of the form "title///keyword".
type Topic struct {
	Raw     string `json:"raw"`
	Title   string `json:"title"`
	Keyword string `json:"keyword"`
}

// ParseTopic splits line on Separator. The keyword defaults to the title
// when the separator is absent or the keyword part is blank.
func ParseTopic(line string) Topic {
	raw := strings.TrimSpace(line)
	title, keyword, _ := strings.Cut(raw, Separator)
	title = strings.TrimSpace(title)
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = title
	}
	return Topic{Raw: raw, Title: title, Keyword: keyword}
}

// ParseTopics returns one Topic per line that carries Separator, in input
// order. Other lines are dropped.
func ParseTopics(input string) []Topic {
	var topics []Topic
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, Separator) {
			continue
		}
		topics = append(topics, ParseTopic(line))
	}
	return topics
}

// Image is an encoded raster image.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// DataURI returns the image as an inline data URI.
func (img Image) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Post is a generated draft, enriched by the publish stage.
type Post struct {
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt"`
	ThumbnailText    string     `json:"thumbnail_text"`
	Status           Status     `json:"status"`
	Date             *time.Time `json:"date,omitempty"`
	Thumbnail        *Image     `json:"-"`
	FeaturedMediaURL string     `json:"featured_media_url,omitempty"`
	RemoteID         int        `json:"remote_id,omitempty"`
	Link             string     `json:"link,omitempty"`
	Categories       []int      `json:"categories,omitempty"`
}

// Clone returns a copy of p that shares no slices or pointers with it.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Date != nil {
		d := *p.Date
		cp.Date = &d
	}
	if p.Thumbnail != nil {
		img := *p.Thumbnail
		img.Data = append([]byte(nil), p.Thumbnail.Data...)
		cp.Thumbnail = &img
	}
	if p.Categories != nil {
		cp.Categories = append([]int(nil), p.Categories...)
	}
	return &cp
}
