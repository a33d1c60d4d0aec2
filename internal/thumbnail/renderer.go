// Package thumbnail renders short caption text into a square, high-contrast
// PNG suitable for a post's featured image.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kalambet/wpbatch/internal/post"
)

const (
	canvasSize    = 500
	borderWidth   = 20
	padding       = 80
	maxTextWidth  = canvasSize - 2*padding
	startFontSize = 90
	minFontSize   = 50
	fontStep      = 5
	maxLines      = 3
	lineSpacing   = 1.3
)

// Theme is one background/text/border color combination.
type Theme struct {
	Background color.RGBA
	Text       color.RGBA
	Border     color.RGBA
}

func hex(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// Themes is the fixed palette thumbnails are drawn from.
var Themes = []Theme{
	{hex(0xFFFFFF), hex(0x0066FF), hex(0x0066FF)},
	{hex(0xFFD700), hex(0x000000), hex(0x000000)},
	{hex(0x000000), hex(0xFFFFFF), hex(0xFF3366)},
	{hex(0x0A2540), hex(0xFFFFFF), hex(0x00D4FF)},
	{hex(0xFF3366), hex(0xFFFFFF), hex(0xFFFFFF)},
	{hex(0x00C853), hex(0xFFFFFF), hex(0x1B5E20)},
	{hex(0xF5F5F5), hex(0x212121), hex(0xFF6F00)},
	{hex(0x6200EA), hex(0xFFFFFF), hex(0xFFD600)},
}

// Renderer draws caption thumbnails. It is safe for concurrent use.
type Renderer struct {
	font *opentype.Font
	pick func(n int) int
}

// NewRenderer loads the font at fontPath, or the embedded Go Bold face when
// fontPath is empty. Captions in scripts Go Bold lacks (Hangul, CJK) need a
// font file that covers them.
func NewRenderer(fontPath string) (*Renderer, error) {
	data := gobold.TTF
	if fontPath != "" {
		b, err := os.ReadFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("reading thumbnail font: %w", err)
		}
		data = b
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing thumbnail font: %w", err)
	}
	return &Renderer{font: f, pick: rand.IntN}, nil
}

// Render draws text on a randomly themed canvas and returns it PNG-encoded.
func (r *Renderer) Render(text string) (*post.Image, error) {
	return r.RenderWithTheme(text, Themes[r.pick(len(Themes))])
}

// RenderWithTheme draws text using the given theme.
func (r *Renderer) RenderWithTheme(text string, theme Theme) (*post.Image, error) {
	text = strings.Join(strings.Fields(text), " ")

	face, lines, size, err := r.layout(text)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	img := image.NewRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	draw.Draw(img, img.Bounds(), image.NewUniform(theme.Border), image.Point{}, draw.Src)
	inner := image.Rect(borderWidth, borderWidth, canvasSize-borderWidth, canvasSize-borderWidth)
	draw.Draw(img, inner, image.NewUniform(theme.Background), image.Point{}, draw.Src)

	lineHeight := size * lineSpacing
	top := (float64(canvasSize) - lineHeight*float64(len(lines))) / 2
	m := face.Metrics()
	// Offset from a line's vertical center to its baseline.
	baselineShift := float64(m.Ascent-m.Descent) / 64 / 2

	d := &font.Drawer{Dst: img, Src: image.NewUniform(theme.Text), Face: face}
	for i, line := range lines {
		w := d.MeasureString(line).Ceil()
		center := top + lineHeight*float64(i) + lineHeight/2
		d.Dot = fixed.P((canvasSize-w)/2, int(center+baselineShift))
		d.DrawString(line)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return &post.Image{MIMEType: "image/png", Data: buf.Bytes()}, nil
}

// layout shrinks the font until text wraps into maxLines, stopping at
// minFontSize, then truncates to maxLines. The caller closes the face.
func (r *Renderer) layout(text string) (font.Face, []string, float64, error) {
	size := float64(startFontSize)
	for {
		face, err := opentype.NewFace(r.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, nil, 0, fmt.Errorf("creating font face: %w", err)
		}
		lines := Wrap(text, func(s string) int { return font.MeasureString(face, s).Ceil() }, maxTextWidth)
		if len(lines) <= maxLines || size-fontStep < minFontSize {
			if len(lines) > maxLines {
				lines = lines[:maxLines]
			}
			return face, lines, size, nil
		}
		face.Close()
		size -= fontStep
	}
}

// Wrap breaks text into lines no wider than maxWidth as measured by
// measure. It breaks at spaces first, then after punctuation, then between
// characters.
func Wrap(text string, measure func(string) int, maxWidth int) []string {
	// glued pieces continue the previous word and are joined without a space.
	type piece struct {
		text  string
		glued bool
	}
	var pieces []piece
	for _, word := range strings.Fields(text) {
		if measure(word) <= maxWidth {
			pieces = append(pieces, piece{text: word})
			continue
		}
		var parts []string
		for _, seg := range splitAfterPunct(word) {
			if measure(seg) <= maxWidth {
				parts = append(parts, seg)
				continue
			}
			parts = append(parts, splitRunes(seg, measure, maxWidth)...)
		}
		for i, part := range parts {
			pieces = append(pieces, piece{text: part, glued: i > 0})
		}
	}

	var lines []string
	var cur string
	for _, p := range pieces {
		if cur == "" {
			cur = p.text
			continue
		}
		next := cur + " " + p.text
		if p.glued {
			next = cur + p.text
		}
		if measure(next) <= maxWidth {
			cur = next
			continue
		}
		lines = append(lines, cur)
		cur = p.text
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitAfterPunct(word string) []string {
	var out []string
	start := 0
	for i, r := range word {
		if strings.ContainsRune(",?!.", r) {
			end := i + len(string(r))
			out = append(out, word[start:end])
			start = end
		}
	}
	if start < len(word) {
		out = append(out, word[start:])
	}
	return out
}

func splitRunes(s string, measure func(string) int, maxWidth int) []string {
	var out []string
	var cur []rune
	for _, r := range s {
		next := append(cur, r)
		if len(cur) > 0 && measure(string(next)) > maxWidth {
			out = append(out, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
