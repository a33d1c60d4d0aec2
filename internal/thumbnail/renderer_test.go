package thumbnail

import (
	"bytes"
	"image/color"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/disintegration/imaging"
)

// tenPerRune measures every rune as 10 pixels wide.
func tenPerRune(s string) int { return utf8.RuneCountInString(s) * 10 }

func TestWrap_Spaces(t *testing.T) {
	got := Wrap("aaa bbb ccc ddd", tenPerRune, 70)
	want := []string{"aaa bbb", "ccc ddd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestWrap_Punctuation(t *testing.T) {
	got := Wrap("hello,world!again", tenPerRune, 70)
	want := []string{"hello,", "world!", "again"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestWrap_PunctuationSplitKeepsWordIntact(t *testing.T) {
	got := Wrap("ab,cd,efghijklmn xy", tenPerRune, 100)
	want := []string{"ab,cd,", "efghijklmn", "xy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestWrap_Characters(t *testing.T) {
	got := Wrap("abcdefghij", tenPerRune, 40)
	want := []string{"abcd", "efgh", "ij"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestWrap_Multibyte(t *testing.T) {
	got := Wrap("가나다라마바", tenPerRune, 30)
	want := []string{"가나다", "라마바"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Wrap = %q, want %q", got, want)
	}
}

func TestWrap_Empty(t *testing.T) {
	if got := Wrap("   ", tenPerRune, 100); len(got) != 0 {
		t.Errorf("Wrap(blank) = %q, want none", got)
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func sameRGB(c color.Color, want color.RGBA) bool {
	r, g, b, _ := c.RGBA()
	return uint8(r>>8) == want.R && uint8(g>>8) == want.G && uint8(b>>8) == want.B
}

func TestRenderWithTheme_Canvas(t *testing.T) {
	r := newTestRenderer(t)
	theme := Themes[1]

	img, err := r.RenderWithTheme("Top 5 tips", theme)
	if err != nil {
		t.Fatalf("RenderWithTheme: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q", img.MIMEType)
	}

	decoded, err := imaging.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != canvasSize || b.Dy() != canvasSize {
		t.Fatalf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), canvasSize, canvasSize)
	}
	if !sameRGB(decoded.At(5, 5), theme.Border) {
		t.Errorf("pixel (5,5) = %v, want border %v", decoded.At(5, 5), theme.Border)
	}
	if !sameRGB(decoded.At(30, 30), theme.Background) {
		t.Errorf("pixel (30,30) = %v, want background %v", decoded.At(30, 30), theme.Background)
	}
}

func TestRender_UsesPickedTheme(t *testing.T) {
	r := newTestRenderer(t)
	r.pick = func(n int) int { return n - 1 }

	img, err := r.Render("")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	decoded, err := imaging.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	last := Themes[len(Themes)-1]
	if !sameRGB(decoded.At(250, 250), last.Background) {
		t.Errorf("center of empty caption = %v, want background %v", decoded.At(250, 250), last.Background)
	}
}

func TestLayout_AtMostThreeLines(t *testing.T) {
	r := newTestRenderer(t)
	long := strings.Repeat("word ", 40)

	face, lines, size, err := r.layout(long)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	defer face.Close()

	if len(lines) > maxLines {
		t.Errorf("got %d lines, want <= %d", len(lines), maxLines)
	}
	if size != minFontSize {
		t.Errorf("size = %v, want font shrunk to %d", size, minFontSize)
	}
}

func TestLayout_ShortTextKeepsStartSize(t *testing.T) {
	r := newTestRenderer(t)
	face, lines, size, err := r.layout("Hi")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	defer face.Close()
	if len(lines) != 1 || size != startFontSize {
		t.Errorf("lines=%q size=%v, want one line at %d", lines, size, startFontSize)
	}
}
