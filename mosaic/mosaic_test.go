package mosaic

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"unicode/utf8"
)

// fixedMetrics gives every rune the same advance.
type fixedMetrics float64

func (m fixedMetrics) Advance(s string, _ float64) float64 {
	return float64(m) * float64(utf8.RuneCountInString(s))
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func consumed(doc *Document) []rune {
	var out []rune
	for _, t := range doc.Tiles {
		for _, l := range t.Lines {
			out = append(out, []rune(l.Text)...)
		}
	}
	return out
}

func TestEncode_Dimensions(t *testing.T) {
	// WHAT: declared size is image size times the cell size, whatever the text.
	// WHY: downstream viewers and the path converter rely on these dimensions.
	cases := []struct {
		w, h int
		text string
	}{
		{1, 1, "x"},
		{10, 7, "hello world"},
		{150, 90, "a"},
		{33, 150, strings.Repeat("long text ", 100)},
	}
	for _, c := range cases {
		doc, err := Encode(solid(c.w, c.h, color.NRGBA{A: 255}), c.text, BackgroundNone, fixedMetrics(6))
		if err != nil {
			t.Fatalf("%dx%d: %v", c.w, c.h, err)
		}
		if doc.Width != c.w*CharSize || doc.Height != c.h*CharSize {
			t.Fatalf("%dx%d: got %dx%d", c.w, c.h, doc.Width, doc.Height)
		}
	}
}

func TestEncode_LinesNeverOverflow(t *testing.T) {
	// WHAT: packed line width never exceeds the document width.
	// WHY: boundary check on the packing loop.
	m := fixedMetrics(9.3)
	doc, err := Encode(solid(17, 60, color.NRGBA{A: 255}), "The quick  brown\tfox!", BackgroundNone, m)
	if err != nil {
		t.Fatal(err)
	}
	lines := 0
	for _, tile := range doc.Tiles {
		for _, l := range tile.Lines {
			lines++
			if l.Width > float64(doc.Width) {
				t.Fatalf("row %d: width %v > %d", l.Row, l.Width, doc.Width)
			}
			if got, want := l.Offset, (float64(doc.Width)-l.Width)/2; got != want {
				t.Fatalf("row %d: offset %v, want %v", l.Row, got, want)
			}
		}
		for _, g := range tile.Glyphs {
			if g.X+m.Advance(string(g.Char), FontSize) > float64(doc.Width) {
				t.Fatalf("glyph %q at x=%v overflows", g.Char, g.X)
			}
		}
	}
	if lines != 60 {
		t.Fatalf("lines: got %d, want one per row", lines)
	}
}

func TestEncode_TextWraps(t *testing.T) {
	// WHAT: consumption index N equals index 0 for text of length N.
	// WHY: short text must loop to cover the whole canvas.
	text := "abc"
	doc, err := Encode(solid(10, 10, color.NRGBA{A: 255}), text, BackgroundNone, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	got := consumed(doc)
	if len(got) <= len(text) {
		t.Fatalf("consumed only %d characters", len(got))
	}
	if got[len(text)] != got[0] {
		t.Fatalf("index %d = %q, want %q", len(text), got[len(text)], got[0])
	}
	for i, r := range got {
		if want := rune(text[i%len(text)]); r != want {
			t.Fatalf("index %d = %q, want %q", i, r, want)
		}
	}
}

func TestEncode_TextContinuesAcrossTiles(t *testing.T) {
	doc, err := Encode(solid(3, 120, color.NRGBA{A: 255}), "abcdefg", BackgroundNone, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Tiles) != 3 {
		t.Fatalf("tiles: got %d, want 3", len(doc.Tiles))
	}
	if doc.Tiles[0].Rows != 50 || doc.Tiles[1].Rows != 50 || doc.Tiles[2].Rows != 20 {
		t.Fatalf("tile rows: %d %d %d", doc.Tiles[0].Rows, doc.Tiles[1].Rows, doc.Tiles[2].Rows)
	}
	got := consumed(doc)
	for i, r := range got {
		if want := rune("abcdefg"[i%7]); r != want {
			t.Fatalf("index %d = %q, want %q", i, r, want)
		}
	}
}

func TestEncode_ZeroImage(t *testing.T) {
	doc, err := Encode(image.NewNRGBA(image.Rect(0, 0, 0, 0)), "abc", BackgroundWhite, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	if doc.Width != 0 || doc.Height != 0 || len(doc.Tiles) != 0 {
		t.Fatalf("zero image: %+v", doc)
	}

	doc, err = Encode(nil, "abc", BackgroundNone, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Glyphs()) != 0 {
		t.Fatal("nil image should produce no glyphs")
	}
}

func TestEncode_Errors(t *testing.T) {
	img := solid(2, 2, color.NRGBA{A: 255})
	if _, err := Encode(img, "", BackgroundNone, fixedMetrics(6)); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text: got %v", err)
	}
	if _, err := Encode(img, "a", Background("red"), fixedMetrics(6)); !errors.Is(err, ErrInvalidBackground) {
		t.Errorf("bad background: got %v", err)
	}
	if _, err := Encode(img, "a", BackgroundNone, nil); !errors.Is(err, ErrNoMetrics) {
		t.Errorf("nil metrics: got %v", err)
	}
}

func TestEncode_SampleColor(t *testing.T) {
	// WHAT: glyph fill comes from the pixel under the cell center.
	// WHY: the mosaic must approximate the source image.
	img := image.NewNRGBA(image.Rect(0, 0, 10, 1))
	red := color.NRGBA{R: 255, A: 128}
	blue := color.NRGBA{B: 255, A: 255}
	for x := 0; x < 10; x++ {
		if x < 5 {
			img.SetNRGBA(x, 0, red)
		} else {
			img.SetNRGBA(x, 0, blue)
		}
	}
	doc, err := Encode(img, "x", BackgroundNone, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	glyphs := doc.Glyphs()
	if len(glyphs) != 20 {
		t.Fatalf("glyphs: got %d, want 20", len(glyphs))
	}
	if glyphs[0].Fill != red {
		t.Errorf("first glyph: got %v, want %v", glyphs[0].Fill, red)
	}
	if glyphs[19].Fill != blue {
		t.Errorf("last glyph: got %v, want %v", glyphs[19].Fill, blue)
	}
	if got := FormatFill(red); got != "rgba(255, 0, 0, 0.5019607843137255)" {
		t.Errorf("fill: got %q", got)
	}
	if got := FormatFill(blue); got != "rgba(0, 0, 255, 1)" {
		t.Errorf("fill: got %q", got)
	}
}

func TestEncode_SpacesEmitNoGlyphs(t *testing.T) {
	doc, err := Encode(solid(4, 1, color.NRGBA{A: 255}), "a b", BackgroundNone, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	line := doc.Tiles[0].Lines[0]
	spaces := strings.Count(line.Text, " ")
	if spaces == 0 {
		t.Fatalf("line should contain spaces: %q", line.Text)
	}
	if got, want := len(doc.Glyphs()), utf8.RuneCountInString(line.Text)-spaces; got != want {
		t.Fatalf("glyphs: got %d, want %d", got, want)
	}
}

func TestMarkup(t *testing.T) {
	doc, err := Encode(solid(3, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), `<&>"'`, BackgroundBlack, fixedMetrics(6))
	if err != nil {
		t.Fatal(err)
	}
	m := doc.Markup()
	if !strings.HasPrefix(m, `<rect width="42" height="28" fill="black"/>`) {
		t.Fatalf("background rect missing: %s", m[:60])
	}
	for _, want := range []string{"&lt;", "&amp;", "&gt;", "&quot;", "&apos;", `fill="rgba(1, 2, 3, 1)"`, `font-family="Power"`} {
		if !strings.Contains(m, want) {
			t.Errorf("markup missing %q", want)
		}
	}
	if strings.Count(m, "<g ") != 1 {
		t.Errorf("want one tile group")
	}

	none, _ := Encode(solid(3, 2, color.NRGBA{A: 255}), "a", BackgroundNone, fixedMetrics(6))
	if strings.Contains(none.Markup(), "<rect") {
		t.Error("transparent background must not emit a rect")
	}
	if svg := none.SVG(); !strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 42 28">`) {
		t.Errorf("svg wrapper: %s", svg[:70])
	}
}

func TestParseBackground(t *testing.T) {
	for in, want := range map[string]Background{
		"":            BackgroundNone,
		"transparent": BackgroundNone,
		"White":       BackgroundWhite,
		"black":       BackgroundBlack,
	} {
		got, err := ParseBackground(in)
		if err != nil || got != want {
			t.Errorf("ParseBackground(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBackground("red"); !errors.Is(err, ErrInvalidBackground) {
		t.Errorf("red: got %v", err)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	cases := map[string]string{
		"a  b":        "a b",
		"a\n\t b":     "a b",
		"  lead":      " lead",
		"trail \n":    "trail ",
		"none":        "none",
		"a\u00a0\u00a0b": "a b",
	}
	for in, want := range cases {
		if got := CollapseWhitespace(in); got != want {
			t.Errorf("CollapseWhitespace(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDownscale(t *testing.T) {
	cases := []struct {
		w, h, wantW, wantH int
	}{
		{300, 150, 150, 75},
		{100, 400, 38, 150},
		{150, 150, 150, 150},
		{40, 20, 40, 20},
	}
	for _, c := range cases {
		src := solid(c.w, c.h, color.NRGBA{G: 255, A: 255})
		got := Downscale(src, MaxDimension).Bounds()
		if got.Dx() != c.wantW || got.Dy() != c.wantH {
			t.Errorf("%dx%d: got %dx%d, want %dx%d", c.w, c.h, got.Dx(), got.Dy(), c.wantW, c.wantH)
		}
	}

	small := solid(10, 10, color.NRGBA{A: 255})
	if Downscale(small, MaxDimension) != image.Image(small) {
		t.Error("image within the limit should be returned unchanged")
	}
}

func TestLoadImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(300, 60, color.NRGBA{R: 9, A: 255})); err != nil {
		t.Fatal(err)
	}
	img, err := LoadImage(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 150 || b.Dy() != 30 {
		t.Fatalf("bounds: %v", b)
	}

	if _, err := LoadImage(strings.NewReader("not an image")); err == nil {
		t.Fatal("garbage input should fail to decode")
	}
}
