// Package mosaic turns a raster image and a piece of text into an SVG made
// entirely of the text's characters, each tinted with the color of the image
// underneath it.
//
// The image is split into horizontal tiles of TileHeight source rows. Every
// source row becomes one line of text; lines consume the input text
// cyclically, are packed up to the document width using the font's advance
// widths, and are centered horizontally.
package mosaic

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Layout constants. A source pixel maps to a CharSize×CharSize cell.
const (
	MaxDimension = 150
	CharSize     = 14
	FontSize     = CharSize + 2
	FontFamily   = "Power"
	CharPadding  = 1
	SpacePadding = 2 * CharPadding
	TileHeight   = 50
)

var (
	ErrEmptyText         = errors.New("mosaic: text is empty")
	ErrInvalidBackground = errors.New("mosaic: invalid background")
	ErrNoMetrics         = errors.New("mosaic: no font metrics")
)

// Metrics measures rendered text. *typeface.Face satisfies it.
type Metrics interface {
	Advance(s string, size float64) float64
}

// Background is the optional full-canvas fill behind the glyphs.
type Background string

const (
	BackgroundNone  Background = ""
	BackgroundWhite Background = "white"
	BackgroundBlack Background = "black"
)

// ParseBackground accepts "", "none", "transparent", "white" and "black".
func ParseBackground(s string) (Background, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "transparent":
		return BackgroundNone, nil
	case "white":
		return BackgroundWhite, nil
	case "black":
		return BackgroundBlack, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBackground, s)
}

func (b Background) valid() bool {
	return b == BackgroundNone || b == BackgroundWhite || b == BackgroundBlack
}

// Glyph is one placed character. X is the left edge of the glyph; Y is the
// baseline.
type Glyph struct {
	Char rune
	X    float64
	Y    float64
	Fill color.NRGBA
}

// Line records how one source row was packed.
type Line struct {
	Row    int
	Text   string
	Width  float64
	Offset float64
}

// Tile is a horizontal band of TileHeight source rows (the last may be shorter).
type Tile struct {
	FirstRow int
	Rows     int
	Lines    []Line
	Glyphs   []Glyph
}

// Document is a generated mosaic.
type Document struct {
	Width      int
	Height     int
	Background Background
	Tiles      []Tile
}

// Encode builds the mosaic for img. img should already be downscaled (see
// Downscale); Encode does not resize. A zero-sized image yields an empty
// document.
func Encode(img image.Image, text string, bg Background, m Metrics) (*Document, error) {
	if m == nil {
		return nil, ErrNoMetrics
	}
	if !bg.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackground, string(bg))
	}
	text = CollapseWhitespace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	var w, h int
	if img != nil {
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	doc := &Document{
		Width:      w * CharSize,
		Height:     h * CharSize,
		Background: bg,
	}
	if w == 0 || h == 0 {
		return doc, nil
	}

	e := &encoder{
		img:    img,
		metric: m,
		text:   []rune(text),
		widths: make(map[rune]float64),
		docW:   float64(doc.Width),
		docH:   float64(doc.Height),
	}
	for first := 0; first < h; first += TileHeight {
		rows := min(TileHeight, h-first)
		doc.Tiles = append(doc.Tiles, e.tile(first, rows))
	}
	return doc, nil
}

type encoder struct {
	img    image.Image
	metric Metrics
	text   []rune
	next   int
	widths map[rune]float64
	docW   float64
	docH   float64
}

func (e *encoder) advance(r rune) float64 {
	if w, ok := e.widths[r]; ok {
		return w
	}
	w := e.metric.Advance(string(r), FontSize)
	e.widths[r] = w
	return w
}

// cellWidth is the width a character occupies while packing a line.
func (e *encoder) cellWidth(r rune) float64 {
	if r == ' ' {
		return SpacePadding
	}
	return e.advance(r) + CharPadding
}

func (e *encoder) tile(first, rows int) Tile {
	t := Tile{FirstRow: first, Rows: rows}
	for row := first; row < first+rows; row++ {
		line := e.pack(row)
		t.Lines = append(t.Lines, line)
		t.Glyphs = e.place(t.Glyphs, line)
	}
	return t
}

// pack consumes characters until the next one would overflow the document
// width.
func (e *encoder) pack(row int) Line {
	var sb strings.Builder
	width := 0.0
	for width < e.docW {
		if e.next >= len(e.text) {
			e.next = 0
		}
		r := e.text[e.next]
		cw := e.cellWidth(r)
		if width+cw > e.docW {
			break
		}
		sb.WriteRune(r)
		width += cw
		e.next++
	}
	return Line{
		Row:    row,
		Text:   sb.String(),
		Width:  width,
		Offset: (e.docW - width) / 2,
	}
}

func (e *encoder) place(glyphs []Glyph, line Line) []Glyph {
	y := float64(line.Row * CharSize)
	x := line.Offset
	for _, r := range line.Text {
		if r == ' ' {
			x += SpacePadding
			continue
		}
		glyphs = append(glyphs, Glyph{
			Char: r,
			X:    x,
			Y:    y + CharSize,
			Fill: e.sample(x, y),
		})
		x += e.advance(r) + CharPadding
	}
	return glyphs
}

// sample maps the center of the cell at document position (x, y) back to a
// source pixel.
func (e *encoder) sample(x, y float64) color.NRGBA {
	b := e.img.Bounds()
	w, h := b.Dx(), b.Dy()
	px := int(math.Floor(float64(w) * (x + CharSize/2.0) / e.docW))
	py := int(math.Floor(float64(h) * (y + CharSize/2.0) / e.docH))
	px = max(0, min(px, w-1))
	py = max(0, min(py, h-1))
	return color.NRGBAModel.Convert(e.img.At(b.Min.X+px, b.Min.Y+py)).(color.NRGBA)
}

// Glyphs returns every placed glyph in document order.
func (d *Document) Glyphs() []Glyph {
	var out []Glyph
	for _, t := range d.Tiles {
		out = append(out, t.Glyphs...)
	}
	return out
}

// Markup renders the document body: the optional background rect followed
// by one <g> per tile. It does not include the <svg> wrapper.
func (d *Document) Markup() string {
	var sb strings.Builder
	if d.Background != BackgroundNone {
		fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="%s"/>`, d.Width, d.Height, d.Background)
	}
	for _, t := range d.Tiles {
		fmt.Fprintf(&sb, `<g font-family="%s" font-size="%dpx" alignment-baseline="middle">`, FontFamily, FontSize)
		for _, g := range t.Glyphs {
			sb.WriteString(`<text x="`)
			sb.WriteString(formatNumber(g.X))
			sb.WriteString(`" y="`)
			sb.WriteString(formatNumber(g.Y))
			sb.WriteString(`" fill="`)
			sb.WriteString(FormatFill(g.Fill))
			sb.WriteString(`">`)
			sb.WriteString(EscapeXML(string(g.Char)))
			sb.WriteString(`</text>`)
		}
		sb.WriteString(`</g>`)
	}
	return sb.String()
}

// SVG renders a standalone SVG document.
func (d *Document) SVG() string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d">%s</svg>`,
		d.Width, d.Height, d.Markup())
}

// FormatFill renders c as a CSS rgba() expression with fractional alpha.
func FormatFill(c color.NRGBA) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, formatNumber(float64(c.A)/255))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
