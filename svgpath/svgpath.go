// Package svgpath rewrites SVG text glyphs into filled vector paths so an
// exported document renders identically without the display font installed.
package svgpath

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/famousjsons/typeface"
)

// FontSize is the size glyph outlines are generated at. It matches the font
// size the mosaic encoder declares on its tiles.
const FontSize = 16

// ErrNoSVG is returned when the input has no <svg> root element.
var ErrNoSVG = errors.New("svgpath: no svg element")

// Dimensions is the pixel size of an SVG document's viewBox.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Wrap places markup inside an <svg> root with a viewBox of dims.
func Wrap(markup string, dims Dimensions) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d">%s</svg>`,
		dims.Width, dims.Height, markup)
}

// Convert wraps markup in an <svg> of the given dimensions and replaces
// every <text> element with a <path> outlining the same characters, anchored
// at the element's x/y and carrying its fill. Text elements without content
// or without a parseable position are left untouched.
//
// A nil face fails the whole conversion; no partial document is returned.
func Convert(markup string, dims Dimensions, face *typeface.Face) (string, error) {
	if face == nil {
		return "", typeface.ErrFontUnavailable
	}
	root, err := parse(Wrap(markup, dims))
	if err != nil {
		return "", err
	}

	for _, n := range collect(root, "text") {
		content := textContent(n)
		x, okX := floatAttr(n, "x")
		y, okY := floatAttr(n, "y")
		if content == "" || !okX || !okY {
			continue
		}
		d, err := face.PathData(content, x, y, FontSize)
		if err != nil {
			return "", fmt.Errorf("svgpath: outline %q: %w", content, err)
		}
		p := &html.Node{
			Type:      html.ElementNode,
			Data:      "path",
			Namespace: "svg",
			Attr:      []html.Attribute{{Key: "d", Val: d}},
		}
		if fill, ok := attr(n, "fill"); ok {
			p.Attr = append(p.Attr, html.Attribute{Key: "fill", Val: fill})
		}
		n.Parent.InsertBefore(p, n)
		n.Parent.RemoveChild(n)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("svgpath: render: %w", err)
	}
	return buf.String(), nil
}

// Unwrap returns the inner markup of an SVG document together with the
// dimensions declared by its viewBox.
func Unwrap(svg string) (string, Dimensions, error) {
	root, err := parse(svg)
	if err != nil {
		return "", Dimensions{}, err
	}
	dims, err := viewBox(root)
	if err != nil {
		return "", Dimensions{}, err
	}
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", Dimensions{}, fmt.Errorf("svgpath: render: %w", err)
		}
	}
	return buf.String(), dims, nil
}

// Measure returns the dimensions declared by an SVG document's viewBox.
func Measure(svg string) (Dimensions, error) {
	root, err := parse(svg)
	if err != nil {
		return Dimensions{}, err
	}
	return viewBox(root)
}

func parse(src string) (*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return nil, fmt.Errorf("svgpath: parse: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode && n.Data == "svg" {
			return n, nil
		}
	}
	return nil, ErrNoSVG
}

func viewBox(root *html.Node) (Dimensions, error) {
	vb, ok := attr(root, "viewBox")
	if !ok {
		return Dimensions{}, fmt.Errorf("svgpath: missing viewBox")
	}
	f := strings.Fields(strings.ReplaceAll(vb, ",", " "))
	if len(f) != 4 {
		return Dimensions{}, fmt.Errorf("svgpath: malformed viewBox %q", vb)
	}
	w, errW := strconv.ParseFloat(f[2], 64)
	h, errH := strconv.ParseFloat(f[3], 64)
	if errW != nil || errH != nil {
		return Dimensions{}, fmt.Errorf("svgpath: malformed viewBox %q", vb)
	}
	return Dimensions{Width: int(w), Height: int(h)}, nil
}

func collect(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func floatAttr(n *html.Node, key string) (float64, bool) {
	v, ok := attr(n, key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
