// Package typeface loads vector fonts and exposes the two things the mosaic
// toolkit needs from them: advance widths for line packing and glyph outlines
// as SVG path data for export.
//
// Fonts are parsed once per path and cached for the life of the process:
//
//	face, err := typeface.Load("fonts/power.ttf")
//	w := face.Advance("A", 16)
//	d, err := face.PathData("A", 10, 30, 16)
package typeface

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// ErrFontUnavailable is returned when a font file cannot be read or parsed.
var ErrFontUnavailable = errors.New("typeface: font unavailable")

// Face is a parsed font. It is safe for concurrent use: every call allocates
// its own sfnt.Buffer.
type Face struct {
	name string
	font *sfnt.Font
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Face{}

	defaultOnce sync.Once
	defaultFace *Face
	defaultErr  error
)

// Load parses the font at path, returning the cached Face on later calls.
// A failed load is not cached so a missing file can be fixed without restart.
func Load(path string) (*Face, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if f, ok := cache[path]; ok {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cache[path] = f
	return f, nil
}

// Default returns the embedded Go Regular face, used when no font file is
// configured.
func Default() (*Face, error) {
	defaultOnce.Do(func() {
		defaultFace, defaultErr = Parse(goregular.TTF)
	})
	return defaultFace, defaultErr
}

// Parse builds a Face from TTF or OTF bytes.
func Parse(data []byte) (*Face, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	var b sfnt.Buffer
	name, err := f.Name(&b, sfnt.NameIDFamily)
	if err != nil {
		name = ""
	}
	return &Face{name: name, font: f}, nil
}

// Name returns the font family name, or "" if the font does not declare one.
func (f *Face) Name() string { return f.name }

// Advance returns the horizontal advance of s at the given pixel size,
// including pair kerning when the font carries a kern table.
func (f *Face) Advance(s string, size float64) float64 {
	var b sfnt.Buffer
	ppem := toFixed(size)

	var total fixed.Int26_6
	prev, hasPrev := sfnt.GlyphIndex(0), false
	for _, r := range s {
		gi, err := f.font.GlyphIndex(&b, r)
		if err != nil {
			continue
		}
		if hasPrev {
			if k, err := f.font.Kern(&b, prev, gi, ppem, font.HintingNone); err == nil {
				total += k
			}
		}
		adv, err := f.font.GlyphAdvance(&b, gi, ppem, font.HintingNone)
		if err == nil {
			total += adv
		}
		prev, hasPrev = gi, true
	}
	return fromFixed(total)
}

// PathData returns the outline of s as SVG path data, with the baseline
// origin of the first glyph at (x, y). Coordinates grow downwards, matching
// SVG user space.
func (f *Face) PathData(s string, x, y float64, size float64) (string, error) {
	var b sfnt.Buffer
	ppem := toFixed(size)

	var sb strings.Builder
	pen := x
	prev, hasPrev := sfnt.GlyphIndex(0), false
	for _, r := range s {
		gi, err := f.font.GlyphIndex(&b, r)
		if err != nil {
			return "", fmt.Errorf("typeface: glyph index %q: %w", r, err)
		}
		if hasPrev {
			if k, err := f.font.Kern(&b, prev, gi, ppem, font.HintingNone); err == nil {
				pen += fromFixed(k)
			}
		}
		segs, err := f.font.LoadGlyph(&b, gi, ppem, nil)
		if err != nil {
			return "", fmt.Errorf("typeface: load glyph %q: %w", r, err)
		}
		writeSegments(&sb, segs, pen, y)

		adv, err := f.font.GlyphAdvance(&b, gi, ppem, font.HintingNone)
		if err != nil {
			return "", fmt.Errorf("typeface: advance %q: %w", r, err)
		}
		pen += fromFixed(adv)
		prev, hasPrev = gi, true
	}
	return sb.String(), nil
}

func writeSegments(sb *strings.Builder, segs sfnt.Segments, dx, dy float64) {
	open := false
	for _, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			if open {
				sb.WriteByte('Z')
			}
			sb.WriteByte('M')
			writePoint(sb, seg.Args[0], dx, dy)
			open = true
		case sfnt.SegmentOpLineTo:
			sb.WriteByte('L')
			writePoint(sb, seg.Args[0], dx, dy)
		case sfnt.SegmentOpQuadTo:
			sb.WriteByte('Q')
			writePoint(sb, seg.Args[0], dx, dy)
			sb.WriteByte(' ')
			writePoint(sb, seg.Args[1], dx, dy)
		case sfnt.SegmentOpCubeTo:
			sb.WriteByte('C')
			writePoint(sb, seg.Args[0], dx, dy)
			sb.WriteByte(' ')
			writePoint(sb, seg.Args[1], dx, dy)
			sb.WriteByte(' ')
			writePoint(sb, seg.Args[2], dx, dy)
		}
	}
	if open {
		sb.WriteByte('Z')
	}
}

func writePoint(sb *strings.Builder, p fixed.Point26_6, dx, dy float64) {
	sb.WriteString(formatCoord(fromFixed(p.X) + dx))
	sb.WriteByte(' ')
	sb.WriteString(formatCoord(fromFixed(p.Y) + dy))
}

// formatCoord prints v with at most two decimals and no trailing zeros.
func formatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(v * 64) }

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }
