package typeface

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func TestDefault(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() == "" {
		t.Error("embedded face should declare a family name")
	}
	again, _ := Default()
	if f != again {
		t.Error("Default should return the same face on every call")
	}
}

func TestAdvance(t *testing.T) {
	// WHAT: advance widths are additive and scale with size.
	// WHY: mosaic line packing relies on these measurements.
	f, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Advance("", 16); got != 0 {
		t.Fatalf("empty advance: got %v", got)
	}
	a := f.Advance("a", 16)
	ab := f.Advance("ab", 16)
	if a <= 0 || ab <= a {
		t.Fatalf("advance a=%v ab=%v", a, ab)
	}
	big := f.Advance("a", 32)
	if big < a*1.8 || big > a*2.2 {
		t.Fatalf("advance should scale with size: 16px=%v 32px=%v", a, big)
	}
}

func TestPathData(t *testing.T) {
	f, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	d, err := f.PathData("A", 10, 30, 16)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(d, "M") || !strings.HasSuffix(d, "Z") {
		t.Fatalf("path data: %q", d)
	}

	space, err := f.PathData(" ", 0, 0, 16)
	if err != nil {
		t.Fatal(err)
	}
	if space != "" {
		t.Fatalf("space has no outline, got %q", space)
	}
}

func TestLoad(t *testing.T) {
	// WHAT: Load caches faces per path and reports missing files.
	// WHY: the converter must fail entirely when its font is missing.
	dir := t.TempDir()
	path := filepath.Join(dir, "go.ttf")
	if err := os.WriteFile(path, goregular.TTF, 0o644); err != nil {
		t.Fatal(err)
	}

	f1, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if f1 != f2 {
		t.Error("second Load should hit the cache")
	}

	_, err = Load(filepath.Join(dir, "missing.ttf"))
	if !errors.Is(err, ErrFontUnavailable) {
		t.Fatalf("missing font: got %v", err)
	}

	_, err = Parse([]byte("not a font"))
	if !errors.Is(err, ErrFontUnavailable) {
		t.Fatalf("garbage font: got %v", err)
	}
}

func TestFormatCoord(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{10, "10"},
		{100, "100"},
		{1.5, "1.5"},
		{1.234, "1.23"},
		{0, "0"},
		{-0.001, "0"},
		{-2.5, "-2.5"},
	}
	for _, c := range cases {
		if got := formatCoord(c.in); got != c.want {
			t.Errorf("formatCoord(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
