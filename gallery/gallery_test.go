package gallery

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"jsons.txt":               {Data: []byte("package\ntsconfig\r\n\n  launch  \n")},
		"json_json/package.json":  {Data: []byte(`{"name": "left-pad", "version": "1.3.0"}`)},
		"json_json/tsconfig.json": {Data: []byte(`{"compilerOptions": {"strict": true}}`)},
		"json_json/launch.json":   {Data: []byte(`{"configurations": [{"type": "node"}]}`)},
		"json_art/package.svg":    {Data: []byte(`<svg viewBox="0 0 14 14"></svg>`)},
	}
}

func TestLoad(t *testing.T) {
	g, err := Load(testFS())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(g.Names(), ",") != "package,tsconfig,launch" {
		t.Fatalf("names: %v", g.Names())
	}
	it, err := g.Lookup("tsconfig")
	if err != nil {
		t.Fatal(err)
	}
	if it.TokenID != 1 || !strings.Contains(it.JSON, "strict") {
		t.Fatalf("item: %+v", it)
	}
	if it, err := g.Lookup("2"); err != nil || it.Name != "launch" {
		t.Fatalf("lookup by id: %+v, %v", it, err)
	}
	for _, key := range []string{"nope", "3", "-1"} {
		if _, err := g.Lookup(key); !errors.Is(err, ErrUnknownArtifact) {
			t.Errorf("lookup %q: got %v", key, err)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing manifest": {},
		"empty manifest":   {"jsons.txt": {Data: []byte("\n\n")}},
		"duplicate":        {"jsons.txt": {Data: []byte("a\na\n")}},
		"interior blank":   {"jsons.txt": {Data: []byte("a\n\nb\n")}},
		"traversal":        {"jsons.txt": {Data: []byte("../secret\n")}},
		"missing json":     {"jsons.txt": {Data: []byte("a\n")}},
	}
	for name, fsys := range cases {
		if _, err := Load(fsys); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := Load(cases["empty manifest"]); !errors.Is(err, ErrEmptyManifest) {
		t.Errorf("empty manifest: got %v", err)
	}
}

func TestLoadManifest_Trim(t *testing.T) {
	// WHAT: blank lines around the list and whitespace around names are dropped.
	// WHY: a trailing newline or CRLF file must not add a token or change a name.
	fsys := fstest.MapFS{"jsons.txt": {Data: []byte("\r\n  package\r\ntsconfig \r\n\r\n\n")}}
	names, err := LoadManifest(fsys, ManifestFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "package,tsconfig" {
		t.Fatalf("names: %q", names)
	}

	fsys["jsons.txt"] = &fstest.MapFile{Data: []byte("package\n\ntsconfig\n")}
	if _, err := LoadManifest(fsys, ManifestFile); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("interior blank line: got %v", err)
	}
}

func TestSearch(t *testing.T) {
	// WHAT: search matches name or JSON content, case-insensitively.
	g, _ := Load(testFS())
	cases := map[string][]string{
		"":         {"package", "tsconfig", "launch"},
		"PACK":     {"package"},
		"STRICT":   {"tsconfig"},
		"node":     {"launch"},
		"\"name\"": {"package"},
		"zzz":      {},
	}
	for term, want := range cases {
		var got []string
		for _, it := range g.Search(term) {
			got = append(got, it.Name)
		}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%q: got %v, want %v", term, got, want)
		}
	}
}

func TestMarkMinted(t *testing.T) {
	g, _ := Load(testFS())
	items := MarkMinted(g.Items(), []string{"0", "2", "17"})
	want := []bool{true, false, true}
	for i, it := range items {
		if it.Minted != want[i] {
			t.Errorf("%s: minted %v, want %v", it.Name, it.Minted, want[i])
		}
	}
	if g.Items()[0].Minted {
		t.Error("MarkMinted mutated the gallery")
	}
}

func TestArtwork(t *testing.T) {
	g, _ := Load(testFS())
	svg, err := g.Artwork("package")
	if err != nil || !strings.HasPrefix(string(svg), "<svg") {
		t.Fatalf("got %q, %v", svg, err)
	}
	if _, err := g.Artwork("tsconfig"); err == nil {
		t.Error("missing artwork: expected error")
	}
	if _, err := g.Artwork("../jsons.txt"); !errors.Is(err, ErrUnknownArtifact) {
		t.Errorf("unlisted name: got %v", err)
	}
}

func TestBuildMetadata(t *testing.T) {
	ms := BuildMetadata([]string{"package", "tsconfig"}, "")
	want := Metadata{
		Image:           "https://famousjsons.com/json_art/tsconfig.svg",
		ExternalURL:     "https://famousjsons.com?s=tsconfig",
		BackgroundColor: "242424",
		Name:            "tsconfig",
		Description:     "Famous JSON 2 of 2",
	}
	if ms[1] != want {
		t.Fatalf("got %+v", ms[1])
	}
	if got := BuildMetadata([]string{"a"}, "http://localhost:3000/")[0].Image; got != "http://localhost:3000/json_art/a.svg" {
		t.Errorf("custom site: %s", got)
	}
}

func TestWriteMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metadata")
	if err := WriteMetadata(dir, []string{"package", "tsconfig", "launch"}, ""); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "json2"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{\n  \"image\": ") {
		t.Errorf("layout: %s", data)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Name != "launch" || m.Description != "Famous JSON 3 of 3" {
		t.Errorf("got %+v", m)
	}
}
