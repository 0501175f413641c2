// Package gallery serves the static FamousJSONs collection: the manifest of
// artifact names, each artifact's JSON document and SVG artwork, search, and
// the OpenSea-style token metadata files.
//
// Layout of the collection directory:
//
//	jsons.txt              one artifact name per line; line index = token id
//	json_json/<name>.json  the famous JSON document
//	json_art/<name>.svg    the rendered mosaic
package gallery

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

// ManifestFile is the default manifest path inside the collection.
const ManifestFile = "jsons.txt"

var (
	// ErrUnknownArtifact is returned for names not in the manifest.
	ErrUnknownArtifact = errors.New("gallery: unknown artifact")
	// ErrEmptyManifest is returned when the manifest lists no names.
	ErrEmptyManifest = errors.New("gallery: empty manifest")
)

// Item is one artifact of the collection.
type Item struct {
	Name    string `json:"name"`
	TokenID int    `json:"token_id"`
	JSON    string `json:"json"`
	Minted  bool   `json:"minted"`
}

// Gallery is the loaded collection. It is read-only after Load.
type Gallery struct {
	fsys   fs.FS
	items  []Item
	byName map[string]int
}

// LoadManifest reads the artifact names listed in file. The line index is
// the token id, so blank lines are only tolerated before the first and after
// the last name; a blank line between names is an error, as are duplicates.
// Surrounding whitespace on each line is ignored.
func LoadManifest(fsys fs.FS, file string) ([]string, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return nil, fmt.Errorf("gallery: open manifest: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gallery: read manifest: %w", err)
	}
	first := slices.IndexFunc(lines, func(l string) bool { return l != "" })
	if first < 0 {
		return nil, ErrEmptyManifest
	}
	last := len(lines) - 1
	for lines[last] == "" {
		last--
	}

	names := make([]string, 0, last-first+1)
	seen := make(map[string]bool)
	for i, name := range lines[first : last+1] {
		lineNo := first + i + 1
		switch {
		case name == "":
			return nil, fmt.Errorf("gallery: manifest line %d: blank line would shift token ids", lineNo)
		case !validName(name):
			return nil, fmt.Errorf("gallery: manifest line %d: invalid name %q", lineNo, name)
		case seen[name]:
			return nil, fmt.Errorf("gallery: manifest: duplicate name %q", name)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// validName rejects names that would escape their directory.
func validName(name string) bool {
	return fs.ValidPath(name) && !strings.Contains(name, "/")
}

// Load reads the manifest and every artifact's JSON document.
func Load(fsys fs.FS) (*Gallery, error) {
	names, err := LoadManifest(fsys, ManifestFile)
	if err != nil {
		return nil, err
	}
	g := &Gallery{
		fsys:   fsys,
		items:  make([]Item, len(names)),
		byName: make(map[string]int, len(names)),
	}
	for i, name := range names {
		doc, err := fs.ReadFile(fsys, path.Join("json_json", name+".json"))
		if err != nil {
			return nil, fmt.Errorf("gallery: read %s: %w", name, err)
		}
		g.items[i] = Item{Name: name, TokenID: i, JSON: string(doc)}
		g.byName[name] = i
	}
	return g, nil
}

// Len returns the number of artifacts.
func (g *Gallery) Len() int { return len(g.items) }

// Names returns the artifact names in token-id order.
func (g *Gallery) Names() []string {
	out := make([]string, len(g.items))
	for i, it := range g.items {
		out[i] = it.Name
	}
	return out
}

// Items returns a copy of all artifacts in token-id order.
func (g *Gallery) Items() []Item {
	return slices.Clone(g.items)
}

// Lookup finds an artifact by name or by decimal token id.
func (g *Gallery) Lookup(key string) (Item, error) {
	if i, ok := g.byName[key]; ok {
		return g.items[i], nil
	}
	if id, err := strconv.Atoi(key); err == nil && id >= 0 && id < len(g.items) {
		return g.items[id], nil
	}
	return Item{}, fmt.Errorf("%w: %q", ErrUnknownArtifact, key)
}

// Search returns the artifacts whose name or JSON contains term,
// case-insensitively. An empty term matches everything.
func (g *Gallery) Search(term string) []Item {
	return Search(g.items, term)
}

// Search filters items by a case-insensitive substring of name or JSON.
func Search(items []Item, term string) []Item {
	term = strings.ToLower(term)
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Name), term) || strings.Contains(strings.ToLower(it.JSON), term) {
			out = append(out, it)
		}
	}
	return out
}

// Artwork returns the SVG artwork of a manifest artifact.
func (g *Gallery) Artwork(name string) ([]byte, error) {
	if _, ok := g.byName[name]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownArtifact, name)
	}
	data, err := fs.ReadFile(g.fsys, path.Join("json_art", name+".svg"))
	if err != nil {
		return nil, fmt.Errorf("gallery: artwork %s: %w", name, err)
	}
	return data, nil
}

// MarkMinted returns a copy of items with Minted set from the decimal token
// ids in minted.
func MarkMinted(items []Item, minted []string) []Item {
	set := make(map[string]bool, len(minted))
	for _, id := range minted {
		set[id] = true
	}
	out := slices.Clone(items)
	for i := range out {
		out[i].Minted = set[strconv.Itoa(out[i].TokenID)]
	}
	return out
}
