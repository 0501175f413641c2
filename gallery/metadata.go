package gallery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSiteURL is the public site the metadata links point to.
const DefaultSiteURL = "https://famousjsons.com"

// Metadata is the per-token document marketplaces fetch from the contract's
// token URI.
type Metadata struct {
	Image           string `json:"image"`
	ExternalURL     string `json:"external_url"`
	BackgroundColor string `json:"background_color"`
	Name            string `json:"name"`
	Description     string `json:"description"`
}

// BuildMetadata returns one Metadata per name, in token-id order.
func BuildMetadata(names []string, siteURL string) []Metadata {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	siteURL = strings.TrimRight(siteURL, "/")
	out := make([]Metadata, len(names))
	for i, name := range names {
		out[i] = Metadata{
			Image:           siteURL + "/json_art/" + url.PathEscape(name) + ".svg",
			ExternalURL:     siteURL + "?s=" + url.QueryEscape(name),
			BackgroundColor: "242424",
			Name:            name,
			Description:     fmt.Sprintf("Famous JSON %d of %d", i+1, len(names)),
		}
	}
	return out
}

// Encode renders m the way the metadata files are stored: two-space
// indentation, no HTML escaping.
func (m Metadata) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteMetadata writes json0, json1, ... into dir, creating it if needed.
func WriteMetadata(dir string, names []string, siteURL string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("gallery: metadata dir: %w", err)
	}
	for i, m := range BuildMetadata(names, siteURL) {
		data, err := m.Encode()
		if err != nil {
			return fmt.Errorf("gallery: encode metadata %s: %w", m.Name, err)
		}
		file := filepath.Join(dir, fmt.Sprintf("json%d", i))
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return fmt.Errorf("gallery: write %s: %w", file, err)
		}
	}
	return nil
}
