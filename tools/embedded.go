package tools

import "embed"

// EmbeddedArtifact is the bundled search index artifact, used when no
// artifact path is configured.
const EmbeddedArtifact = "data/search_index.js"

//go:embed data/search_index.js
var embeddedFS embed.FS

// embeddedDataProvider implements DataProvider using embed.FS.
type embeddedDataProvider struct {
	fs embed.FS
}

// NewEmbeddedDataProvider creates a production DataProvider that uses embedded files.
func NewEmbeddedDataProvider() DataProvider {
	return &embeddedDataProvider{fs: embeddedFS}
}

// ReadFile reads the named file from the embedded filesystem.
func (p *embeddedDataProvider) ReadFile(name string) ([]byte, error) {
	return p.fs.ReadFile(name)
}
