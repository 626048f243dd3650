package indexing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// artifact is the top-level wire shape: {"docs": [...]}
type artifact struct {
	Docs []Fragment `json:"docs"`
}

// Load parses a generated search index artifact into an immutable Store.
// The artifact may be bare JSON or the generator's JavaScript assignment
// ("var documenterSearchIndex = {...}"). Shape violations wrap ErrMalformedIndex.
func Load(raw []byte) (*Store, error) {
	payload := stripAssignment(raw)
	if len(payload) == 0 {
		return nil, &MalformedIndexError{Path: "$", Reason: "empty artifact"}
	}

	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, &MalformedIndexError{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := validateShape(doc); err != nil {
		return nil, err
	}

	var parsed artifact
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, &MalformedIndexError{Path: "$." + DocsField, Reason: err.Error()}
	}

	for i := range parsed.Docs {
		fragment := &parsed.Docs[i]
		if fragment.Category == "" {
			fragment.Category = inferCategory(*fragment)
		}
		if !fragment.Category.Valid() {
			return nil, &MalformedIndexError{
				Path:   "$." + DocsField + "." + strconv.Itoa(i) + ".category",
				Reason: fmt.Sprintf("unknown category %q", fragment.Category),
			}
		}
	}

	return newStore(parsed.Docs, Fingerprint(raw)), nil
}

// LoadFile reads an artifact from disk and loads it
func LoadFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index artifact: %w", err)
	}
	return Load(raw)
}

// Fingerprint identifies an artifact by content
func Fingerprint(raw []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

// stripAssignment removes a leading "var name =" and trailing ';' if present
func stripAssignment(raw []byte) []byte {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 || payload[0] == '{' || payload[0] == '[' {
		return payload
	}

	eq := bytes.IndexByte(payload, '=')
	if eq < 0 {
		return payload
	}
	payload = bytes.TrimSpace(payload[eq+1:])
	payload = bytes.TrimSuffix(payload, []byte(";"))
	return bytes.TrimSpace(payload)
}

// inferCategory treats text-less records as heading anchors
func inferCategory(f Fragment) Category {
	if f.Text == "" {
		return CategorySection
	}
	return CategoryPage
}
