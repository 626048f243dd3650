package indexing

import "strings"

// Category marks whether a fragment is a heading anchor or a prose block.
type Category string

const (
	CategorySection Category = "section"
	CategoryPage    Category = "page"
)

// Valid reports whether c is one of the known category tags.
func (c Category) Valid() bool {
	return c == CategorySection || c == CategoryPage
}

// Fragment is one indexed unit of documentation content
type Fragment struct {
	Location string   `json:"location"`        // Page URL fragment, optionally "page/#anchor"; "" is the site root
	Page     string   `json:"page"`            // Human-readable page name
	Title    string   `json:"title,omitempty"` // Section or page title
	Text     string   `json:"text,omitempty"`  // Indexed prose
	Category Category `json:"category"`
}

// Path returns the location without its anchor.
func (f Fragment) Path() string {
	path, _, _ := strings.Cut(f.Location, "#")
	return path
}

// Anchor returns the part of the location after '#', or "" when there is none.
func (f Fragment) Anchor() string {
	_, anchor, _ := strings.Cut(f.Location, "#")
	return anchor
}
