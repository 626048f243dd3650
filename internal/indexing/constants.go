package indexing

const (
	// DocsField is the top-level artifact field holding the fragment list
	DocsField = "docs"

	// IndexSchemaVersion increments when the persisted bleve document layout changes
	// v1: location/page/title/text/category documents keyed by artifact position
	// v2: page/title/text stored normalized (lowercase, accents folded)
	IndexSchemaVersion = 2

	// artifactSchemaURL identifies the embedded JSON Schema in the compiler
	artifactSchemaURL = "https://docsearch.local/schema/search-index.json"
)
