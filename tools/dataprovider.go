package tools

// DataProvider gives access to data files bundled with the binary.
// This abstraction allows tests to inject artifacts without embedded files.
//
// Implementations:
//   - embeddedDataProvider: Uses embed.FS for production (real embedded files)
//   - MockDataProvider: Uses in-memory map for testing
type DataProvider interface {
	// ReadFile reads the named file and returns its contents.
	// The name is relative to the data root (e.g., "data/search_index.js").
	ReadFile(name string) ([]byte, error)
}
