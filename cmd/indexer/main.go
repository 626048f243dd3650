package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/docsearch/docsearch-mcp/internal/indexing"
	"github.com/docsearch/docsearch-mcp/tools"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <artifact> <index-dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s build/search_index.js search/index\n", os.Args[0])
		os.Exit(1)
	}

	artifact := os.Args[1]
	indexDir := os.Args[2]

	log.Printf("Documentation Indexer v%d", indexing.IndexSchemaVersion)
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Step 1: Load the artifact
	log.Printf("Loading search index artifact: %s", artifact)
	store, err := indexing.LoadFile(artifact)
	if err != nil {
		log.Fatalf("Failed to load artifact: %v", err)
	}

	sections, pages := 0, 0
	for _, f := range store.All() {
		if f.Category == indexing.CategorySection {
			sections++
		} else {
			pages++
		}
	}
	log.Printf("✓ Loaded %d fragments (%d sections, %d pages)", store.Len(), sections, pages)

	// Step 2: Build the persisted index
	log.Printf("Creating search index: %s", indexDir)
	start := time.Now()
	if err := tools.BuildPersistentIndex(store, indexDir); err != nil {
		log.Fatalf("Failed to build index: %v", err)
	}

	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Printf("✓ Indexing complete!")
	log.Printf("")
	log.Printf("Index details:")
	log.Printf("  Location:     %s", indexDir)
	log.Printf("  Fragments:    %d", store.Len())
	log.Printf("  Fingerprint:  %s", store.Fingerprint())
	log.Printf("  Schema:       v%d", indexing.IndexSchemaVersion)
	log.Printf("  Took:         %v", time.Since(start).Round(time.Millisecond))
}
