package tools

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/docsearch/docsearch-mcp/internal/indexing"
	"github.com/docsearch/docsearch-mcp/internal/matcher"
)

// Backend names
const (
	BackendLinear = "linear"
	BackendBleve  = "bleve"
)

const (
	indexBatchSize = 100

	// fragmentAnalyzer keeps stop words so every matcher token has an index term
	fragmentAnalyzer = "fragment"
)

// indexedFields are the bleve document fields queried for candidates
var indexedFields = []string{"title", "text", "page"}

// Searcher answers queries against one loaded store.
// Implementations must be safe for concurrent Search calls.
type Searcher interface {
	// Search returns up to limit ranked results; limit <= 0 means all
	Search(query string, limit int) ([]matcher.Result, error)

	// DocCount returns the number of indexed fragments
	DocCount() (uint64, error)

	// Close releases backend resources
	Close() error
}

// linearSearcher scans the store with the matcher
type linearSearcher struct {
	store *indexing.Store
}

// NewLinearSearcher returns a Searcher that scans store on every query
func NewLinearSearcher(store *indexing.Store) Searcher {
	return &linearSearcher{store: store}
}

func (s *linearSearcher) Search(q string, limit int) ([]matcher.Result, error) {
	results, err := matcher.SearchStore(q, s.store)
	if err != nil {
		return nil, err
	}
	return matcher.Limit(results, limit), nil
}

func (s *linearSearcher) DocCount() (uint64, error) {
	if s.store == nil {
		return 0, matcher.ErrNoStore
	}
	return uint64(s.store.Len()), nil
}

func (s *linearSearcher) Close() error {
	return nil
}

// bleveSearcher uses a bleve index of the store to find candidate fragments,
// then ranks them with the matcher so both backends order results the same.
// Document IDs are artifact positions so hits map back to store fragments.
type bleveSearcher struct {
	index bleve.Index
	store *indexing.Store
}

// bleveDocument is the indexed form of a fragment, normalized like queries
type bleveDocument struct {
	Location string `json:"location"`
	Page     string `json:"page"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(fragmentAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = fragmentAnalyzer
	return indexMapping, nil
}

// NewMemSearcher builds an in-memory bleve index of store
func NewMemSearcher(store *indexing.Store) (Searcher, error) {
	indexMapping, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}
	if err := indexFragments(index, store); err != nil {
		index.Close()
		return nil, err
	}
	return &bleveSearcher{index: index, store: store}, nil
}

// OpenPersistentSearcher opens the index under indexDir if it was built from
// the same artifact and schema version, and rebuilds it otherwise.
func OpenPersistentSearcher(store *indexing.Store, indexDir string) (Searcher, error) {
	lock := newIndexLock(indexDir)
	if err := lock.acquire(); err != nil {
		return nil, fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer func() {
		if err := lock.release(); err != nil {
			log.Printf("Error releasing lock: %v", err)
		}
	}()

	if readIndexVersion(indexDir) == indexVersion(store) {
		openStart := time.Now()
		index, err := openReadOnly(indexDir)
		if err == nil {
			log.Printf("✓ Opened persisted index %s in %v", indexDir, time.Since(openStart).Round(time.Millisecond))
			return &bleveSearcher{index: index, store: store}, nil
		}
		log.Printf("Warning: Persisted index corrupted (%v), rebuilding...", err)
	} else {
		log.Printf("Persisted index missing or stale, rebuilding...")
	}

	if err := buildPersistentIndex(store, indexDir); err != nil {
		return nil, err
	}

	index, err := openReadOnly(indexDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open new index: %w", err)
	}
	return &bleveSearcher{index: index, store: store}, nil
}

// openReadOnly opens a built index with a shared lock, so a reload can open the
// same directory while the previous generation still serves from it
func openReadOnly(indexDir string) (bleve.Index, error) {
	return bleve.OpenUsing(indexDir, map[string]interface{}{"read_only": true})
}

// BuildPersistentIndex writes a bleve index of store to indexDir, replacing any existing one
func BuildPersistentIndex(store *indexing.Store, indexDir string) error {
	lock := newIndexLock(indexDir)
	if err := lock.acquire(); err != nil {
		return fmt.Errorf("failed to acquire index lock: %w", err)
	}
	defer lock.release()

	return buildPersistentIndex(store, indexDir)
}

// buildPersistentIndex builds into a temp directory and renames it into place
func buildPersistentIndex(store *indexing.Store, indexDir string) error {
	startTime := time.Now()
	tempIndexPath := indexDir + ".tmp"

	// Leftover from a crashed build
	os.RemoveAll(tempIndexPath)

	if err := os.MkdirAll(filepath.Dir(tempIndexPath), 0755); err != nil {
		return fmt.Errorf("failed to create temp index directory: %w", err)
	}

	indexMapping, err := newIndexMapping()
	if err != nil {
		return err
	}
	newIndex, err := bleve.New(tempIndexPath, indexMapping)
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}

	if err := indexFragments(newIndex, store); err != nil {
		newIndex.Close()
		os.RemoveAll(tempIndexPath)
		return err
	}

	if err := newIndex.Close(); err != nil {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to close temp index: %w", err)
	}

	if err := os.RemoveAll(indexDir); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tempIndexPath, indexDir); err != nil {
		os.RemoveAll(tempIndexPath)
		return fmt.Errorf("failed to rename temp index: %w", err)
	}

	if err := writeIndexVersion(indexDir, indexVersion(store)); err != nil {
		log.Printf("Warning: Failed to write index version: %v", err)
	}

	log.Printf("✓ Built persisted index with %d fragments in %v", store.Len(), time.Since(startTime).Round(time.Millisecond))
	return nil
}

// indexFragments adds every fragment of store to index in batches
func indexFragments(index bleve.Index, store *indexing.Store) error {
	batch := index.NewBatch()
	for i, f := range store.All() {
		doc := bleveDocument{
			Location: f.Location,
			Page:     indexing.Normalize(f.Page),
			Title:    indexing.Normalize(f.Title),
			Text:     indexing.Normalize(f.Text),
			Category: string(f.Category),
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			return fmt.Errorf("failed to add fragment %d to batch: %w", i, err)
		}

		if batch.Size() >= indexBatchSize {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return nil
}

func (s *bleveSearcher) Search(q string, limit int) ([]matcher.Result, error) {
	mq := matcher.NewQuery(q)
	tokens := mq.Tokens()
	if mq.Empty() || len(tokens) == 0 {
		return []matcher.Result{}, nil
	}

	// Any field term containing a query token is a candidate; tokens are
	// letter and digit runs, so they need no wildcard escaping
	queries := make([]query.Query, 0, len(tokens)*len(indexedFields))
	for _, token := range tokens {
		for _, field := range indexedFields {
			wq := bleve.NewWildcardQuery("*" + token + "*")
			wq.SetField(field)
			queries = append(queries, wq)
		}
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = s.store.Len()
	searchResults, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	positions := make([]int, 0, len(searchResults.Hits))
	for _, hit := range searchResults.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil || pos < 0 || pos >= s.store.Len() {
			log.Printf("Warning: Index hit %q does not map to a fragment, skipping", hit.ID)
			continue
		}
		positions = append(positions, pos)
	}

	return matcher.Limit(matcher.Rank(mq, s.store, slices.Values(positions)), limit), nil
}

func (s *bleveSearcher) DocCount() (uint64, error) {
	return s.index.DocCount()
}

func (s *bleveSearcher) Close() error {
	return s.index.Close()
}

// indexVersion ties a persisted index to the schema version and artifact content
func indexVersion(store *indexing.Store) string {
	return fmt.Sprintf("v%d %s", indexing.IndexSchemaVersion, store.Fingerprint())
}

// versionPath sits beside the index directory so rebuilds never remove it mid-swap
func versionPath(indexDir string) string {
	return filepath.Clean(indexDir) + ".version"
}

func readIndexVersion(indexDir string) string {
	data, err := os.ReadFile(versionPath(indexDir))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeIndexVersion(indexDir, version string) error {
	return os.WriteFile(versionPath(indexDir), []byte(version), 0644)
}
