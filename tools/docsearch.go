package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docsearch/docsearch-mcp/internal/indexing"
	"github.com/docsearch/docsearch-mcp/internal/matcher"
)

const (
	defaultMaxResults = 10
	maxResultsCap     = 20
)

// Options configures a DocSearch
type Options struct {
	// ArtifactPath is read on every reload; empty uses Provider
	ArtifactPath string

	// Provider supplies the bundled artifact; nil means the embedded one
	Provider DataProvider

	// Backend is BackendLinear (default) or BackendBleve
	Backend string

	// IndexDir persists the bleve index; empty keeps it in memory
	IndexDir string

	// BaseURL is prefixed to fragment locations in tool output
	BaseURL string

	MaxResults int
	CacheSize  int
}

// generation is one loaded artifact and the searcher built over it
type generation struct {
	store    *indexing.Store
	searcher Searcher
	source   string
	loadedAt time.Time

	// mu is held shared by searches and exclusively while closing
	mu     sync.RWMutex
	closed bool
}

// search runs on this generation unless it was already retired
func (g *generation) search(q string, limit int) ([]matcher.Result, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, false, nil
	}
	results, err := g.searcher.Search(q, limit)
	return results, true, err
}

// close waits for in-flight searches, then releases the searcher
func (g *generation) close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	return g.searcher.Close()
}

// indexHolder manages concurrent access to the active generation
type indexHolder struct {
	// current holds the active generation (atomic access for lock-free reads)
	current atomic.Pointer[generation]

	// refreshMu serializes reloads; searches never take it
	refreshMu sync.Mutex
}

// DocSearch owns the loaded documentation store and serves searches over it.
// The store is replaced wholesale on reload, never patched.
type DocSearch struct {
	opts     Options
	holder   indexHolder
	retiring sync.WaitGroup
}

// NewDocSearch creates an unloaded DocSearch; call Initialize before searching
func NewDocSearch(opts Options) *DocSearch {
	if opts.Provider == nil {
		opts.Provider = NewEmbeddedDataProvider()
	}
	if opts.Backend == "" {
		opts.Backend = BackendLinear
	}
	if opts.MaxResults <= 0 || opts.MaxResults > maxResultsCap {
		opts.MaxResults = defaultMaxResults
	}
	return &DocSearch{opts: opts}
}

// Initialize performs the first load
func (d *DocSearch) Initialize(ctx context.Context) error {
	startTime := time.Now()
	log.Printf("Initializing documentation search...")

	if _, err := d.Reload(ctx, true); err != nil {
		return err
	}

	gen := d.holder.current.Load()
	log.Printf("✓ Documentation search initialized (%d fragments, %s backend, %s) in %v",
		gen.store.Len(), d.opts.Backend, gen.source, time.Since(startTime).Round(time.Millisecond))
	return nil
}

// Reload re-reads the artifact and swaps in a new store. Unless force is set,
// an artifact with an unchanged fingerprint is skipped. On failure the
// previous store stays active.
func (d *DocSearch) Reload(ctx context.Context, force bool) (bool, error) {
	d.holder.refreshMu.Lock()
	defer d.holder.refreshMu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	raw, source, err := d.readArtifact()
	if err != nil {
		return false, err
	}

	current := d.holder.current.Load()
	if !force && current != nil && current.store.Fingerprint() == indexing.Fingerprint(raw) {
		log.Printf("Search index unchanged (%s), skipping reload", current.store.Fingerprint())
		return false, nil
	}

	parseStart := time.Now()
	store, err := indexing.Load(raw)
	if err != nil {
		return false, fmt.Errorf("failed to load search index from %s: %w", source, err)
	}
	log.Printf("Parsed %d fragments in %v", store.Len(), time.Since(parseStart).Round(time.Millisecond))

	searcher, err := d.newSearcher(store)
	if err != nil {
		return false, fmt.Errorf("failed to build %s searcher: %w", d.opts.Backend, err)
	}

	gen := &generation{
		store:    store,
		searcher: NewCachingSearcher(searcher, d.opts.CacheSize),
		source:   source,
		loadedAt: time.Now(),
	}

	// ATOMIC SWAP: searches started from here on use the new generation
	old := d.holder.current.Swap(gen)
	if old != nil {
		d.retiring.Add(1)
		go d.retire(old)
	}

	log.Printf("✓ Search index loaded (%d fragments, fingerprint %s)", store.Len(), store.Fingerprint())
	return true, nil
}

// retire closes a replaced generation once in-flight searches are done
func (d *DocSearch) retire(old *generation) {
	defer d.retiring.Done()

	if err := old.close(); err != nil {
		log.Printf("Warning: Error closing old searcher: %v", err)
	}
}

func (d *DocSearch) readArtifact() ([]byte, string, error) {
	if d.opts.ArtifactPath != "" {
		raw, err := os.ReadFile(d.opts.ArtifactPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read search index artifact: %w", err)
		}
		return raw, "file " + d.opts.ArtifactPath, nil
	}

	raw, err := d.opts.Provider.ReadFile(EmbeddedArtifact)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read embedded search index: %w", err)
	}
	return raw, "embedded", nil
}

func (d *DocSearch) newSearcher(store *indexing.Store) (Searcher, error) {
	switch d.opts.Backend {
	case BackendLinear:
		return NewLinearSearcher(store), nil
	case BackendBleve:
		if d.opts.IndexDir != "" {
			return OpenPersistentSearcher(store, d.opts.IndexDir)
		}
		return NewMemSearcher(store)
	default:
		return nil, fmt.Errorf("unknown backend %q", d.opts.Backend)
	}
}

// Search runs query against the active store. limit <= 0 returns every match.
func (d *DocSearch) Search(query string, limit int) ([]matcher.Result, error) {
	for {
		gen := d.holder.current.Load()
		if gen == nil {
			return nil, matcher.ErrNoStore
		}
		if results, ok, err := gen.search(query, limit); ok {
			return results, err
		}
		// Retired between Load and search; its replacement is already current
	}
}

// IndexInfo describes the active store
type IndexInfo struct {
	Loaded      bool      `json:"loaded"`
	Backend     string    `json:"backend"`
	Source      string    `json:"source,omitempty"`
	Fragments   int       `json:"fragments"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	LoadedAt    time.Time `json:"loaded_at,omitempty"`
}

// Info reports on the active store
func (d *DocSearch) Info() IndexInfo {
	info := IndexInfo{Backend: d.opts.Backend}
	gen := d.holder.current.Load()
	if gen == nil {
		return info
	}

	info.Loaded = true
	info.Source = gen.source
	info.Fragments = gen.store.Len()
	info.Fingerprint = gen.store.Fingerprint()
	info.LoadedAt = gen.loadedAt
	return info
}

// Close stops serving searches and releases backend resources.
// It waits for a reload in progress so no retirement starts after the wait.
func (d *DocSearch) Close() error {
	d.holder.refreshMu.Lock()
	defer d.holder.refreshMu.Unlock()

	var closeErr error

	gen := d.holder.current.Swap(nil)
	if gen != nil {
		closeErr = gen.close()
		if closeErr != nil {
			log.Printf("Error closing doc search: %v", closeErr)
		} else {
			log.Printf("✓ Doc search closed")
		}
	}

	d.retiring.Wait()
	return closeErr
}

// fragmentURL joins the configured base URL and a fragment location
func (d *DocSearch) fragmentURL(location string) string {
	if d.opts.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(d.opts.BaseURL, "/") + "/" + strings.TrimLeft(location, "/")
}

// SearchResult is one ranked fragment in tool output
type SearchResult struct {
	Location string  `json:"location"`
	Page     string  `json:"page"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Category string  `json:"category"`
	URL      string  `json:"url,omitempty"`
	Score    float64 `json:"score"`
}

// SearchDocumentationInput defines input for search_documentation tool
type SearchDocumentationInput struct {
	Query      string `json:"query" jsonschema:"Search query for documentation"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Maximum number of results (optional, defaults to 10, at most 20)"`
}

// SearchDocumentationOutput defines output for search_documentation tool
type SearchDocumentationOutput struct {
	Results   []SearchResult `json:"results"`
	Query     string         `json:"query"`
	TotalHits int            `json:"total_hits"`
	Backend   string         `json:"backend"`
}

// ReloadDocumentationIndexInput defines input for reload_documentation_index tool
type ReloadDocumentationIndexInput struct {
	Force bool `json:"force,omitempty" jsonschema:"Reload even if the artifact is unchanged (optional, defaults to false)"`
}

// ReloadDocumentationIndexOutput defines output for reload_documentation_index tool
type ReloadDocumentationIndexOutput struct {
	Updated     bool      `json:"updated"`
	Fragments   int       `json:"fragments"`
	Fingerprint string    `json:"fingerprint"`
	LastUpdate  time.Time `json:"last_update"`
	Message     string    `json:"message"`
}

// DocumentationIndexInfoInput defines input for documentation_index_info tool
type DocumentationIndexInfoInput struct{}

// SearchDocumentation searches the loaded documentation fragments
func (d *DocSearch) SearchDocumentation(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentationInput) (*mcp.CallToolResult, SearchDocumentationOutput, error) {
	output := SearchDocumentationOutput{
		Results: []SearchResult{},
		Query:   input.Query,
		Backend: d.opts.Backend,
	}

	// If the index never loaded, try once more before refusing
	if d.holder.current.Load() == nil {
		log.Printf("Doc index not initialized, initializing now...")
		if err := d.Initialize(ctx); err != nil {
			return nil, output, fmt.Errorf("failed to initialize documentation index: %w", err)
		}
	}

	maxResults := input.MaxResults
	if maxResults <= 0 || maxResults > maxResultsCap {
		maxResults = d.opts.MaxResults
	}

	all, err := d.Search(input.Query, 0)
	if err != nil {
		if errors.Is(err, matcher.ErrNoStore) {
			return nil, output, fmt.Errorf("documentation index unavailable: %w", err)
		}
		return nil, output, fmt.Errorf("search failed: %w", err)
	}

	output.TotalHits = len(all)
	for _, r := range matcher.Limit(all, maxResults) {
		output.Results = append(output.Results, SearchResult{
			Location: r.Fragment.Location,
			Page:     r.Fragment.Page,
			Title:    r.Fragment.Title,
			Text:     r.Fragment.Text,
			Category: string(r.Fragment.Category),
			URL:      d.fragmentURL(r.Fragment.Location),
			Score:    r.Score,
		})
	}

	return nil, output, nil
}

// ReloadDocumentationIndex re-reads the search index artifact
func (d *DocSearch) ReloadDocumentationIndex(ctx context.Context, req *mcp.CallToolRequest, input ReloadDocumentationIndexInput) (*mcp.CallToolResult, ReloadDocumentationIndexOutput, error) {
	output := ReloadDocumentationIndexOutput{}

	updated, err := d.Reload(ctx, input.Force)
	if err != nil {
		return nil, output, fmt.Errorf("reload failed: %w", err)
	}

	info := d.Info()
	output.Updated = updated
	output.Fragments = info.Fragments
	output.Fingerprint = info.Fingerprint
	output.LastUpdate = info.LoadedAt
	if updated {
		output.Message = fmt.Sprintf("Documentation reloaded successfully, %d fragments indexed", info.Fragments)
	} else {
		output.Message = fmt.Sprintf("Documentation unchanged (loaded: %s)", info.LoadedAt.Format(time.RFC3339))
	}

	return nil, output, nil
}

// DocumentationIndexInfo reports on the loaded index
func (d *DocSearch) DocumentationIndexInfo(ctx context.Context, req *mcp.CallToolRequest, input DocumentationIndexInfoInput) (*mcp.CallToolResult, IndexInfo, error) {
	return nil, d.Info(), nil
}

// RegisterDocSearchTools registers documentation search tools
func (d *DocSearch) RegisterDocSearchTools(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "search_documentation",
			Description: "Search the documentation fragments (page, section title, text). Returns ranked fragments with their locations.",
		},
		d.SearchDocumentation,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "reload_documentation_index",
			Description: "Reload the documentation search index artifact after a new documentation build",
		},
		d.ReloadDocumentationIndex,
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "documentation_index_info",
			Description: "Show which documentation search index is loaded: source, fragment count, fingerprint and backend",
		},
		d.DocumentationIndexInfo,
	)
}
