package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsearch/docsearch-mcp/internal/indexing"
	"github.com/docsearch/docsearch-mcp/internal/matcher"
)

const scenarioArtifact = `{"docs":[{"location":"a/#x","page":"A","title":"X","text":"hello world","category":"section"},{"location":"b/","page":"B","title":"","text":"hello there","category":"page"}]}`

func newMockDocSearch(t *testing.T, artifact string, backend string) (*DocSearch, *MockDataProvider) {
	t.Helper()
	provider := NewMockDataProvider()
	provider.AddFile(EmbeddedArtifact, []byte(artifact))

	ds := NewDocSearch(Options{Provider: provider, Backend: backend, CacheSize: 16})
	require.NoError(t, ds.Initialize(context.Background()))
	t.Cleanup(func() { ds.Close() })
	return ds, provider
}

func TestDocSearch_Scenario(t *testing.T) {
	for _, backend := range []string{BackendLinear, BackendBleve} {
		t.Run(backend, func(t *testing.T) {
			ds, _ := newMockDocSearch(t, scenarioArtifact, backend)

			results, err := ds.Search("hello", 0)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "a/#x", results[0].Fragment.Location)
			assert.Equal(t, "b/", results[1].Fragment.Location)

			none, err := ds.Search("zzz", 0)
			require.NoError(t, err)
			assert.Empty(t, none)

			empty, err := ds.Search("   ", 0)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestDocSearch_EmbeddedArtifact(t *testing.T) {
	for _, backend := range []string{BackendLinear, BackendBleve} {
		t.Run(backend, func(t *testing.T) {
			ds := NewDocSearch(Options{Backend: backend})
			require.NoError(t, ds.Initialize(context.Background()))
			defer ds.Close()

			info := ds.Info()
			assert.True(t, info.Loaded)
			assert.Equal(t, "embedded", info.Source)
			assert.Greater(t, info.Fragments, 0)

			results, err := ds.Search("Juliaup", 5)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "Juliaup", results[0].Fragment.Title)
			assert.LessOrEqual(t, len(results), 5)
		})
	}
}

func TestDocSearch_ReloadSkipsUnchanged(t *testing.T) {
	ds, provider := newMockDocSearch(t, scenarioArtifact, BackendLinear)
	before := ds.Info()

	updated, err := ds.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, before.LoadedAt, ds.Info().LoadedAt)

	updated, err = ds.Reload(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, updated, "forced reload always swaps")

	provider.AddFile(EmbeddedArtifact, []byte(`{"docs":[{"location":"c/","page":"C","title":"Hello","text":"","category":"section"}]}`))
	updated, err = ds.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, updated)

	info := ds.Info()
	assert.Equal(t, 1, info.Fragments)
	assert.NotEqual(t, before.Fingerprint, info.Fingerprint)

	results, err := ds.Search("hello", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c/", results[0].Fragment.Location)
}

func TestDocSearch_FailedReloadKeepsPreviousStore(t *testing.T) {
	ds, provider := newMockDocSearch(t, scenarioArtifact, BackendLinear)
	before := ds.Info()

	provider.AddFile(EmbeddedArtifact, []byte(`{"docs":[{"page":"no location"}]}`))
	updated, err := ds.Reload(context.Background(), false)
	require.Error(t, err)
	assert.False(t, updated)
	assert.True(t, errors.Is(err, indexing.ErrMalformedIndex))

	assert.Equal(t, before.Fingerprint, ds.Info().Fingerprint)
	results, err := ds.Search("hello", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestDocSearch_RefusesUnloadedStore(t *testing.T) {
	provider := NewMockDataProvider()
	provider.AddFile(EmbeddedArtifact, []byte(`{"documents":[]}`))
	ds := NewDocSearch(Options{Provider: provider})
	defer ds.Close()

	err := ds.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, indexing.ErrMalformedIndex))

	_, err = ds.Search("hello", 0)
	assert.True(t, errors.Is(err, matcher.ErrNoStore))

	_, _, err = ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "hello"})
	assert.Error(t, err)
	assert.False(t, ds.Info().Loaded)
}

func TestDocSearch_ArtifactPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search_index.js")
	require.NoError(t, os.WriteFile(path, []byte("var documenterSearchIndex = "+scenarioArtifact+";"), 0644))

	ds := NewDocSearch(Options{ArtifactPath: path})
	require.NoError(t, ds.Initialize(context.Background()))
	defer ds.Close()

	assert.Equal(t, "file "+path, ds.Info().Source)

	missing := NewDocSearch(Options{ArtifactPath: filepath.Join(t.TempDir(), "nope.js")})
	assert.Error(t, missing.Initialize(context.Background()))
}

func TestDocSearch_ReloadHonoursContext(t *testing.T) {
	ds, _ := newMockDocSearch(t, scenarioArtifact, BackendLinear)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ds.Reload(ctx, true)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearchDocumentationTool(t *testing.T) {
	provider := NewMockDataProvider()
	provider.AddFile(EmbeddedArtifact, []byte(scenarioArtifact))
	ds := NewDocSearch(Options{Provider: provider, BaseURL: "https://docs.example.org/dev/"})
	require.NoError(t, ds.Initialize(context.Background()))
	defer ds.Close()

	_, output, err := ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "hello", MaxResults: 1})
	require.NoError(t, err)

	assert.Equal(t, "hello", output.Query)
	assert.Equal(t, 2, output.TotalHits)
	assert.Equal(t, BackendLinear, output.Backend)
	require.Len(t, output.Results, 1)

	first := output.Results[0]
	assert.Equal(t, "a/#x", first.Location)
	assert.Equal(t, "A", first.Page)
	assert.Equal(t, "X", first.Title)
	assert.Equal(t, "section", first.Category)
	assert.Equal(t, "https://docs.example.org/dev/a/#x", first.URL)
	assert.Greater(t, first.Score, 0.0)

	_, empty, err := ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: ""})
	require.NoError(t, err)
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.Results)
	assert.Equal(t, 0, empty.TotalHits)
}

func TestSearchDocumentationTool_EmbeddedArtifact(t *testing.T) {
	for _, backend := range []string{BackendLinear, BackendBleve} {
		t.Run(backend, func(t *testing.T) {
			ds := NewDocSearch(Options{Backend: backend, BaseURL: "https://docs.example.org/dev"})
			defer ds.Close()

			// No Initialize: the first tool call loads the bundled artifact
			_, output, err := ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "juliaup update", MaxResults: maxResultsCap})
			require.NoError(t, err)
			require.NotEmpty(t, output.Results)

			var root *SearchResult
			for i := range output.Results {
				if output.Results[i].Location == "" {
					root = &output.Results[i]
					break
				}
			}
			require.NotNil(t, root, "site root fragment expected among results")
			assert.Equal(t, "My Julia Introduction", root.Page)
			assert.Equal(t, "https://docs.example.org/dev/", root.URL)

			_, partial, err := ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "Juliau"})
			require.NoError(t, err)
			require.NotEmpty(t, partial.Results)
			assert.Equal(t, "Juliaup", partial.Results[0].Title)
		})
	}
}

func TestSearchDocumentationTool_MaxResults(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"docs":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"location":"p%d/","page":"P","text":"julia notes","category":"page"}`, i)
	}
	b.WriteString(`]}`)
	ds, _ := newMockDocSearch(t, b.String(), BackendLinear)

	tests := []struct {
		name       string
		maxResults int
		want       int
	}{
		{name: "default", maxResults: 0, want: defaultMaxResults},
		{name: "explicit", maxResults: 3, want: 3},
		{name: "cap", maxResults: maxResultsCap, want: maxResultsCap},
		{name: "over cap falls back to default", maxResults: 50, want: defaultMaxResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, output, err := ds.SearchDocumentation(context.Background(), nil, SearchDocumentationInput{Query: "julia", MaxResults: tt.maxResults})
			require.NoError(t, err)
			assert.Len(t, output.Results, tt.want)
			assert.Equal(t, 30, output.TotalHits)
			assert.Equal(t, "p0/", output.Results[0].Location)
		})
	}
}

func TestReloadDocumentationIndexTool(t *testing.T) {
	ds, provider := newMockDocSearch(t, scenarioArtifact, BackendLinear)

	_, output, err := ds.ReloadDocumentationIndex(context.Background(), nil, ReloadDocumentationIndexInput{})
	require.NoError(t, err)
	assert.False(t, output.Updated)
	assert.Equal(t, 2, output.Fragments)
	assert.Contains(t, output.Message, "unchanged")

	provider.AddFile(EmbeddedArtifact, []byte(`{"docs":[{"location":"c/","page":"C"}]}`))
	_, output, err = ds.ReloadDocumentationIndex(context.Background(), nil, ReloadDocumentationIndexInput{})
	require.NoError(t, err)
	assert.True(t, output.Updated)
	assert.Equal(t, 1, output.Fragments)
	assert.NotEmpty(t, output.Fingerprint)
	assert.Contains(t, output.Message, "1 fragments")

	provider.AddFile(EmbeddedArtifact, []byte(`not json`))
	_, _, err = ds.ReloadDocumentationIndex(context.Background(), nil, ReloadDocumentationIndexInput{Force: true})
	assert.Error(t, err)
}

func TestDocumentationIndexInfoTool(t *testing.T) {
	ds, _ := newMockDocSearch(t, scenarioArtifact, BackendBleve)

	_, info, err := ds.DocumentationIndexInfo(context.Background(), nil, DocumentationIndexInfoInput{})
	require.NoError(t, err)
	assert.True(t, info.Loaded)
	assert.Equal(t, BackendBleve, info.Backend)
	assert.Equal(t, 2, info.Fragments)
	assert.Equal(t, "embedded", info.Source)
	assert.WithinDuration(t, time.Now(), info.LoadedAt, time.Minute)
}

// --- Pure Unit Tests for Concurrency ---
// These tests verify the atomic generation swap using mock searchers

func TestGenerationRetiredSearchIsSkipped(t *testing.T) {
	mock := newMockSearcher(1)
	gen := &generation{searcher: mock}

	require.NoError(t, gen.close())
	assert.True(t, mock.IsClosed())
	assert.NoError(t, gen.close(), "second close is a no-op")

	_, ok, err := gen.search("x", 0)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, int32(0), mock.searches.Load())
}

func TestIndexHolderConcurrentReads(t *testing.T) {
	mock := newMockSearcher(1)
	mock.results = []matcher.Result{{Position: 0, Score: 1}}

	ds := NewDocSearch(Options{Provider: NewMockDataProvider()})
	ds.holder.current.Store(&generation{searcher: mock, store: mustStore(t, scenarioArtifact)})

	const numReaders = 50
	var wg sync.WaitGroup
	errChan := make(chan error, numReaders)

	for i := 0; i < numReaders; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results, err := ds.Search("anything", 0)
			if err != nil {
				errChan <- fmt.Errorf("goroutine %d: search failed: %v", id, err)
				return
			}
			if len(results) != 1 {
				errChan <- fmt.Errorf("goroutine %d: expected 1 result, got %d", id, len(results))
			}
		}(i)
	}
	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Error(err)
	}
	assert.Equal(t, int32(numReaders), mock.searches.Load())
}

func TestIndexHolderRetiresOldSearcher(t *testing.T) {
	provider := NewMockDataProvider()
	provider.AddFile(EmbeddedArtifact, []byte(scenarioArtifact))
	ds := NewDocSearch(Options{Provider: provider})

	old := newMockSearcher(1)
	ds.holder.current.Store(&generation{searcher: old, store: mustStore(t, `{"docs":[]}`)})

	updated, err := ds.Reload(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, updated)

	// Close waits for retiring generations
	require.NoError(t, ds.Close())
	assert.True(t, old.IsClosed(), "replaced searcher should be closed")

	_, err = ds.Search("hello", 0)
	assert.True(t, errors.Is(err, matcher.ErrNoStore), "closed DocSearch serves nothing")
}

func TestIndexHolderSearchDuringReload(t *testing.T) {
	ds, provider := newMockDocSearch(t, scenarioArtifact, BackendLinear)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if _, err := ds.Search("hello", 0); err != nil {
					errChan <- err
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		provider.AddFile(EmbeddedArtifact, []byte(fmt.Sprintf(`{"docs":[{"location":"v%d/","page":"V","text":"hello"}]}`, i)))
		_, err := ds.Reload(context.Background(), false)
		require.NoError(t, err)
	}
	cancel()
	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("search failed during reload: %v", err)
	}
}

func TestDocSearch_CloseDuringReloads(t *testing.T) {
	ds, _ := newMockDocSearch(t, scenarioArtifact, BackendLinear)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := ds.Reload(context.Background(), true); err != nil {
					t.Errorf("reload failed: %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, ds.Close())
	}
	wg.Wait()

	require.NoError(t, ds.Close())
	assert.False(t, ds.Info().Loaded)
	_, err := ds.Search("hello", 0)
	assert.True(t, errors.Is(err, matcher.ErrNoStore))
}

func TestFragmentURL(t *testing.T) {
	tests := []struct {
		base     string
		location string
		want     string
	}{
		{"", "a/#x", ""},
		{"https://example.org/docs", "a/#x", "https://example.org/docs/a/#x"},
		{"https://example.org/docs/", "/a/", "https://example.org/docs/a/"},
		{"https://example.org/docs", "", "https://example.org/docs/"},
	}

	for _, tt := range tests {
		ds := NewDocSearch(Options{BaseURL: tt.base})
		assert.Equal(t, tt.want, ds.fragmentURL(tt.location))
	}
}

func mustStore(t *testing.T, artifact string) *indexing.Store {
	t.Helper()
	store, err := indexing.Load([]byte(artifact))
	require.NoError(t, err)
	return store
}
