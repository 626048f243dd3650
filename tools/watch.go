package tools

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher reloads the search index when a documentation build
// rewrites the artifact file. Bursts of events are debounced into one reload.
type ArtifactWatcher struct {
	path     string
	debounce time.Duration
	reload   func(ctx context.Context) error
}

// NewArtifactWatcher watches path and calls reload after debounce of quiet
func NewArtifactWatcher(path string, debounce time.Duration, reload func(ctx context.Context) error) *ArtifactWatcher {
	return &ArtifactWatcher{path: path, debounce: debounce, reload: reload}
}

// Run watches until ctx is cancelled. The parent directory is watched because
// generators usually replace the file rather than write it in place.
func (w *ArtifactWatcher) Run(ctx context.Context) error {
	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	log.Printf("✓ Watching %s for documentation rebuilds", absPath)

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: Artifact watcher error: %v", err)

		case <-fire:
			if err := w.reload(ctx); err != nil {
				log.Printf("Warning: Reload after artifact change failed, keeping previous index: %v", err)
			}
		}
	}
}
