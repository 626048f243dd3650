package indexing

import (
	"iter"
	"slices"
)

// Store is the ordered, read-only collection of fragments from one artifact.
// It is safe for concurrent use because nothing mutates it after Load.
type Store struct {
	fragments   []Fragment
	fingerprint string
}

func newStore(fragments []Fragment, fingerprint string) *Store {
	if fragments == nil {
		fragments = []Fragment{}
	}
	return &Store{fragments: fragments, fingerprint: fingerprint}
}

// Len returns the number of fragments
func (s *Store) Len() int {
	return len(s.fragments)
}

// At returns the fragment at artifact position i
func (s *Store) At(i int) Fragment {
	return s.fragments[i]
}

// All iterates fragments in artifact order
func (s *Store) All() iter.Seq2[int, Fragment] {
	return func(yield func(int, Fragment) bool) {
		for i, f := range s.fragments {
			if !yield(i, f) {
				return
			}
		}
	}
}

// Fragments returns a copy of the fragments in artifact order
func (s *Store) Fragments() []Fragment {
	return slices.Clone(s.fragments)
}

// Fingerprint returns the content hash of the artifact this store was loaded from
func (s *Store) Fingerprint() string {
	return s.fingerprint
}

// Equal reports whether both stores hold the same fragments in the same order
func (s *Store) Equal(other *Store) bool {
	if s == nil || other == nil {
		return s == other
	}
	return slices.Equal(s.fragments, other.fragments)
}
