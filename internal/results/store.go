package results

import (
	"sync"
)

// Patch is a partial update for one item. Nil fields are left untouched.
type Patch struct {
	IMDbRating           *float64
	RottenTomatoesRating *float64
	WhyMarkdown          *string
	WhySource            WhySource
}

// HasRatings reports whether the patch carries at least one rating.
func (p Patch) HasRatings() bool {
	return p.IMDbRating != nil || p.RottenTomatoesRating != nil
}

// Store is an ordered collection of items keyed by media id. Render order
// follows the explicit key list, never map iteration.
type Store struct {
	mu    sync.RWMutex
	items map[string]Item
	order []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]Item)}
}

// ReplaceAll discards the current collection and rebuilds it from items.
// Entries without a media id are skipped; the first occurrence of a
// duplicated id wins. It returns the number of stored items.
func (s *Store) ReplaceAll(items []Item) int {
	next := make(map[string]Item, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.MediaID == "" {
			continue
		}
		if _, dup := next[item.MediaID]; dup {
			continue
		}
		next[item.MediaID] = item.clone()
		order = append(order, item.MediaID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = next
	s.order = order
	return len(order)
}

// MergeByKey applies p to the item stored under key. Unknown keys are
// ignored. A loading flag is cleared only when the patch carries the matching
// data. It reports whether an item was updated.
func (s *Store) MergeByKey(key string, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok {
		return false
	}

	if p.IMDbRating != nil {
		v := *p.IMDbRating
		item.IMDbRating = &v
	}
	if p.RottenTomatoesRating != nil {
		v := *p.RottenTomatoesRating
		item.RottenTomatoesRating = &v
	}
	if p.HasRatings() {
		item.IsRatingsLoading = false
	}
	if p.WhyMarkdown != nil {
		why := *p.WhyMarkdown
		item.WhyMarkdown = &why
		item.IsWhyLoading = false
	}
	if p.WhySource != "" {
		item.WhySource = p.WhySource
	}

	s.items[key] = item
	return true
}

// FinalizeAllPending forces both loading flags off on every item. It returns
// the number of items that changed, so a second call returns 0.
func (s *Store) FinalizeAllPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for key, item := range s.items {
		if !item.IsWhyLoading && !item.IsRatingsLoading {
			continue
		}
		item.IsWhyLoading = false
		item.IsRatingsLoading = false
		s.items[key] = item
		changed++
	}
	return changed
}

// MarkAllLoading sets both loading flags on every item that lacks the data.
func (s *Store) MarkAllLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, item := range s.items {
		item.IsWhyLoading = item.WhyMarkdown == nil
		item.IsRatingsLoading = item.IMDbRating == nil && item.RottenTomatoesRating == nil
		s.items[key] = item
	}
}

// Get returns a copy of the item stored under key.
func (s *Store) Get(key string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return Item{}, false
	}
	return item.clone(), true
}

// Items returns copies of all items in render order.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key].clone())
	}
	return out
}

// Keys returns the media ids in render order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear removes every item.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]Item)
	s.order = nil
}

// Snapshot is a detached copy of the store contents.
type Snapshot struct {
	items map[string]Item
	order []string
}

// Snapshot captures the current items and order.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make(map[string]Item, len(s.items))
	for key, item := range s.items {
		items[key] = item.clone()
	}
	return Snapshot{items: items, order: append([]string(nil), s.order...)}
}

// Restore replaces the store contents with a snapshot.
func (s *Store) Restore(snap Snapshot) {
	items := make(map[string]Item, len(snap.items))
	for key, item := range snap.items {
		items[key] = item.clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.order = append([]string(nil), snap.order...)
}
