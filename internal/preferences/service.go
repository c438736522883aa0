package preferences

import (
	"context"
	"fmt"
	"strings"
)

// Store is the settings table.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	SettingsWithPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

// Service reads and writes user preferences. It also backs the taste
// rebuild scheduler's persisted state through Get and Set.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns the stored value for key. ok is false when it was never set.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.GetSetting(ctx, key)
}

// Set stores value under key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	return s.store.SetSetting(ctx, key, value)
}

// GetExplorePreferences returns the explore preferences, falling back to
// defaults for anything unset or invalid.
func (s *Service) GetExplorePreferences(ctx context.Context) (*ExplorePreferences, error) {
	stored, err := s.store.SettingsWithPrefix(ctx, explorePrefix)
	if err != nil {
		return nil, err
	}

	prefs := DefaultPreferences()
	if val, ok := stored[KeyDefaultMediaType]; ok && ValidMediaType(val) {
		prefs.DefaultMediaType = MediaType(val)
	}
	if val, ok := stored[KeyDefaultProviders]; ok {
		prefs.DefaultProviders = splitProviders(val)
	}
	return &prefs, nil
}

// SetExplorePreferences updates all explore preferences
func (s *Service) SetExplorePreferences(ctx context.Context, prefs ExplorePreferences) error {
	if !ValidMediaType(string(prefs.DefaultMediaType)) {
		return fmt.Errorf("invalid media type %q", prefs.DefaultMediaType)
	}
	if err := s.Set(ctx, KeyDefaultMediaType, string(prefs.DefaultMediaType)); err != nil {
		return err
	}
	return s.Set(ctx, KeyDefaultProviders, strings.Join(prefs.DefaultProviders, ","))
}

func splitProviders(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
