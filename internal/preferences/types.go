package preferences

// MediaType is the default media type for new explore queries.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// Setting keys for explore preferences
const (
	explorePrefix       = "explore_"
	KeyDefaultMediaType = "explore_default_media_type"
	KeyDefaultProviders = "explore_default_providers"
)

// ExplorePreferences contains the explore page defaults.
type ExplorePreferences struct {
	DefaultMediaType MediaType `json:"defaultMediaType"`
	DefaultProviders []string  `json:"defaultProviders"`
}

// DefaultPreferences returns the default values for explore preferences
func DefaultPreferences() ExplorePreferences {
	return ExplorePreferences{
		DefaultMediaType: MediaTypeMovie,
		DefaultProviders: []string{},
	}
}

// ValidMediaType checks if a value is a valid MediaType option
func ValidMediaType(s string) bool {
	switch MediaType(s) {
	case MediaTypeMovie, MediaTypeTV:
		return true
	}
	return false
}
