// Package results holds the ordered, key-addressed collection of recommended
// media items shown on an explore page.
package results

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/reelwise/reelwise/internal/ratings"
)

// WhySource tells where an explanation came from.
type WhySource string

const (
	WhySourceCache WhySource = "cache"
	WhySourceLLM   WhySource = "llm"
)

// Item is one recommended media entity.
type Item struct {
	MediaID     string   `json:"mediaId"`
	MediaType   string   `json:"mediaType,omitempty"`
	Title       string   `json:"title"`
	ReleaseYear int      `json:"releaseYear,omitempty"`
	PosterURL   string   `json:"posterUrl,omitempty"`
	BackdropURL string   `json:"backdropUrl,omitempty"`
	TrailerKey  string   `json:"trailerKey,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Providers   []string `json:"providers,omitempty"`

	IMDbRating           *float64 `json:"imdbRating"`
	RottenTomatoesRating *float64 `json:"rottenTomatoesRating"`

	WhyMarkdown *string   `json:"whyMarkdown,omitempty"`
	WhySource   WhySource `json:"whySource,omitempty"`

	IsWhyLoading     bool `json:"isWhyLoading"`
	IsRatingsLoading bool `json:"isRatingsLoading"`
}

func (it Item) clone() Item {
	if it.Genres != nil {
		it.Genres = append([]string(nil), it.Genres...)
	}
	if it.Providers != nil {
		it.Providers = append([]string(nil), it.Providers...)
	}
	return it
}

// RawItem is an item as it arrives from the backend, before validation.
type RawItem struct {
	MediaID              json.RawMessage `json:"media_id"`
	MediaType            string          `json:"media_type"`
	Title                string          `json:"title"`
	ReleaseYear          json.RawMessage `json:"release_year"`
	PosterURL            string          `json:"poster_url"`
	BackdropURL          string          `json:"backdrop_url"`
	TrailerKey           string          `json:"trailer_key"`
	Genres               []string        `json:"genres"`
	Providers            []string        `json:"providers"`
	IMDbRating           json.RawMessage `json:"imdb_rating"`
	RottenTomatoesRating json.RawMessage `json:"rotten_tomatoes_rating"`
	WhyYouMightEnjoyIt   *string         `json:"why_you_might_enjoy_it"`
	WhySource            string          `json:"why_source"`
}

// FromRaw validates and normalizes a backend item. It reports false when the
// media identifier is missing or cannot be canonicalized.
func FromRaw(raw RawItem) (Item, bool) {
	id := CanonicalMediaID(raw.MediaID)
	if id == "" {
		return Item{}, false
	}

	item := Item{
		MediaID:              id,
		MediaType:            raw.MediaType,
		Title:                strings.TrimSpace(raw.Title),
		ReleaseYear:          parseYear(raw.ReleaseYear),
		PosterURL:            raw.PosterURL,
		BackdropURL:          raw.BackdropURL,
		TrailerKey:           raw.TrailerKey,
		Genres:               raw.Genres,
		Providers:            raw.Providers,
		IMDbRating:           ratings.IMDb(raw.IMDbRating),
		RottenTomatoesRating: ratings.RottenTomatoes(raw.RottenTomatoesRating),
		WhySource:            ParseWhySource(raw.WhySource),
	}

	if raw.WhyYouMightEnjoyIt != nil && strings.TrimSpace(*raw.WhyYouMightEnjoyIt) != "" {
		why := *raw.WhyYouMightEnjoyIt
		item.WhyMarkdown = &why
	}

	item.IsWhyLoading = item.WhyMarkdown == nil
	item.IsRatingsLoading = item.IMDbRating == nil && item.RottenTomatoesRating == nil

	return item, true
}

// FromRawList normalizes a list, silently dropping invalid entries.
func FromRawList(raws []RawItem) []Item {
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		if item, ok := FromRaw(raw); ok {
			items = append(items, item)
		}
	}
	return items
}

// CanonicalMediaID turns a numeric or string identifier into its canonical
// string form. Empty, fractional, non-finite or non-scalar values yield "".
func CanonicalMediaID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return ""
		}
		return strconv.FormatInt(int64(f), 10)
	}

	return ""
}

func parseYear(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && len(s) >= 4 {
		if year, err := strconv.Atoi(s[:4]); err == nil {
			return year
		}
	}
	return 0
}

// ParseWhySource maps a wire value onto a known source, or "".
func ParseWhySource(s string) WhySource {
	switch WhySource(strings.ToLower(s)) {
	case WhySourceCache:
		return WhySourceCache
	case WhySourceLLM:
		return WhySourceLLM
	}
	return ""
}
