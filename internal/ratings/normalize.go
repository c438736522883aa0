// Package ratings normalizes external rating values into the numeric scales
// stored on result items. Every rating that enters the data model goes
// through IMDb or RottenTomatoes.
package ratings

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Scale bounds.
const (
	IMDbMax           = 10.0
	RottenTomatoesMax = 100.0
)

// IMDb parses an IMDb rating on the 0-10 scale. Values outside the scale or
// unparseable input yield nil.
func IMDb(raw json.RawMessage) *float64 {
	v, ok := parse(raw)
	if !ok || v < 0 || v > IMDbMax {
		return nil
	}
	v = math.Round(v*10) / 10
	return &v
}

// RottenTomatoes parses a Tomatometer score and brings it to the 0-100 scale.
//
// Scale detection: a value <= 1 is a fraction and is multiplied by 100, a
// value > 1000 is per-mille and is divided by 10, anything else is already a
// percentage. The result is clamped to 0-100.
func RottenTomatoes(raw json.RawMessage) *float64 {
	v, ok := parse(raw)
	if !ok || v < 0 {
		return nil
	}
	v = TomatoScale(v)
	return &v
}

// TomatoScale applies the scale detection rules to an already numeric score.
func TomatoScale(v float64) float64 {
	switch {
	case v <= 1:
		v *= 100
	case v > 1000:
		v /= 10
	}
	v = math.Round(v)
	return math.Max(0, math.Min(RottenTomatoesMax, v))
}

// parse accepts a JSON number or a string such as "7.8", "92%" or "7.8/10".
// Null, empty, "N/A" and non-finite values are reported as absent.
func parse(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return finite(f)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return ParseString(s)
}

// ParseString parses a textual rating.
func ParseString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0, false
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.TrimSuffix(s, "%")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return finite(f)
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
