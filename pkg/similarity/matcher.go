package similarity

import (
	"math"
	"strings"
	"time"

	"github.com/tendant/simple-device-trust/pkg/fingerprint"
)

// Matcher scores pairs of fingerprints and decides whether they describe the same device.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	cfg Config
}

// Candidate is an existing active fingerprint together with its last use time
type Candidate struct {
	Fingerprint fingerprint.Fingerprint
	LastUsedAt  time.Time
}

// Match is the outcome of FindBestMatch
type Match struct {
	Index int
	Score float64
}

// NewMatcher validates cfg and returns a matcher bound to it
func NewMatcher(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// Threshold returns the minimum score treated as "same device"
func (m *Matcher) Threshold() float64 {
	return m.cfg.Threshold
}

// Score returns the weighted similarity of a and b in [0, 1]. An attribute
// missing on one side keeps its weight but contributes nothing; one missing on
// both sides is left out of the sum and of the total weight, so any valid
// fingerprint scores exactly 1 against itself.
func (m *Matcher) Score(a, b fingerprint.Fingerprint) float64 {
	w := m.cfg.Weights

	var acc accumulator
	acc.add(w.Platform, compareString(a.Platform, b.Platform))
	acc.add(w.Screen, attribute{similarity: m.screen(a.Screen, b.Screen), counted: true})
	acc.add(w.HardwareConcurrency, compareInt(a.HardwareConcurrency, b.HardwareConcurrency))
	acc.add(w.UserAgent, compareUserAgent(a.UserAgent, b.UserAgent))
	acc.add(w.Timezone, compareString(a.Timezone, b.Timezone))
	acc.add(w.Language, compareString(a.Language, b.Language))
	acc.add(w.MaxTouchPoints, compareInt(a.MaxTouchPoints, b.MaxTouchPoints))
	acc.add(w.CookieEnabled, compareBool(a.CookieEnabled, b.CookieEnabled))
	acc.add(w.Vendor, compareString(a.Vendor, b.Vendor))
	acc.add(w.DoNotTrack, compareString(a.DoNotTrack, b.DoNotTrack))

	if acc.total <= 0 {
		return 0
	}
	score := acc.sum / acc.total
	// Rounding absorbs float summation noise so identical inputs score exactly 1.
	score = math.Round(score*1e9) / 1e9
	return math.Max(0, math.Min(1, score))
}

// accumulator sums weighted attribute similarities over the attributes that
// at least one side carries
type accumulator struct {
	sum   float64
	total float64
}

// attribute is one compared signal. It is not counted when both sides lack it.
type attribute struct {
	similarity float64
	counted    bool
}

func (acc *accumulator) add(weight float64, attr attribute) {
	if !attr.counted {
		return
	}
	acc.sum += weight * attr.similarity
	acc.total += weight
}

// Matches reports whether a and b score at or above the threshold
func (m *Matcher) Matches(a, b fingerprint.Fingerprint) bool {
	return m.Score(a, b) >= m.cfg.Threshold
}

// FindBestMatch scores candidate against every existing fingerprint and returns
// the best one. Ties go to the most recently used record. The boolean is false
// when nothing reaches the threshold.
func (m *Matcher) FindBestMatch(candidate fingerprint.Fingerprint, existing []Candidate) (Match, bool) {
	best := Match{Index: -1}
	for i, e := range existing {
		s := m.Score(candidate, e.Fingerprint)
		switch {
		case best.Index < 0, s > best.Score:
			best = Match{Index: i, Score: s}
		case s == best.Score && e.LastUsedAt.After(existing[best.Index].LastUsedAt):
			best = Match{Index: i, Score: s}
		}
	}
	if best.Index < 0 || best.Score < m.cfg.Threshold {
		return best, false
	}
	return best, true
}

// screen gives full credit only for identical geometry with colour depth inside the tolerance
func (m *Matcher) screen(a, b fingerprint.Screen) float64 {
	if a.Width != b.Width || a.Height != b.Height {
		return 0
	}
	diff := a.ColorDepth - b.ColorDepth
	if diff < 0 {
		diff = -diff
	}
	if diff > m.cfg.ColorDepthVariance {
		return 0
	}
	return 1
}

func compareString(a, b string) attribute {
	if a == "" || b == "" {
		return attribute{counted: a != "" || b != ""}
	}
	if strings.EqualFold(a, b) {
		return attribute{similarity: 1, counted: true}
	}
	return attribute{counted: true}
}

func compareUserAgent(a, b string) attribute {
	return attribute{similarity: UserAgentSimilarity(a, b), counted: a != "" || b != ""}
}

func compareInt(a, b *int) attribute {
	if a == nil || b == nil {
		return attribute{counted: a != nil || b != nil}
	}
	if *a != *b {
		return attribute{counted: true}
	}
	return attribute{similarity: 1, counted: true}
}

func compareBool(a, b *bool) attribute {
	if a == nil || b == nil {
		return attribute{counted: a != nil || b != nil}
	}
	if *a != *b {
		return attribute{counted: true}
	}
	return attribute{similarity: 1, counted: true}
}
