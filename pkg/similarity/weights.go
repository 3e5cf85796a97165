package similarity

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	DefaultThreshold          = 0.65
	DefaultColorDepthVariance = 8

	// weightSumEpsilon bounds the rounding slack allowed when weights are summed
	weightSumEpsilon = 1e-6
)

// Weights assigns each fingerprint attribute its share of the similarity score.
// Weights must be non-negative and sum to 1.0.
type Weights struct {
	Platform            float64
	Screen              float64
	HardwareConcurrency float64
	UserAgent           float64
	Timezone            float64
	Language            float64
	MaxTouchPoints      float64
	CookieEnabled       float64
	Vendor              float64
	DoNotTrack          float64
}

// DefaultWeights favours stable, high-entropy signals over volatile ones
func DefaultWeights() Weights {
	return Weights{
		Platform:            0.30,
		Screen:              0.25,
		HardwareConcurrency: 0.12,
		UserAgent:           0.10,
		Timezone:            0.08,
		Language:            0.06,
		MaxTouchPoints:      0.04,
		CookieEnabled:       0.02,
		Vendor:              0.02,
		DoNotTrack:          0.01,
	}
}

func (w *Weights) fields() map[string]*float64 {
	return map[string]*float64{
		"platform":            &w.Platform,
		"screen":              &w.Screen,
		"hardwareconcurrency": &w.HardwareConcurrency,
		"useragent":           &w.UserAgent,
		"timezone":            &w.Timezone,
		"language":            &w.Language,
		"maxtouchpoints":      &w.MaxTouchPoints,
		"cookieenabled":       &w.CookieEnabled,
		"vendor":              &w.Vendor,
		"donottrack":          &w.DoNotTrack,
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	var sum float64
	for _, v := range w.fields() {
		sum += *v
	}
	return sum
}

// Validate checks that no weight is negative and that the weights sum to 1.0
func (w Weights) Validate() error {
	names := make([]string, 0, 10)
	fields := w.fields()
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := *fields[name]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("similarity weight %s must be a non-negative number, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightSumEpsilon {
		return fmt.Errorf("similarity weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

// ParseWeights reads overrides in the form "platform=0.30,screen=0.25".
// Attributes not mentioned keep their default weight. Names are case-insensitive
// and may use snake_case ("hardware_concurrency").
func ParseWeights(s string) (Weights, error) {
	w := DefaultWeights()
	s = strings.TrimSpace(s)
	if s == "" {
		return w, nil
	}

	fields := w.fields()
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Weights{}, fmt.Errorf("invalid weight %q: expected name=value", pair)
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", ""))
		target, exists := fields[key]
		if !exists {
			return Weights{}, fmt.Errorf("unknown similarity attribute %q", name)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("invalid weight for %s: %w", name, err)
		}
		*target = f
	}
	return w, nil
}

// Config is the immutable matcher configuration
type Config struct {
	Weights            Weights
	Threshold          float64
	ColorDepthVariance int
}

// DefaultConfig returns the default weights, a 0.65 threshold and a colour depth tolerance of 8
func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		Threshold:          DefaultThreshold,
		ColorDepthVariance: DefaultColorDepthVariance,
	}
}

// Validate checks the threshold range, the colour depth tolerance and the weights
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1], got %v", c.Threshold)
	}
	if c.ColorDepthVariance < 0 {
		return fmt.Errorf("color depth variance must not be negative, got %d", c.ColorDepthVariance)
	}
	return c.Weights.Validate()
}
