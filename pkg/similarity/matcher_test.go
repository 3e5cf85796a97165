package similarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-trust/pkg/fingerprint"
)

func fullFingerprint() fingerprint.Fingerprint {
	return fingerprint.Fingerprint{
		Platform:            "Win32",
		Screen:              fingerprint.Screen{Width: 1920, Height: 1080, ColorDepth: 24},
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0.0.0 Safari/537.36",
		Timezone:            "Europe/Berlin",
		Language:            "de-DE",
		Languages:           []string{"de-DE", "en-US"},
		Vendor:              "Google Inc.",
		CookieEnabled:       fingerprint.BoolPtr(true),
		HardwareConcurrency: fingerprint.IntPtr(8),
		MaxTouchPoints:      fingerprint.IntPtr(0),
		DoNotTrack:          "unspecified",
		CanvasFingerprint:   "abc123",
	}
}

func newMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig())
	require.NoError(t, err)
	return m
}

func minimalFingerprint(t *testing.T) fingerprint.Fingerprint {
	t.Helper()
	payload, err := fingerprint.Decode([]byte(`{
		"platform": "Win32",
		"screen": {"width": 1920, "height": 1080, "colorDepth": 24},
		"userAgent": "Mozilla/5.0 Chrome/120",
		"timezone": "UTC",
		"language": "en-US"
	}`))
	require.NoError(t, err)
	return payload.Fingerprint
}

func TestScore_Reflexive(t *testing.T) {
	m := newMatcher(t)

	partial := fullFingerprint()
	partial.Vendor = ""
	partial.CookieEnabled = nil
	partial.DoNotTrack = ""

	tests := []struct {
		name string
		fp   fingerprint.Fingerprint
	}{
		{"full", fullFingerprint()},
		{"required fields only", minimalFingerprint(t)},
		{"partially filled", partial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 1.0, m.Score(tt.fp, tt.fp))
		})
	}
}

func TestScore_Symmetric(t *testing.T) {
	m := newMatcher(t)
	a := fullFingerprint()
	b := fullFingerprint()
	b.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/121.0.0.0 Safari/537.36"
	b.Timezone = "Europe/Paris"
	b.HardwareConcurrency = nil

	assert.Equal(t, m.Score(a, b), m.Score(b, a))
}

func TestScore_VolatileFieldsStillMatch(t *testing.T) {
	m := newMatcher(t)
	a := fullFingerprint()
	b := fullFingerprint()
	b.CanvasFingerprint = "zzz999"
	b.DoNotTrack = "1"

	assert.InDelta(t, 0.99, m.Score(a, b), 1e-9)
	assert.True(t, m.Matches(a, b))
}

func TestScore_PlatformAndScreenChangeDoesNotMatch(t *testing.T) {
	m := newMatcher(t)
	a := fullFingerprint()
	b := fullFingerprint()
	b.Platform = "MacIntel"
	b.Screen = fingerprint.Screen{Width: 1440, Height: 900, ColorDepth: 30}

	assert.InDelta(t, 0.45, m.Score(a, b), 1e-9)
	assert.False(t, m.Matches(a, b))
}

func TestScore_ColorDepthTolerance(t *testing.T) {
	m := newMatcher(t)
	a := fullFingerprint()

	within := fullFingerprint()
	within.Screen.ColorDepth = 30
	assert.Equal(t, 1.0, m.Score(a, within))

	beyond := fullFingerprint()
	beyond.Screen.ColorDepth = 48
	assert.InDelta(t, 0.75, m.Score(a, beyond), 1e-9)

	resized := fullFingerprint()
	resized.Screen.Width = 1280
	assert.InDelta(t, 0.75, m.Score(a, resized), 1e-9)
}

func TestScore_MissingFieldsContributeNothing(t *testing.T) {
	m := newMatcher(t)
	a := fullFingerprint()
	b := fullFingerprint()
	a.HardwareConcurrency = nil
	b.CookieEnabled = nil
	b.Vendor = ""

	// Absent on one side: the weight still counts but earns nothing
	assert.InDelta(t, 1.0-0.12-0.02-0.02, m.Score(a, b), 1e-9)

	// Only the required signals against a full fingerprint: optional weights count as misses
	minimal := fullFingerprint()
	minimal.Languages = nil
	minimal.Vendor = ""
	minimal.CookieEnabled = nil
	minimal.HardwareConcurrency = nil
	minimal.MaxTouchPoints = nil
	minimal.DoNotTrack = ""
	assert.InDelta(t, 0.79, m.Score(minimal, fullFingerprint()), 1e-9)

	// Absent on both sides: left out of the total, so the remaining signals decide
	moved := minimal
	moved.Timezone = "Europe/Paris"
	assert.InDelta(t, (0.79-0.08)/0.79, m.Score(minimal, moved), 1e-9)
}

func TestScore_Bounded(t *testing.T) {
	m := newMatcher(t)
	score := m.Score(fullFingerprint(), fingerprint.Fingerprint{})
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestFindBestMatch(t *testing.T) {
	m := newMatcher(t)
	now := time.Date(2024, 1, 18, 12, 0, 0, 0, time.UTC)

	mac := fullFingerprint()
	mac.Platform = "MacIntel"
	mac.Screen = fingerprint.Screen{Width: 1440, Height: 900, ColorDepth: 30}

	t.Run("no candidates", func(t *testing.T) {
		_, ok := m.FindBestMatch(fullFingerprint(), nil)
		assert.False(t, ok)
	})

	t.Run("below threshold", func(t *testing.T) {
		_, ok := m.FindBestMatch(fullFingerprint(), []Candidate{{Fingerprint: mac, LastUsedAt: now}})
		assert.False(t, ok)
	})

	t.Run("highest score wins", func(t *testing.T) {
		nearby := fullFingerprint()
		nearby.Timezone = "Europe/Paris"
		match, ok := m.FindBestMatch(fullFingerprint(), []Candidate{
			{Fingerprint: mac, LastUsedAt: now},
			{Fingerprint: nearby, LastUsedAt: now.Add(time.Hour)},
			{Fingerprint: fullFingerprint(), LastUsedAt: now},
		})
		require.True(t, ok)
		assert.Equal(t, 2, match.Index)
		assert.Equal(t, 1.0, match.Score)
	})

	t.Run("tie goes to most recently used", func(t *testing.T) {
		match, ok := m.FindBestMatch(fullFingerprint(), []Candidate{
			{Fingerprint: fullFingerprint(), LastUsedAt: now.Add(-2 * time.Hour)},
			{Fingerprint: fullFingerprint(), LastUsedAt: now},
			{Fingerprint: fullFingerprint(), LastUsedAt: now.Add(-time.Hour)},
		})
		require.True(t, ok)
		assert.Equal(t, 1, match.Index)
	})
}

func TestUserAgentSimilarity(t *testing.T) {
	a := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0"
	assert.Equal(t, 1.0, UserAgentSimilarity(a, a))
	assert.Equal(t, 0.0, UserAgentSimilarity("", a))
	assert.Equal(t, 0.0, UserAgentSimilarity("", ""))

	// one of nine tokens differs on each side: 8 shared / 10 total
	b := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/121.0.0.0"
	assert.InDelta(t, 0.8, UserAgentSimilarity(a, b), 1e-9)
	assert.Equal(t, UserAgentSimilarity(a, b), UserAgentSimilarity(b, a))
}

func TestWeights(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)

	w, err := ParseWeights("platform=0.25, user_agent=0.15")
	require.NoError(t, err)
	assert.Equal(t, 0.25, w.Platform)
	assert.Equal(t, 0.15, w.UserAgent)
	assert.NoError(t, w.Validate())

	w, err = ParseWeights("platform=0.5")
	require.NoError(t, err)
	assert.Error(t, w.Validate())

	_, err = ParseWeights("gpu=0.1")
	assert.Error(t, err)

	_, err = ParseWeights("platform")
	assert.Error(t, err)

	neg := DefaultWeights()
	neg.Vendor = -0.02
	neg.DoNotTrack = 0.05
	assert.Error(t, neg.Validate())
}

func TestNewMatcher_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 0
	_, err := NewMatcher(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.ColorDepthVariance = -1
	_, err = NewMatcher(cfg)
	assert.Error(t, err)
}
