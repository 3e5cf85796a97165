package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Screen holds the screen metrics reported by the client collector
type Screen struct {
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	ColorDepth int  `json:"colorDepth"`
	PixelDepth *int `json:"pixelDepth,omitempty"`
}

// Fingerprint is the normalized bundle of client-observed signals used to recognize a device.
// Values are produced by Decode and should be treated as immutable.
//
// Platform, Screen, UserAgent, Timezone and Language are always set. Every other
// field is optional: empty strings and nil pointers mean "not reported".
type Fingerprint struct {
	Platform            string   `json:"platform"`
	Screen              Screen   `json:"screen"`
	UserAgent           string   `json:"userAgent"`
	Timezone            string   `json:"timezone"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages,omitempty"`
	Vendor              string   `json:"vendor,omitempty"`
	CookieEnabled       *bool    `json:"cookieEnabled,omitempty"`
	HardwareConcurrency *int     `json:"hardwareConcurrency,omitempty"`
	MaxTouchPoints      *int     `json:"maxTouchPoints,omitempty"`
	DoNotTrack          string   `json:"doNotTrack,omitempty"`
	CanvasFingerprint   string   `json:"canvasFingerprint,omitempty"`
}

// Hash returns a SHA-256 hex digest of the canonical fingerprint.
// Two fingerprints hash equal only if every signal, including the canvas hash, is identical.
func (f Fingerprint) Hash() string {
	// Marshalling a struct is deterministic (declaration order), so the digest is stable.
	data, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HasCanvas reports whether the collector supplied a canvas rendering hash
func (f Fingerprint) HasCanvas() bool {
	return f.CanvasFingerprint != ""
}

// IntPtr is a small helper for building fingerprints in code and tests
func IntPtr(v int) *int {
	return &v
}

// BoolPtr is a small helper for building fingerprints in code and tests
func BoolPtr(v bool) *bool {
	return &v
}
