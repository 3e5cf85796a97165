package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

const validPayload = `{
	"platform": " Win32 ",
	"screen": {"width": 1920, "height": 1080, "colorDepth": 24, "pixelDepth": 24},
	"userAgent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)   Chrome/120.0.0.0 Safari/537.36",
	"timezone": "Europe/Berlin",
	"language": "de-DE",
	"languages": ["de-DE", " en-US ", ""],
	"vendor": "Google Inc.",
	"cookieEnabled": true,
	"hardwareConcurrency": 8,
	"maxTouchPoints": 0,
	"doNotTrack": "Unspecified",
	"canvasFingerprint": "ABCDEF0123",
	"deviceLabel": "  Work laptop "
}`

func TestDecode_Valid(t *testing.T) {
	payload, err := Decode([]byte(validPayload))
	require.NoError(t, err)

	fp := payload.Fingerprint
	assert.Equal(t, "Win32", fp.Platform)
	assert.Equal(t, Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelDepth: IntPtr(24)}, fp.Screen)
	assert.Equal(t, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36", fp.UserAgent)
	assert.Equal(t, []string{"de-DE", "en-US"}, fp.Languages)
	assert.Equal(t, "unspecified", fp.DoNotTrack)
	assert.Equal(t, "abcdef0123", fp.CanvasFingerprint)
	require.NotNil(t, fp.HardwareConcurrency)
	assert.Equal(t, 8, *fp.HardwareConcurrency)
	require.NotNil(t, fp.MaxTouchPoints)
	assert.Equal(t, 0, *fp.MaxTouchPoints)
	assert.Equal(t, "Work laptop", payload.DeviceLabel)
}

func TestDecode_OptionalFieldsAbsent(t *testing.T) {
	payload, err := Decode([]byte(`{
		"platform": "MacIntel",
		"screen": {"width": 1440, "height": 900, "colorDepth": 30},
		"userAgent": "Mozilla/5.0 (Macintosh) Safari/605.1.15",
		"timezone": "America/New_York",
		"language": "en-US",
		"doNotTrack": null
	}`))
	require.NoError(t, err)

	fp := payload.Fingerprint
	assert.Nil(t, fp.HardwareConcurrency)
	assert.Nil(t, fp.MaxTouchPoints)
	assert.Nil(t, fp.CookieEnabled)
	assert.Nil(t, fp.Screen.PixelDepth)
	assert.Empty(t, fp.DoNotTrack)
	assert.Empty(t, fp.Vendor)
	assert.False(t, fp.HasCanvas())
	assert.Empty(t, payload.DeviceLabel)
}

func TestDecode_MissingRequiredFields(t *testing.T) {
	_, err := Decode([]byte(`{"platform": "Win32", "screen": {"width": 10}}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))

	details := apperrors.GetDetails(err)
	for _, field := range []string{"userAgent", "timezone", "language", "screen.height", "screen.colorDepth"} {
		assert.Contains(t, details, field)
	}
	assert.NotContains(t, details, "platform")
}

func TestDecode_Rejects(t *testing.T) {
	base := func(replace, with string) string {
		return strings.Replace(validPayload, replace, with, 1)
	}

	tests := []struct {
		name  string
		input string
		field string
	}{
		{"negative width", base(`"width": 1920`, `"width": -1`), "screen.width"},
		{"negative cores", base(`"hardwareConcurrency": 8`, `"hardwareConcurrency": -2`), "hardwareConcurrency"},
		{"blank platform", base(`" Win32 "`, `"   "`), "platform"},
		{"missing screen", base(`"screen": {"width": 1920, "height": 1080, "colorDepth": 24, "pixelDepth": 24},`, ``), "screen"},
		{"unknown field", base(`"vendor"`, `"vendorX"`), "payload"},
		{"wrong type", base(`"cookieEnabled": true`, `"cookieEnabled": "yes"`), "payload"},
		{"label too long", base(`"  Work laptop "`, `"`+strings.Repeat("x", MaxLabelLength+1)+`"`), "deviceLabel"},
		{"not json", `platform=Win32`, "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFailed))
			assert.Contains(t, apperrors.GetDetails(err), tt.field)
		})
	}
}

func TestFingerprint_Hash(t *testing.T) {
	payload, err := Decode([]byte(validPayload))
	require.NoError(t, err)

	again, err := Decode([]byte(validPayload))
	require.NoError(t, err)
	assert.Equal(t, payload.Fingerprint.Hash(), again.Fingerprint.Hash())
	assert.Len(t, payload.Fingerprint.Hash(), 64)

	changed := again.Fingerprint
	changed.CanvasFingerprint = "ffff"
	assert.NotEqual(t, payload.Fingerprint.Hash(), changed.Hash())
}
