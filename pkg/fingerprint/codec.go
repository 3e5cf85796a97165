package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	apperrors "github.com/tendant/simple-device-trust/pkg/errors"
)

const (
	MaxUserAgentLength = 1024
	MaxFieldLength     = 256
	MaxLabelLength     = 100
	MaxLanguages       = 32

	maxScreenDimension = 100000
	maxColorDepth      = 64
	maxCoreCount       = 1024
	maxTouchPoints     = 256
)

// Payload is what a client collector submits: the fingerprint plus an optional device label
type Payload struct {
	Fingerprint Fingerprint
	DeviceLabel string
}

type rawScreen struct {
	Width      *int `json:"width"`
	Height     *int `json:"height"`
	ColorDepth *int `json:"colorDepth"`
	PixelDepth *int `json:"pixelDepth"`
}

// rawPayload mirrors the collector JSON with every field optional so that
// missing required fields can be reported instead of silently zeroed.
type rawPayload struct {
	Platform            *string    `json:"platform"`
	Screen              *rawScreen `json:"screen"`
	UserAgent           *string    `json:"userAgent"`
	Timezone            *string    `json:"timezone"`
	Language            *string    `json:"language"`
	Languages           []string   `json:"languages"`
	Vendor              *string    `json:"vendor"`
	CookieEnabled       *bool      `json:"cookieEnabled"`
	HardwareConcurrency *int       `json:"hardwareConcurrency"`
	MaxTouchPoints      *int       `json:"maxTouchPoints"`
	DoNotTrack          *string    `json:"doNotTrack"`
	CanvasFingerprint   *string    `json:"canvasFingerprint"`
	DeviceLabel         *string    `json:"deviceLabel"`
}

// Decode validates and canonicalizes a raw collector payload.
// It returns a VALIDATION_FAILED error listing every offending field.
func Decode(raw []byte) (Payload, error) {
	return DecodeReader(bytes.NewReader(raw))
}

// DecodeReader is Decode over a stream; the caller is responsible for bounding its size
func DecodeReader(r io.Reader) (Payload, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var raw rawPayload
	if err := dec.Decode(&raw); err != nil {
		return Payload{}, apperrors.ValidationFailed(map[string]interface{}{
			"payload": fmt.Sprintf("malformed payload: %v", err),
		})
	}
	if dec.More() {
		return Payload{}, apperrors.ValidationFailed(map[string]interface{}{
			"payload": "unexpected data after payload",
		})
	}

	v := validator{details: make(map[string]interface{})}
	fp := Fingerprint{
		Platform:          v.requiredString("platform", raw.Platform, MaxFieldLength),
		UserAgent:         collapseSpaces(v.requiredString("userAgent", raw.UserAgent, MaxUserAgentLength)),
		Timezone:          v.requiredString("timezone", raw.Timezone, MaxFieldLength),
		Language:          v.requiredString("language", raw.Language, MaxFieldLength),
		Languages:         v.languages(raw.Languages),
		Vendor:            v.optionalString("vendor", raw.Vendor, MaxFieldLength),
		CookieEnabled:     raw.CookieEnabled,
		DoNotTrack:        strings.ToLower(v.optionalString("doNotTrack", raw.DoNotTrack, MaxFieldLength)),
		CanvasFingerprint: strings.ToLower(v.optionalString("canvasFingerprint", raw.CanvasFingerprint, MaxFieldLength)),
	}
	fp.HardwareConcurrency = v.optionalInt("hardwareConcurrency", raw.HardwareConcurrency, maxCoreCount)
	fp.MaxTouchPoints = v.optionalInt("maxTouchPoints", raw.MaxTouchPoints, maxTouchPoints)

	if raw.Screen == nil {
		v.fail("screen", "is required")
	} else {
		fp.Screen = Screen{
			Width:      v.requiredInt("screen.width", raw.Screen.Width, maxScreenDimension),
			Height:     v.requiredInt("screen.height", raw.Screen.Height, maxScreenDimension),
			ColorDepth: v.requiredInt("screen.colorDepth", raw.Screen.ColorDepth, maxColorDepth),
			PixelDepth: v.optionalInt("screen.pixelDepth", raw.Screen.PixelDepth, maxColorDepth),
		}
	}

	label := v.optionalString("deviceLabel", raw.DeviceLabel, 4*MaxLabelLength)
	if utf8.RuneCountInString(label) > MaxLabelLength {
		v.fail("deviceLabel", fmt.Sprintf("must be at most %d characters", MaxLabelLength))
	}

	if len(v.details) > 0 {
		return Payload{}, apperrors.ValidationFailed(v.details)
	}
	return Payload{Fingerprint: fp, DeviceLabel: label}, nil
}

type validator struct {
	details map[string]interface{}
}

func (v *validator) fail(field, reason string) {
	if _, exists := v.details[field]; !exists {
		v.details[field] = reason
	}
}

func (v *validator) requiredString(field string, value *string, maxLen int) string {
	if value == nil {
		v.fail(field, "is required")
		return ""
	}
	s := strings.TrimSpace(*value)
	if s == "" {
		v.fail(field, "must not be empty")
		return ""
	}
	if len(s) > maxLen {
		v.fail(field, fmt.Sprintf("must be at most %d bytes", maxLen))
		return ""
	}
	return s
}

func (v *validator) optionalString(field string, value *string, maxLen int) string {
	if value == nil {
		return ""
	}
	s := strings.TrimSpace(*value)
	if len(s) > maxLen {
		v.fail(field, fmt.Sprintf("must be at most %d bytes", maxLen))
		return ""
	}
	return s
}

func (v *validator) requiredInt(field string, value *int, max int) int {
	if value == nil {
		v.fail(field, "is required")
		return 0
	}
	if p := v.optionalInt(field, value, max); p != nil {
		return *p
	}
	return 0
}

func (v *validator) optionalInt(field string, value *int, max int) *int {
	if value == nil {
		return nil
	}
	if *value < 0 {
		v.fail(field, "must not be negative")
		return nil
	}
	if *value > max {
		v.fail(field, fmt.Sprintf("must be at most %d", max))
		return nil
	}
	n := *value
	return &n
}

func (v *validator) languages(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	if len(values) > MaxLanguages {
		v.fail("languages", fmt.Sprintf("must contain at most %d entries", MaxLanguages))
		return nil
	}
	out := make([]string, 0, len(values))
	for _, lang := range values {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if len(lang) > MaxFieldLength {
			v.fail("languages", fmt.Sprintf("entries must be at most %d bytes", MaxFieldLength))
			return nil
		}
		out = append(out, lang)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
