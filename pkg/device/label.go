package device

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tendant/simple-device-trust/pkg/fingerprint"
)

// MaxLabelLength bounds user-supplied device labels, in runes
const MaxLabelLength = 100

type keyword struct {
	needle string
	name   string
}

// Order matters: Edge and Opera user agents also contain "chrome", and Chrome
// contains "safari".
var browserKeywords = []keyword{
	{"edg", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"firefox", "Firefox"},
	{"fxios", "Firefox"},
	{"crios", "Chrome"},
	{"chrome", "Chrome"},
	{"safari", "Safari"},
}

// iOS user agents say "like Mac OS X", so they are checked before macOS
var osKeywords = []keyword{
	{"windows", "Windows"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"ipod", "iOS"},
	{"android", "Android"},
	{"cros ", "ChromeOS"},
	{"mac", "macOS"},
	{"linux", "Linux"},
}

func lookup(userAgent string, table []keyword) string {
	ua := strings.ToLower(userAgent)
	for _, k := range table {
		if strings.Contains(ua, k.needle) {
			return k.name
		}
	}
	return "Unknown"
}

// BrowserName derives a browser name from a user agent
func BrowserName(userAgent string) string {
	return lookup(userAgent, browserKeywords)
}

// OSName derives an operating system name from a user agent
func OSName(userAgent string) string {
	return lookup(userAgent, osKeywords)
}

// DefaultLabel builds a label such as "Chrome on Win32 - 2024-01-18"
func DefaultLabel(fp fingerprint.Fingerprint, at time.Time) string {
	return fmt.Sprintf("%s on %s - %s", BrowserName(fp.UserAgent), fp.Platform, at.UTC().Format("2006-01-02"))
}

// NormalizeLabel trims a user-supplied label and rejects over-long values
func NormalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return "", fmt.Errorf("label must be at most %d characters", MaxLabelLength)
	}
	return label, nil
}
