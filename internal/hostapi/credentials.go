package hostapi

import (
	"regexp"
	"strings"
)

// MinPasswordLength is the shortest password the host accepts.
const MinPasswordLength = 8

// ValidateRegistration applies the sign-up form checks in order: every field
// present, password long enough, confirmation matching.
func ValidateRegistration(username, password, confirm string) error {
	if strings.TrimSpace(username) == "" || password == "" || confirm == "" {
		return ErrMissingFields
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// Strength rates a password for display.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

var (
	upperRe  = regexp.MustCompile(`[A-Z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// PasswordStrength scores one point each for length 8+, length 12+, an
// upper-case letter, a digit and a symbol: up to 2 is weak, up to 4 medium.
func PasswordStrength(password string) Strength {
	if password == "" {
		return StrengthWeak
	}
	score := 0
	if len(password) >= 8 {
		score++
	}
	if len(password) >= 12 {
		score++
	}
	for _, re := range []*regexp.Regexp{upperRe, digitRe, symbolRe} {
		if re.MatchString(password) {
			score++
		}
	}
	switch {
	case score <= 2:
		return StrengthWeak
	case score <= 4:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// Device is the readable form of a login's user agent.
type Device struct {
	OS      string
	Browser string
}

func (d Device) String() string { return d.OS + " (" + d.Browser + ")" }

// ParseUserAgent picks the OS and browser family out of a user agent. Order
// matters: Android agents also say Linux, iOS agents say Mac OS X, and Edge
// claims both Chrome and Safari.
func ParseUserAgent(ua string) Device {
	d := Device{OS: "Unknown OS", Browser: "Unknown Browser"}
	if ua == "" {
		return d
	}
	switch {
	case strings.Contains(ua, "Windows"):
		d.OS = "Windows"
	case strings.Contains(ua, "Android"):
		d.OS = "Android"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		d.OS = "iOS"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS"):
		d.OS = "Mac OS"
	case strings.Contains(ua, "Linux"):
		d.OS = "Linux"
	}
	switch {
	case strings.Contains(ua, "Edg/"):
		d.Browser = "Edge"
	case strings.Contains(ua, "Chrome"):
		d.Browser = "Chrome"
	case strings.Contains(ua, "Firefox"):
		d.Browser = "Firefox"
	case strings.Contains(ua, "Safari"):
		d.Browser = "Safari"
	}
	return d
}
