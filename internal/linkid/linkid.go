// Package linkid extracts the canonical profile identifier from the raw links
// returned by search engine result pages.
package linkid

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrNoCanonicalID reports that a raw link does not carry a profile identifier.
// Callers treat it as "cannot compare", never as a fatal error.
var ErrNoCanonicalID = errors.New("no canonical id")

// Style identifies how an engine encodes a result link.
type Style int

const (
	// StyleDirect links embed the target URL as-is:
	// https://www.linkedin.com/in/<id>?<params>
	StyleDirect Style = iota
	// StyleRedirect links wrap the target in a redirect parameter:
	// /url?q=<encoded-target>&<other-params>
	StyleRedirect
)

// CanonicalID is the query-parameter-free profile identifier.
type CanonicalID string

func (s Style) String() string {
	switch s {
	case StyleDirect:
		return "direct"
	case StyleRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("Style(%d)", int(s))
	}
}

// ParseStyle maps a configuration value onto a Style.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "":
		return StyleDirect, nil
	case "redirect":
		return StyleRedirect, nil
	default:
		return StyleDirect, fmt.Errorf("unknown link style %q", s)
	}
}

// MarshalText lets a Style round-trip through yaml and viper.
func (s Style) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Style) UnmarshalText(b []byte) error {
	parsed, err := ParseStyle(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

var paramSep = regexp.MustCompile(`[=&]+`)

// idSegment is the position of the identifier in a target URL split on '/':
// "https:", "", host, "in", id.
const idSegment = 4

// Normalize returns the canonical identifier carried by raw.
func Normalize(raw string, style Style) (CanonicalID, error) {
	parts := paramSep.Split(raw, -1)

	var target string
	switch style {
	case StyleRedirect:
		if len(parts) < 2 {
			return "", fmt.Errorf("%w: %q has no redirect target", ErrNoCanonicalID, raw)
		}
		target = parts[1]
		if decoded, err := url.QueryUnescape(target); err == nil {
			target = decoded
		}
	case StyleDirect:
		target = parts[0]
	default:
		return "", fmt.Errorf("%w: unsupported style %v", ErrNoCanonicalID, style)
	}

	segments := strings.Split(target, "/")
	if len(segments) <= idSegment {
		return "", fmt.Errorf("%w: %q has %d path segments", ErrNoCanonicalID, raw, len(segments))
	}

	id, _, _ := strings.Cut(segments[idSegment], "?")
	if id == "" {
		return "", fmt.Errorf("%w: %q has an empty identifier", ErrNoCanonicalID, raw)
	}
	return CanonicalID(id), nil
}
