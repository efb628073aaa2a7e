package security

import (
	"net/url"
	"strings"
)

// SafeNext returns next if it is a local absolute path, otherwise fallback.
// It prevents open redirects through the login ?next= parameter.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return next
}
