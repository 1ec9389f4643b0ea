package rpc

import (
	"net/url"
	"strings"
)

// ValidURL reports whether raw parses as an absolute http or https URL.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// NormalizeURL prefixes https:// when raw carries no scheme and strips any
// trailing slash. It does not validate the result; pair with ValidURL.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}
