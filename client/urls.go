package client

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegistryURL is the public npm registry.
const DefaultRegistryURL = "https://registry.npmjs.org/"

// EscapeName escapes a package name as a single path segment. The leading
// "@" of a scoped name stays literal because the registry treats
// "@scope%2Fname" and "%40scope%2Fname" differently.
func EscapeName(name string) string {
	escaped := escapeComponent(name)
	if strings.HasPrefix(escaped, "%40") {
		escaped = "@" + escaped[3:]
	}
	return escaped
}

// PackageURL resolves the escaped package name against the registry base.
func PackageURL(baseURL, name string) (string, error) {
	if baseURL == "" {
		baseURL = DefaultRegistryURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing registry url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("registry url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
		if base.RawPath != "" {
			base.RawPath += "/"
		}
	}
	return strings.TrimSuffix(base.String(), "/") + "/" + EscapeName(name), nil
}

// escapeComponent escapes everything except the unreserved characters
// A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func escapeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
