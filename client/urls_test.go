package client

import (
	"net/url"
	"strings"
	"testing"
)

func TestEscapeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"react", "react"},
		{"@babel/core", "@babel%2Fcore"},
		{"@scope/pkg", "@scope%2Fpkg"},
		{"weird name", "weird%20name"},
		{"a@b", "a%40b"},
	}
	for _, tt := range tests {
		if got := EscapeName(tt.name); got != tt.want {
			t.Errorf("EscapeName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPackageURL(t *testing.T) {
	tests := []struct {
		base string
		name string
		want string
	}{
		{"", "react", "https://registry.npmjs.org/react"},
		{"https://registry.npmjs.org/", "react", "https://registry.npmjs.org/react"},
		{"https://registry.npmjs.org", "@babel/core", "https://registry.npmjs.org/@babel%2Fcore"},
		{"https://npm.example.com/api/npm/", "pkg", "https://npm.example.com/api/npm/pkg"},
		{"https://npm.example.com/api/npm", "pkg", "https://npm.example.com/api/npm/pkg"},
	}
	for _, tt := range tests {
		got, err := PackageURL(tt.base, tt.name)
		if err != nil {
			t.Fatalf("PackageURL(%q, %q) failed: %v", tt.base, tt.name, err)
		}
		if got != tt.want {
			t.Errorf("PackageURL(%q, %q) = %q, want %q", tt.base, tt.name, got, tt.want)
		}
	}
}

func TestPackageURLScopedRoundTrip(t *testing.T) {
	raw, err := PackageURL("https://registry.npmjs.org/", "@scope/pkg")
	if err != nil {
		t.Fatalf("PackageURL failed: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	segment := strings.TrimPrefix(u.EscapedPath(), "/")
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		t.Fatalf("PathUnescape failed: %v", err)
	}
	if decoded != "@scope/pkg" {
		t.Errorf("decoded segment = %q, want %q", decoded, "@scope/pkg")
	}
}

func TestPackageURLInvalid(t *testing.T) {
	if _, err := PackageURL("registry.npmjs.org", "react"); err == nil {
		t.Error("expected error for relative registry url")
	}
}
