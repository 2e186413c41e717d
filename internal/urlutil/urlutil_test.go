package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"no scheme", "sounds.example.org", "http://sounds.example.org"},
		{"http", "http://sounds.example.org", "http://sounds.example.org"},
		{"https", "https://sounds.example.org", "https://sounds.example.org"},
		{"trailing slash", "http://sounds.example.org/", "http://sounds.example.org"},
		{"with port", "localhost:8080", "http://localhost:8080"},
		{"whitespace", "  http://sounds.example.org  ", "http://sounds.example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeBaseURL(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		path     string
		expected string
	}{
		{"empty base", "", "/show/b006qykl", "/show/b006qykl"},
		{"with leading slash", "http://example.com", "/episode/p0bzn8f1.aac", "http://example.com/episode/p0bzn8f1.aac"},
		{"without leading slash", "http://example.com", "episode/p0bzn8f1.aac", "http://example.com/episode/p0bzn8f1.aac"},
		{"base with trailing slash", "http://example.com/", "/show/b006qykl", "http://example.com/show/b006qykl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := JoinPath(tt.baseURL, tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}
