package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://example.odoo.com"))
	assert.True(t, ValidURL("http://localhost:8069"))
	assert.False(t, ValidURL("ftp://example.com"))
	assert.False(t, ValidURL("example.com"))
	assert.False(t, ValidURL("https://"))
	assert.False(t, ValidURL(""))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.odoo.com", "https://example.odoo.com"},
		{"https://example.odoo.com/", "https://example.odoo.com"},
		{"http://localhost:8069", "http://localhost:8069"},
		{"  example.com  ", "https://example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "input %q", tt.in)
	}
}
