// Package wsurl derives WebSocket endpoint URLs from the configured HTTP API
// base URL.
package wsurl

import (
	"errors"
	"net/url"
	"strings"

	"github.com/amishk599/recsmoke/internal/model"
)

// Derive returns the WebSocket URL for path under baseURL. https maps to wss,
// anything else to ws. A wss base stays wss so that deriving from a derived
// URL is a no-op. The path replaces any path on baseURL; query and
// fragment are cleared.
func Derive(baseURL, path string) (string, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return "", err
	}
	return derive(base, path), nil
}

// Builder derives WebSocket URLs against a base URL that was validated once
// at construction.
type Builder struct {
	base *url.URL
}

// NewBuilder parses apiBaseURL and returns a Builder for it.
func NewBuilder(apiBaseURL string) (*Builder, error) {
	base, err := parseBase(apiBaseURL)
	if err != nil {
		return nil, err
	}
	return &Builder{base: base}, nil
}

// Build returns the WebSocket URL for path.
func (b *Builder) Build(path string) string {
	return derive(b.base, path)
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &model.InvalidURLError{URL: raw, Err: err}
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, &model.InvalidURLError{URL: raw, Err: errors.New("not an absolute url")}
	}
	return u, nil
}

func derive(base *url.URL, path string) string {
	u := *base
	if strings.EqualFold(u.Scheme, "https") || strings.EqualFold(u.Scheme, "wss") {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
