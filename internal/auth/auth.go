// Package auth provides the bearer session token shared by the REST API and
// the price feed.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCredential is returned when neither a token nor a token file is set.
var ErrNoCredential = errors.New("no session token configured")

// Credentials holds the session token issued at login.
type Credentials struct {
	Token  string // Opaque bearer token
	Source string // "config", "file" or "login"
}

// New wraps a token obtained at runtime.
func New(token, source string) *Credentials {
	return &Credentials{Token: token, Source: source}
}

// LoadCredentials resolves a token from an explicit value or a token file.
// An explicit token wins.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token != "" {
		return &Credentials{Token: token, Source: "config"}, nil
	}
	if tokenPath == "" {
		return nil, ErrNoCredential
	}

	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Credentials{Token: tok, Source: "file"}, nil
}

// LoadToken reads a token file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return tok, nil
}

// SaveToken persists a token so later runs can skip login. The file is
// readable by the owner only.
func SaveToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Redacted returns a form of the token that is safe to log.
func (c *Credentials) Redacted() string {
	if c == nil || c.Token == "" {
		return ""
	}
	if len(c.Token) <= 8 {
		return "****"
	}
	return c.Token[:4] + "****"
}

// AuthorizationHeader returns the value of the Authorization header.
func (c *Credentials) AuthorizationHeader() string {
	return "Bearer " + c.Token
}

// SignRequest sets the Authorization header on req.
func (c *Credentials) SignRequest(req *http.Request) {
	req.Header.Set("Authorization", c.AuthorizationHeader())
}

// Header returns handshake headers carrying the token.
func (c *Credentials) Header() http.Header {
	h := make(http.Header)
	h.Set("Authorization", c.AuthorizationHeader())
	return h
}
