// Package apiauth stores the API token that guards mutating HTTP routes.
package apiauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const DefaultService = "score-attest"

// ErrNotFound is returned when no token is stored under a name
var ErrNotFound = keyring.ErrNotFound

// backend is the subset of go-keyring the store uses
type backend interface {
	Set(service, user, secret string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Set(service, user, secret string) error { return keyring.Set(service, user, secret) }
func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Delete(service, user string) error       { return keyring.Delete(service, user) }

// TokenStore keeps tokens in the OS keychain. On headless hosts without a
// keyring it falls back to a 0600 JSON file.
type TokenStore struct {
	service      string
	fallbackPath string
	backend      backend
	mu           sync.Mutex
}

// NewTokenStore creates a store. fallbackPath may be empty to disable the
// file fallback.
func NewTokenStore(service, fallbackPath string) *TokenStore {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &TokenStore{service: service, fallbackPath: fallbackPath, backend: osKeyring{}}
}

func (s *TokenStore) account(name string) string {
	return "api-token/" + name
}

// Generate creates, stores and returns a fresh random token
func (s *TokenStore) Generate(name string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("apiauth: generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	if err := s.Set(name, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *TokenStore) Set(name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("apiauth: token name is required")
	}

	err := s.backend.Set(s.service, s.account(name), token)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("apiauth: keyring set: %w", err)
	}
	return s.updateFallback(func(data fallbackTokens) { data[name] = token })
}

func (s *TokenStore) Get(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("apiauth: token name is required")
	}

	val, err := s.backend.Get(s.service, s.account(name))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("apiauth: keyring get: %w", err)
	}

	if s.fallbackPath == "" {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("apiauth: keyring unavailable and no fallback path configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, ferr := s.readFallbackUnlocked()
	if ferr != nil {
		return "", ferr
	}
	tok, ok := data[name]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (s *TokenStore) Delete(name string) error {
	err := s.backend.Delete(s.service, s.account(name))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("apiauth: keyring delete: %w", err)
	}
	if s.fallbackPath == "" {
		return nil
	}
	return s.updateFallback(func(data fallbackTokens) { delete(data, name) })
}

// Check compares a presented token in constant time
func Check(expected, presented string) bool {
	if expected == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackTokens map[string]string

func (s *TokenStore) updateFallback(fn func(fallbackTokens)) error {
	if s.fallbackPath == "" {
		return errors.New("apiauth: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	fn(data)
	return s.writeFallbackUnlocked(data)
}

func (s *TokenStore) readFallbackUnlocked() (fallbackTokens, error) {
	out := fallbackTokens{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("apiauth: read fallback tokens: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("apiauth: decode fallback tokens: %w", err)
	}
	return out, nil
}

func (s *TokenStore) writeFallbackUnlocked(data fallbackTokens) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("apiauth: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("apiauth: encode fallback tokens: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("apiauth: write fallback tokens: %w", err)
	}
	return nil
}
