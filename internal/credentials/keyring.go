package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name used when none is configured.
const DefaultService = "rps-canvas"

const partToken = "token"

// ErrNotFound is returned when no token is stored for an account.
var ErrNotFound = keyring.ErrNotFound

// Store keeps API tokens in the OS keychain with an optional JSON file
// fallback for hosts that have no keyring daemon (containers, CI).
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewStore creates a keyring-backed token store.
func NewStore(service, fallbackPath string) *Store {
	if strings.TrimSpace(service) == "" {
		service = DefaultService
	}
	return &Store{
		service:      service,
		fallbackPath: fallbackPath,
	}
}

// Service returns the keyring service name.
func (s *Store) Service() string { return s.service }

func (s *Store) key(account string) string {
	return fmt.Sprintf("%s/%s", account, partToken)
}

// Set stores the token for account.
func (s *Store) Set(account, token string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("credentials: account is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: token is required")
	}

	if err := keyring.Set(s.service, s.key(account), token); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring set: %w", err)
	}
	return s.setFallback(account, token)
}

// Get returns the token for account, or ErrNotFound.
func (s *Store) Get(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", fmt.Errorf("credentials: account is required")
	}

	val, err := keyring.Get(s.service, s.key(account))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("credentials: keyring get: %w", err)
	}

	fallback, ferr := s.getFallback(account)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes the token for account from the keyring and the fallback
// file. Deleting a missing token is not an error.
func (s *Store) Delete(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("credentials: account is required")
	}

	err := keyring.Delete(s.service, s.key(account))
	ferr := s.deleteFallback(account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("credentials: keyring delete: %w", err)
	}
	return ferr
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

func (s *Store) setFallback(account, token string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("credentials: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[account] = token
	return s.writeFallbackUnlocked(data)
}

func (s *Store) getFallback(account string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", fmt.Errorf("credentials: fallback path not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[account]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return val, nil
}

func (s *Store) deleteFallback(account string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[account]; !ok {
		return nil
	}
	delete(data, account)
	return s.writeFallbackUnlocked(data)
}

func (s *Store) readFallbackUnlocked() (fallbackTokens, error) {
	out := fallbackTokens{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("credentials: read fallback tokens: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("credentials: decode fallback tokens: %w", err)
	}
	return out, nil
}

func (s *Store) writeFallbackUnlocked(data fallbackTokens) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("credentials: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("credentials: encode fallback tokens: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("credentials: write fallback tokens: %w", err)
	}
	return nil
}
