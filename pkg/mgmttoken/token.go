// Package mgmttoken issues and verifies short-lived, stateless tokens that let
// a user manage their devices outside an authenticated session, for example
// from a link in a notification email.
//
// A token has the form
//
//	<userID>.<expiresAtEpochMillis>.<hex(HMAC-SHA256(key, userID + "." + expiresAt))>
//
// Nothing is stored server side; a token stays valid until it expires.
package mgmttoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	DefaultTTL = 300 * time.Second

	// MinSecretLength is the minimum length of the configured secret in bytes
	MinSecretLength = 32

	keyInfo = "device-management-token-v1"
)

var (
	ErrInvalidFormat     = errors.New("malformed management token")
	ErrExpired           = errors.New("management token expired")
	ErrSignatureMismatch = errors.New("management token signature mismatch")
)

// Token is an issued token together with its decoded claims
type Token struct {
	Value     string
	UserID    string
	ExpiresAt time.Time
}

// Service signs and verifies management tokens with a single symmetric key
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithTTL sets the lifetime of tokens issued by Issue
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// DeriveKey expands the configured secret into a 32-byte HMAC key with HKDF-SHA256
func DeriveKey(secret string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("management token secret must be at least %d bytes", MinSecretLength)
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive management token key: %w", err)
	}
	return key, nil
}

// NewService creates a token service from a secret of at least MinSecretLength bytes
func NewService(secret string, opts ...Option) (*Service, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	s := &Service{
		key: key,
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ttl <= 0 {
		return nil, fmt.Errorf("management token ttl must be positive, got %s", s.ttl)
	}
	return s, nil
}

// TTL returns the default lifetime of issued tokens
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates a token for userID that expires after the configured TTL
func (s *Service) Issue(userID string) (Token, error) {
	return s.IssueWithTTL(userID, s.ttl)
}

// IssueWithTTL creates a token for userID with an explicit lifetime
func (s *Service) IssueWithTTL(userID string, ttl time.Duration) (Token, error) {
	if userID == "" {
		return Token{}, fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return Token{}, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	expiresAt := s.now().Add(ttl).UnixMilli()
	payload := userID + "." + strconv.FormatInt(expiresAt, 10)
	return Token{
		Value:     payload + "." + hex.EncodeToString(s.sign(payload)),
		UserID:    userID,
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// Verify checks the signature first and the expiry second. It returns one of
// ErrInvalidFormat, ErrExpired or ErrSignatureMismatch on failure; callers
// exposing the result to clients must not reveal which.
func (s *Service) Verify(value string) (Token, error) {
	// The user id may itself contain dots, so split from the right.
	sigIdx := strings.LastIndexByte(value, '.')
	if sigIdx <= 0 {
		return Token{}, ErrInvalidFormat
	}
	payload, sigHex := value[:sigIdx], value[sigIdx+1:]

	expIdx := strings.LastIndexByte(payload, '.')
	if expIdx <= 0 {
		return Token{}, ErrInvalidFormat
	}
	userID, expRaw := payload[:expIdx], payload[expIdx+1:]

	expiresAt, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil || expiresAt <= 0 {
		return Token{}, ErrInvalidFormat
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != sha256.Size {
		return Token{}, ErrInvalidFormat
	}

	if !hmac.Equal(sig, s.sign(payload)) {
		return Token{}, ErrSignatureMismatch
	}
	if s.now().UnixMilli() > expiresAt {
		return Token{}, ErrExpired
	}

	return Token{
		Value:     value,
		UserID:    userID,
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}

func (s *Service) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
