package mgmttoken

import (
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, clock *testClock) *Service {
	t.Helper()
	svc, err := NewService(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return svc
}

func TestNewService_ShortSecret(t *testing.T) {
	_, err := NewService("too-short")
	assert.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	tok, err := svc.Issue("user-123")
	require.NoError(t, err)
	assert.Equal(t, clock.now.Add(DefaultTTL), tok.ExpiresAt)
	assert.True(t, strings.HasPrefix(tok.Value, "user-123."))
	assert.Len(t, strings.Split(tok.Value, "."), 3)

	verified, err := svc.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-123", verified.UserID)
	assert.Equal(t, tok.ExpiresAt, verified.ExpiresAt)
}

func TestVerify_Expiry(t *testing.T) {
	issuedAt := time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)
	clock := &testClock{now: issuedAt}
	svc := newTestService(t, clock)

	tok, err := svc.IssueWithTTL("user-123", 300*time.Second)
	require.NoError(t, err)

	clock.now = issuedAt.Add(299 * time.Second)
	_, err = svc.Verify(tok.Value)
	assert.NoError(t, err)

	clock.now = issuedAt.Add(300 * time.Second)
	_, err = svc.Verify(tok.Value)
	assert.NoError(t, err, "token is valid up to and including its expiry instant")

	clock.now = issuedAt.Add(301 * time.Second)
	_, err = svc.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_BitFlip(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	tok, err := svc.Issue("user-123")
	require.NoError(t, err)

	idx := strings.LastIndexByte(tok.Value, '.')
	sig, err := hex.DecodeString(tok.Value[idx+1:])
	require.NoError(t, err)

	for bit := 0; bit < len(sig)*8; bit += 37 {
		flipped := append([]byte(nil), sig...)
		flipped[bit/8] ^= 1 << (bit % 8)
		_, err := svc.Verify(tok.Value[:idx+1] + hex.EncodeToString(flipped))
		assert.ErrorIs(t, err, ErrSignatureMismatch)
	}
}

func TestVerify_TamperedClaims(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	tok, err := svc.Issue("user-123")
	require.NoError(t, err)
	parts := strings.Split(tok.Value, ".")

	_, err = svc.Verify("user-456." + parts[1] + "." + parts[2])
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = svc.Verify(parts[0] + ".9999999999999." + parts[2])
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_OtherKey(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	tok, err := newTestService(t, clock).Issue("user-123")
	require.NoError(t, err)

	other, err := NewService(strings.Repeat("z", 40), WithClock(clock.Now))
	require.NoError(t, err)
	_, err = other.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_UserIDWithDots(t *testing.T) {
	clock := &testClock{now: time.Date(2024, 1, 18, 10, 0, 0, 0, time.UTC)}
	svc := newTestService(t, clock)

	tok, err := svc.Issue("jane.doe@example.com")
	require.NoError(t, err)
	verified, err := svc.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", verified.UserID)
}

func TestVerify_InvalidFormat(t *testing.T) {
	svc := newTestService(t, &testClock{now: time.Now()})

	for _, value := range []string{
		"",
		"no-dots",
		"user.123",
		".123.abcd",
		"user.notanumber." + strings.Repeat("a", 64),
		"user.123.nothex",
		"user.123." + strings.Repeat("a", 10),
		"user.-5." + strings.Repeat("a", 64),
	} {
		_, err := svc.Verify(value)
		assert.ErrorIs(t, err, ErrInvalidFormat, value)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey(testSecret)
	require.NoError(t, err)
	b, err := DeriveKey(testSecret)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, []byte(testSecret), a)
}
