package token

import (
	"strings"
	"testing"
	"time"

	"videoverse/video-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

// newTestService returns a service with a controllable clock.
func newTestService(secret string) (*tokenService, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(secret).(*tokenService)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, _ := newTestService(testSecret)

	signed, err := svc.Issue("asset-123", 60*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	assetID, err := svc.Verify(signed, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "asset-123", assetID)
}

func TestVerifyAfterExpiry(t *testing.T) {
	svc, now := newTestService(testSecret)

	signed, err := svc.Issue("asset-123", 60*time.Second)
	require.NoError(t, err)

	// Valid right up to the expiry instant.
	*now = now.Add(59 * time.Second)
	_, err = svc.Verify(signed, time.Hour)
	require.NoError(t, err)

	// Past the embedded expiry.
	*now = now.Add(2 * time.Second)
	_, err = svc.Verify(signed, time.Hour)
	assert.ErrorIs(t, err, ErrExpired)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyMaxAgeCap(t *testing.T) {
	svc, now := newTestService(testSecret)

	signed, err := svc.Issue("asset-123", 24*time.Hour)
	require.NoError(t, err)

	// Embedded expiry is far away, but the caller caps token age.
	*now = now.Add(2 * time.Hour)
	_, err = svc.Verify(signed, time.Hour)
	assert.ErrorIs(t, err, ErrExpired)

	// maxAge <= 0 disables the cap.
	_, err = svc.Verify(signed, 0)
	assert.NoError(t, err)
}

func TestVerifyTamperedPayload(t *testing.T) {
	svc, _ := newTestService(testSecret)

	signed, err := svc.Issue("asset-123", time.Minute)
	require.NoError(t, err)

	// Flip a character in the payload segment.
	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = svc.Verify(tampered, time.Hour)
	assert.ErrorIs(t, err, domain.ErrSecurity)
}

func TestVerifyWrongKey(t *testing.T) {
	issuer, _ := newTestService(testSecret)
	verifier, _ := newTestService("a-different-secret")

	signed, err := issuer.Issue("asset-123", time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(signed, time.Hour)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyMalformed(t *testing.T) {
	svc, _ := newTestService(testSecret)

	for _, input := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := svc.Verify(input, time.Hour)
		assert.Error(t, err, "input %q", input)
	}
}

func TestIssueValidation(t *testing.T) {
	svc, _ := newTestService(testSecret)

	_, err := svc.Issue("", time.Minute)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Issue("asset-123", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewServicePanicsWithoutSecret(t *testing.T) {
	assert.Panics(t, func() { NewService("") })
}
