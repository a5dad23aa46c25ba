package auth

import (
	"crypto/ed25519"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prediction-market-amm/internal/clock"
	"prediction-market-amm/internal/domain"
)

const now = int64(1_700_000_000_000)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, t.Name())
	return ed25519.NewKeyFromSeed(seed)
}

func signed(t *testing.T, priv ed25519.PrivateKey, ts int64, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/markets/abc/bets", strings.NewReader(body))
	require.NoError(t, Sign(r, priv, ts))
	return r
}

func TestVerify_RoundTrip(t *testing.T) {
	priv := newKey(t)
	v := NewVerifier(clock.NewManual(now), 30*time.Second)

	r := signed(t, priv, now, `{"amount":10}`)
	caller, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, base58.Encode(priv.Public().(ed25519.PublicKey)), caller)

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"amount":10}`, string(body), "body is restored for the handler")
}

func TestVerify_Rejections(t *testing.T) {
	priv := newKey(t)
	v := NewVerifier(clock.NewManual(now), 30*time.Second)

	tests := []struct {
		name   string
		mutate func(r *http.Request)
		want   error
	}{
		{"missing headers", func(r *http.Request) { r.Header.Del(HeaderSignature) }, ErrMissingCredentials},
		{"garbage key", func(r *http.Request) { r.Header.Set(HeaderKey, "0OIl") }, ErrInvalidKey},
		{"stale", func(r *http.Request) {
			r.Header.Set(HeaderTimestamp, strconv.FormatInt(now-31_000, 10))
		}, ErrStaleRequest},
		{"future", func(r *http.Request) {
			r.Header.Set(HeaderTimestamp, strconv.FormatInt(now+31_000, 10))
		}, ErrStaleRequest},
		{"tampered body", func(r *http.Request) {
			r.Body = io.NopCloser(strings.NewReader(`{"amount":1000}`))
		}, ErrBadSignature},
		{"other path", func(r *http.Request) { r.URL.Path = "/v1/markets/xyz/bets" }, ErrBadSignature},
		{"short signature", func(r *http.Request) { r.Header.Set(HeaderSignature, base58.Encode([]byte("sig"))) }, ErrBadSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signed(t, priv, now, `{"amount":10}`)
			tt.mutate(r)
			_, err := v.Verify(r)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestVerify_WithinSkew(t *testing.T) {
	priv := newKey(t)
	v := NewVerifier(clock.NewManual(now), 30*time.Second)

	_, err := v.Verify(signed(t, priv, now-30_000, ""))
	assert.NoError(t, err)
}

func TestParseKey(t *testing.T) {
	priv := newKey(t)
	_, err := ParseKey(base58.Encode(priv.Public().(ed25519.PublicKey)))
	assert.NoError(t, err)

	_, err = ParseKey(base58.Encode([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestMessage(t *testing.T) {
	msg := string(Message("POST", "/v1/x", 42, []byte("")))
	assert.Equal(t,
		"POST\n/v1/x\n42\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		msg)
}
