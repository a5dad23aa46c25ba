// Package auth verifies signed requests. A caller signs
//
//	METHOD "\n" PATH "\n" TIMESTAMP_MS "\n" hex(sha256(BODY))
//
// with its ed25519 key and sends the base58 public key, the timestamp and
// the base58 signature in headers. The verified public key becomes the
// caller identity passed to the engine.
package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"prediction-market-amm/internal/address"
	"prediction-market-amm/internal/clock"
	"prediction-market-amm/internal/domain"
)

// Request headers.
const (
	HeaderKey       = "X-PM-Key"
	HeaderTimestamp = "X-PM-Timestamp"
	HeaderSignature = "X-PM-Signature"
)

// maxBody bounds the body read for hashing.
const maxBody = 1 << 20

// Errors wrap domain.ErrUnauthorized.
var (
	ErrMissingCredentials = fmt.Errorf("%w: missing signature headers", domain.ErrUnauthorized)
	ErrInvalidKey         = fmt.Errorf("%w: invalid public key", domain.ErrUnauthorized)
	ErrBadSignature       = fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
	ErrStaleRequest       = fmt.Errorf("%w: timestamp outside allowed skew", domain.ErrUnauthorized)
)

// Message builds the canonical signed message.
func Message(method, path string, timestamp int64, body []byte) []byte {
	sum := sha256.Sum256(body)
	return []byte(method + "\n" + path + "\n" + strconv.FormatInt(timestamp, 10) + "\n" + hex.EncodeToString(sum[:]))
}

// ParseKey decodes a base58 ed25519 public key. The key must decode to a
// curve point, which rules out derived record addresses.
func ParseKey(s string) (ed25519.PublicKey, error) {
	key, err := address.ParsePublicKey(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if !address.IsOnCurve(key) {
		return nil, fmt.Errorf("%w: not on curve", ErrInvalidKey)
	}
	return ed25519.PublicKey(key), nil
}

// Sign sets the signature headers on r for priv at timestamp. It reads and
// restores r.Body.
func Sign(r *http.Request, priv ed25519.PrivateKey, timestamp int64) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(priv, Message(r.Method, r.URL.Path, timestamp, body))

	r.Header.Set(HeaderKey, base58.Encode(priv.Public().(ed25519.PublicKey)))
	r.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	r.Header.Set(HeaderSignature, base58.Encode(sig))
	return nil
}

// Verifier checks request signatures.
type Verifier struct {
	clock   clock.Clock
	maxSkew time.Duration
}

// NewVerifier creates a Verifier accepting timestamps within maxSkew of clk.
func NewVerifier(clk clock.Clock, maxSkew time.Duration) *Verifier {
	if clk == nil {
		clk = clock.System{}
	}
	return &Verifier{clock: clk, maxSkew: maxSkew}
}

// Verify returns the base58 public key that signed r. It reads and restores
// r.Body.
func (v *Verifier) Verify(r *http.Request) (string, error) {
	keyStr := r.Header.Get(HeaderKey)
	tsStr := r.Header.Get(HeaderTimestamp)
	sigStr := r.Header.Get(HeaderSignature)
	if keyStr == "" || tsStr == "" || sigStr == "" {
		return "", ErrMissingCredentials
	}

	key, err := ParseKey(keyStr)
	if err != nil {
		return "", err
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: timestamp %q", ErrStaleRequest, tsStr)
	}
	if skew := time.Duration(abs(v.clock.NowMs()-ts)) * time.Millisecond; skew > v.maxSkew {
		return "", fmt.Errorf("%w: %s", ErrStaleRequest, skew)
	}
	sig, err := base58.Decode(sigStr)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return "", ErrBadSignature
	}

	body, err := readBody(r)
	if err != nil {
		return "", err
	}
	if !ed25519.Verify(key, Message(r.Method, r.URL.Path, ts, body), sig) {
		return "", ErrBadSignature
	}
	return keyStr, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
