// Package address derives deterministic record addresses the way the market
// program lays out its accounts: a SHA-256 of the seeds, a bump byte, the
// program id and a fixed marker, searched downward from bump 255 until the
// digest is not a valid ed25519 point.
package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	pdaMarker = "ProgramDerivedAddress"
	keyLen    = 32
)

// ErrNoViableBump is returned when every bump yields an on-curve digest.
var ErrNoViableBump = errors.New("no viable bump seed")

// Deriver derives addresses under one program id.
type Deriver struct {
	programID []byte
}

// NewDeriver decodes a base58 program id.
func NewDeriver(programID string) (*Deriver, error) {
	key, err := ParsePublicKey(programID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	return &Deriver{programID: key}, nil
}

// Market derives ("market", marketID).
func (d *Deriver) Market(marketID string) (string, error) {
	return d.derive([]byte("market"), []byte(marketID))
}

// Position derives ("position", owner, market).
func (d *Deriver) Position(owner, market string) (string, error) {
	return d.derive([]byte("position"), []byte(owner), []byte(market))
}

// Vault derives ("vault", market), the ledger account holding stakes.
func (d *Deriver) Vault(market string) (string, error) {
	return d.derive([]byte("vault"), []byte(market))
}

// Pool derives ("pool", market).
func (d *Deriver) Pool(market string) (string, error) {
	return d.derive([]byte("pool"), []byte(market))
}

func (d *Deriver) derive(seeds ...[]byte) (string, error) {
	addr, _, err := FindProgramAddress(seeds, d.programID)
	return addr, err
}

// FindProgramAddress returns the first off-curve address and its bump.
func FindProgramAddress(seeds [][]byte, programID []byte) (string, byte, error) {
	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, pdaMarker...)

		hash := sha256.Sum256(data)
		if !IsOnCurve(hash[:]) {
			return base58.Encode(hash[:]), bump, nil
		}
	}
	return "", 0, ErrNoViableBump
}

// IsOnCurve reports whether point decodes as an ed25519 point.
func IsOnCurve(point []byte) bool {
	if len(point) != keyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// ParsePublicKey decodes a base58 key and checks its length.
func ParsePublicKey(s string) ([]byte, error) {
	key, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58: %w", err)
	}
	if len(key) != keyLen {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyLen, len(key))
	}
	return key, nil
}
