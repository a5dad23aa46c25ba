package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"prediction-market-amm/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(market|event_type|actor|sequence)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	market string,
	eventType domain.EventType,
	actor string,
	sequence int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		market,
		string(eventType),
		actor,
		sequence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
