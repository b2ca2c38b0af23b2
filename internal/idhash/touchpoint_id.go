package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeTouchpointID computes a deterministic touchpoint_id for payloads
// submitted without one.
// Formula: SHA256(tenant_id|identity_key|occurred_at|channel|campaign|page_url|order_id)
// Returns base58-encoded hash.
func ComputeTouchpointID(
	tenantID string,
	identityKey string,
	occurredAt int64,
	channel string,
	campaign string,
	pageURL string,
	orderID string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s",
		tenantID,
		identityKey,
		occurredAt,
		channel,
		campaign,
		pageURL,
		orderID,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
