package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeReportKey computes a deterministic cache key for a report.
// Formula: SHA256(kind|tenant_id|start_ms|end_ms|model_key)
// Returns hex-encoded hash (64 characters).
func ComputeReportKey(
	kind string,
	tenantID string,
	startMs int64,
	endMs int64,
	modelKey string,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%s",
		kind,
		tenantID,
		startMs,
		endMs,
		modelKey,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
