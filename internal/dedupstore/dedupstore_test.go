package dedupstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyUsesNoneForEmptySourceID(t *testing.T) {
	require.Equal(t, "dedup:42:fraud_detected:none", key(42, "fraud_detected", ""))
}

func TestKeyIncludesSourceID(t *testing.T) {
	require.Equal(t, "dedup:42:transfer_completed:txn-123", key(42, "transfer_completed", "txn-123"))
}

func TestEncodeDecodeEntryRoundTrip(t *testing.T) {
	seenAt := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	id, decodedAt := decodeEntry(encodeEntry("notif-1", seenAt))
	require.Equal(t, "notif-1", id)
	require.True(t, seenAt.Equal(decodedAt))
}

func TestDecodeEntryTolerateLegacyBareID(t *testing.T) {
	id, seenAt := decodeEntry("notif-legacy")
	require.Equal(t, "notif-legacy", id)
	require.True(t, seenAt.IsZero())
}
