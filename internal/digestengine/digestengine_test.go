package digestengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/model"
)

func TestComposeDigestIncludesEveryEntry(t *testing.T) {
	entries := []model.DigestEntry{
		{Title: "Transfer completed", Body: "Your transfer of $50 completed.", CreatedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		{Title: "Statement ready", Body: "Your statement for December is ready.", CreatedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
	}

	title, body := composeDigest(model.DigestDaily, entries)

	require.Contains(t, title, "2 notifications")
	require.Contains(t, body, "Transfer completed")
	require.Contains(t, body, "Statement ready")
}

func TestComposeDigestEmptyStillProducesHeader(t *testing.T) {
	title, body := composeDigest(model.DigestHourly, nil)
	require.Contains(t, title, "0 notifications")
	require.Contains(t, body, "hourly summary")
}
