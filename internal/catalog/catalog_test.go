package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/model"
)

func TestLookupKnownKind(t *testing.T) {
	cfg, ok := Lookup("fraud_detected")
	require.True(t, ok)
	require.Equal(t, model.PriorityCritical, cfg.DefaultPriority)
	require.True(t, cfg.BypassQuietHours)
}

func TestLookupUnknownKind(t *testing.T) {
	_, ok := Lookup("not_a_real_kind")
	require.False(t, ok)
}

func TestAllReturnsAFreshCopy(t *testing.T) {
	all := All()
	require.Len(t, all, len(kinds))

	original := all[0].Kind
	all[0].Kind = "mutated"

	again, _ := Lookup(original)
	require.Equal(t, original, again.Kind, "mutating the slice returned by All() should not affect the catalog")
}

func TestDigestEligibleKindsDoNotBypassCriticalPolicy(t *testing.T) {
	for _, cfg := range All() {
		if cfg.DefaultPriority == model.PriorityCritical {
			require.False(t, cfg.DigestEligible, "kind %q is critical priority but marked digest-eligible", cfg.Kind)
		}
	}
}
