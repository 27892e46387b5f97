package digestqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/model"
)

func TestListKeyFormat(t *testing.T) {
	require.Equal(t, "digest:daily:42", listKey(42, model.DigestDaily))
}

func TestListKeyVariesByFrequency(t *testing.T) {
	daily := listKey(1, model.DigestDaily)
	hourly := listKey(1, model.DigestHourly)
	require.NotEqual(t, daily, hourly)
}
