package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserKey(t *testing.T) {
	assert.Equal(t, "presence:user:u1", userKey("u1"))
}

func TestRecordHashRoundTrip(t *testing.T) {
	rec := Record{IsOnline: true, LastActive: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	h := recordToHash(rec)
	assert.Equal(t, "1", h[fieldIsOnline])

	got, err := recordFromHash(map[string]string{
		fieldIsOnline:   "1",
		fieldLastActive: "1714564800000",
	})
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRecordFromHash_Missing(t *testing.T) {
	got, err := recordFromHash(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Record{}, got)

	_, err = recordFromHash(map[string]string{fieldLastActive: "yesterday"})
	assert.Error(t, err)
}
