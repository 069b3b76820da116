package roomid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

func TestCompute_Symmetric(t *testing.T) {
	ab, err := Compute("alice", "bob")
	require.NoError(t, err)
	ba, err := Compute("bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Len(t, ab, 64)
}

func TestCompute_KnownValue(t *testing.T) {
	// sha256("a$b")
	got, err := Compute("b", "a")
	require.NoError(t, err)
	assert.Equal(t, "c7979da2f1d71a30bed66ed5c4740c1299de902bc8504283aceb7def06aa02fa", got)

	again, err := Compute("a", "b")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestCompute_DistinctPairs(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 50; i++ {
		for j := i + 1; j < 50; j++ {
			a, b := fmt.Sprintf("u%d", i), fmt.Sprintf("u%d", j)
			id, err := Compute(a, b)
			require.NoError(t, err)
			pair := a + "," + b
			if prev, dup := seen[id]; dup {
				t.Fatalf("collision between %s and %s", prev, pair)
			}
			seen[id] = pair
		}
	}
}

func TestCompute_SeparatorAmbiguity(t *testing.T) {
	_, err := Compute("a$b", "c")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
}

func TestCompute_RejectsEmpty(t *testing.T) {
	_, err := Compute("", "bob")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
	_, err = Compute("alice", "  ")
	assert.ErrorIs(t, err, chaterr.ErrValidation)
}

func TestCanonical(t *testing.T) {
	lo, hi := Canonical("z", "a")
	assert.Equal(t, "a", lo)
	assert.Equal(t, "z", hi)
}
