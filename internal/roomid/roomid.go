// Package roomid derives the channel token shared by the two participants
// of a direct conversation.
package roomid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

// Separator joins the sorted pair before hashing. Ids containing it are
// rejected so that distinct pairs never concatenate to the same string.
const Separator = "$"

// Compute returns hex(sha256(min + "$" + max)). The result does not depend
// on argument order.
func Compute(userA, userB string) (string, error) {
	if err := validate(userA); err != nil {
		return "", err
	}
	if err := validate(userB); err != nil {
		return "", err
	}

	lo, hi := Canonical(userA, userB)
	sum := sha256.Sum256([]byte(lo + Separator + hi))
	return hex.EncodeToString(sum[:]), nil
}

// Canonical orders a pair lexicographically.
func Canonical(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return chaterr.Validation("user id must not be empty")
	}
	if strings.Contains(id, Separator) {
		return chaterr.Validation("user id %q contains reserved separator", id)
	}
	return nil
}
