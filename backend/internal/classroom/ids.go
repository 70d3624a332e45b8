package classroom

import (
	"github.com/pion/randutil"
)

const (
	// ClassIDLength is the length of the shareable classroom code, e.g. "AB12CD34".
	ClassIDLength = 8

	classIDRunes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxIDAttempts bounds the collision loop. With 36^8 codes a miss here means
	// the registry is effectively full.
	maxIDAttempts = 16
)

// NewClassID returns a random, easy to share classroom code.
func NewClassID() (string, error) {
	return randutil.GenerateCryptoRandomString(ClassIDLength, classIDRunes)
}
