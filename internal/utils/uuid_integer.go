package utils

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// UUIDToInteger packs the 16 bytes of a UUID, big-endian, into an unsigned
// 128-bit integer. This is the encoding instrument contracts use for
// settlement transaction and operation ids.
func UUIDToInteger(id string) (*big.Int, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", id, err)
	}
	return new(big.Int).SetBytes(u[:]), nil
}

// IntegerToUUID is the inverse of UUIDToInteger
func IntegerToUUID(n *big.Int) (string, error) {
	if n == nil {
		return "", fmt.Errorf("nil integer")
	}
	if n.Sign() < 0 {
		return "", fmt.Errorf("negative integer %s cannot encode a uuid", n)
	}
	if n.BitLen() > 128 {
		return "", fmt.Errorf("integer %s exceeds 128 bits", n)
	}

	var u uuid.UUID
	n.FillBytes(u[:])
	return u.String(), nil
}

// IsValidUUID reports whether s parses as a UUID
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
