package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// maxIDAttempts bounds the collision retry loop. The keyspace holds
// 26 * 10^4 ids, so hitting the bound means the auction is effectively full.
const maxIDAttempts = 10000

// IDGenerator produces candidate item ids
type IDGenerator func() string

// RandomItemID returns one uppercase letter followed by four digits
func RandomItemID() string {
	return fmt.Sprintf("%c%04d", 'A'+rune(rand.IntN(26)), rand.IntN(10000))
}

// NormalizeItemID upper-cases user-typed ids ("a1234" -> "A1234")
func NormalizeItemID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidItemID reports whether id has the letter + four digits shape
func ValidItemID(id string) bool {
	if len(id) != 5 {
		return false
	}
	if id[0] < 'A' || id[0] > 'Z' {
		return false
	}
	for i := 1; i < 5; i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}
