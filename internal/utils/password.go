package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes plain with bcrypt at the given cost. A cost
// below the bcrypt minimum (a zero-value or misconfigured setting)
// falls back to the library default instead of producing a weak
// hash.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored bcrypt
// hash. The comparison is constant time within bcrypt itself.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
