package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Accounts seeded before the argon2id migration carry bcrypt digests. They are
// accepted for verification only; Hash never emits them.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

func isBcrypt(digest string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(digest, prefix) {
			return true
		}
	}
	return false
}

func verifyBcrypt(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
