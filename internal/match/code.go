package match

import (
	"crypto/rand"
	"strings"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud or hand-typed.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

// NewCode returns a random match code. len(codeAlphabet) divides 256, so byte%32 is unbiased.
func NewCode() (string, error) {
	b := make([]byte, CodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

// NormalizeID trims and upper-cases a user-supplied match code.
func NormalizeID(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// ValidID reports whether s (already normalized) could be a code issued by NewCode.
func ValidID(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(codeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
