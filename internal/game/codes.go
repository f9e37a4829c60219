package game

import "math/rand"

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a match code.
const CodeLength = 6

// GenerateCode returns a random match code. Uniqueness among active
// matches is the caller's job (retried against the code registry).
func GenerateCode(rnd *rand.Rand) string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
