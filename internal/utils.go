package internal

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomInt returns a secure random integer in the range [0, maxInt).
func RandomInt(maxInt int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxInt)))
	if err != nil {
		panic(err)
	}
	return int(n.Int64())
}

// RandomBytes helper function allows to generate a random byte slice of n bytes.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

// RandomHex helper function allows to generate a random hex string of n bytes.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// RandomNumericString generates a CSPRNG numeric string of the given length,
// one decimal digit at a time.
func RandomNumericString(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		digits[i] = byte('0' + RandomInt(10))
	}
	return string(digits)
}
