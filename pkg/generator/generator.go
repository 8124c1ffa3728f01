package generator

import (
	"crypto/rand"
	"fmt"
)

// Alphabet is the 62-symbol set short codes and user ids are drawn from.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CodeLength is the fixed length of every generated code.
const CodeLength = 6

// maxUnbiasedByte is the largest byte value that maps onto the alphabet
// without modulo bias. 256 is not a multiple of 62, so bytes at or above
// this value are discarded and redrawn.
const maxUnbiasedByte = 256 - (256 % len(Alphabet))

// Generate returns a CodeLength-character code drawn uniformly, with
// replacement, from Alphabet. Codes are random, not sequential, so the
// generator makes no uniqueness guarantee; callers must check new codes
// against existing keys before committing a record.
func Generate() (string, error) {
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength)

	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}

	return string(code), nil
}
