// Package digest implements the placeholder line "hash" used by the linehash
// protocol. It is a reversible hex encoding of the line's bytes, not a
// cryptographic digest.
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// MaxLineLength is the longest line, in bytes, that can be encoded.
	MaxLineLength = 16

	// Size is the length of every encoded digest: "0x" plus two hex digits
	// for each of the MaxLineLength bytes.
	Size = len(Prefix) + 2*MaxLineLength

	Prefix = "0x"
)

var ErrLineTooLong = errors.New("line is longer than 16 bytes")

// Encode returns "0x" followed by the lowercase hex of each byte of line,
// right padded with '0' to Size characters.
func Encode(line string) (string, error) {
	if len(line) > MaxLineLength {
		return "", fmt.Errorf("cannot encode %q: %w", line, ErrLineTooLong)
	}

	buf := make([]byte, Size)
	copy(buf, Prefix)
	n := hex.Encode(buf[len(Prefix):], []byte(line))

	for i := len(Prefix) + n; i < Size; i++ {
		buf[i] = '0'
	}

	return string(buf), nil
}

// MustEncode is like Encode but panics if line is too long.
func MustEncode(line string) string {
	d, err := Encode(line)
	if err != nil {
		panic(err)
	}

	return d
}
