package hangmen

import (
	"crypto/rand"
	"io"
)

const (
	pinAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	pinLength   = 6

	// Bytes at or above this are discarded so every symbol is equally likely.
	pinByteLimit = 256 - 256%len(pinAlphabet)
)

// NewPin returns a random lowercase alphanumeric pin from crypto/rand.
func NewPin() string {
	pin, err := readPin(rand.Reader)
	if err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return pin
}

func readPin(r io.Reader) (string, error) {
	out := make([]byte, 0, pinLength)
	buf := make([]byte, pinLength)

	for len(out) < pinLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= pinByteLimit {
				continue
			}
			out = append(out, pinAlphabet[int(b)%len(pinAlphabet)])
			if len(out) == pinLength {
				break
			}
		}
	}

	return string(out), nil
}
