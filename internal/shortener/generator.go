package shortener

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the 62-character set codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomGenerator draws each character independently and uniformly from Alphabet
// using a cryptographic random source.
type RandomGenerator struct{}

func NewRandomGenerator() RandomGenerator { return RandomGenerator{} }

func (RandomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: code length must be positive, got %d", ErrInvalidInput, length)
	}
	code, err := gonanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

var _ Generator = RandomGenerator{}
