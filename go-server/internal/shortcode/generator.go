package shortcode

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand/v2"
	"strings"
	"sync"
)

const (
	// Alphabet is the set of symbols a short code is drawn from
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	DefaultLength = 6
	MinLength     = 3
	MaxLength     = 10

	StrategyRandom = "random"
	StrategyHash   = "hash"
)

// largest multiple of len(Alphabet) that fits in a byte
const rejectAbove = 256 - 256%len(Alphabet)

var ErrUnknownStrategy = errors.New("unknown short code strategy")

// Generator produces candidate short codes. It never consults the store,
// so callers own collision handling.
type Generator interface {
	Generate(input string, length int) string
}

// New returns the generator registered under strategy.
// src feeds the random strategy; nil means crypto/rand.
func New(strategy string, src io.Reader) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "", StrategyRandom:
		return NewRandomGenerator(src), nil
	case StrategyHash:
		return NewHashGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// RandomGenerator picks every symbol uniformly from Alphabet. The input is ignored.
type RandomGenerator struct {
	mu  sync.Mutex
	src io.Reader
}

func NewRandomGenerator(src io.Reader) *RandomGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &RandomGenerator{src: src}
}

func (g *RandomGenerator) Generate(_ string, length int) string {
	if length <= 0 {
		length = DefaultLength
	}

	code := make([]byte, 0, length)
	buf := make([]byte, length)

	g.mu.Lock()
	defer g.mu.Unlock()

	for len(code) < length {
		if _, err := io.ReadFull(g.src, buf); err != nil {
			// entropy source failed, finish with the process PRNG
			for len(code) < length {
				code = append(code, Alphabet[mrand.IntN(len(Alphabet))])
			}
			break
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == length {
				break
			}
		}
	}

	return string(code)
}

// HashGenerator derives the code from the SHA-256 digest of the input.
// The same input and length always give the same code.
type HashGenerator struct{}

func NewHashGenerator() *HashGenerator {
	return &HashGenerator{}
}

func (g *HashGenerator) Generate(input string, length int) string {
	if length <= 0 {
		length = DefaultLength
	}

	var sb strings.Builder
	digest := sha256.Sum256([]byte(input))
	for sb.Len() < length {
		sb.WriteString(base62(digest[:]))
		digest = sha256.Sum256(digest[:])
	}

	encoded := sb.String()
	// low-order digits are closest to uniform
	return encoded[len(encoded)-length:]
}

// base62 renders b as a fixed-width big-endian number in Alphabet.
func base62(b []byte) string {
	const width = 43 // ceil(256 / log2(62))

	n := new(big.Int).SetBytes(b)
	base := big.NewInt(int64(len(Alphabet)))
	mod := new(big.Int)

	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		out[i] = Alphabet[mod.Int64()]
	}
	return string(out)
}

// IsValid reports whether code has an allowed length and only Alphabet symbols
func IsValid(code string) bool {
	if len(code) < MinLength || len(code) > MaxLength {
		return false
	}
	for _, char := range code {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9')) {
			return false
		}
	}
	return true
}
