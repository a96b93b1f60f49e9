package pn

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/roman-kulish/pn-raman/internal/driver"
)

// Seed is the initial register state. Any value with the least-significant bit set works,
// it is fixed so that every run emits the same codes.
const Seed uint32 = 0x1

// ErrUnsupportedLength is returned for code lengths without a characteristic polynomial
var ErrUnsupportedLength = errors.New("unsupported PN code length")

// polynomials maps a code length to the Galois feedback mask of its characteristic polynomial.
// The leading x^n and the constant +1 terms are implicit.
var polynomials = map[int]uint32{
	32:   0b10100,      // x^5 + x^3 + 1
	64:   0b110000,     // x^6 + x^5 + 1
	128:  0b1100000,    // x^7 + x^6 + 1
	256:  0b10111000,   // x^8 + x^6 + x^5 + x^4 + 1
	512:  0b100010000,  // x^9 + x^5 + 1
	1024: 0b1001000000, // x^10 + x^7 + 1
}

var supportedLengths = []int{32, 64, 128, 256, 512, 1024}

// GenerationError is returned when the register period does not match the requested code
// length. It indicates a corrupted polynomial table and is not a runtime condition.
type GenerationError struct {
	Length int // requested code length
	Period int // register clocks before the state returned to the seed, 0 if it never did
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("pn: %d-bit code has register period %d, want %d", e.Length, e.Period, e.Length-1)
}

// Code is an immutable maximal-length binary sequence
type Code struct {
	bits []uint8
}

// Len returns the number of bits in the code
func (c Code) Len() int {
	return len(c.bits)
}

// Bit returns the i-th bit (0 or 1)
func (c Code) Bit(i int) uint8 {
	return c.bits[i]
}

// Bits returns a copy of the code bits
func (c Code) Bits() []uint8 {
	out := make([]uint8, len(c.bits))
	copy(out, c.bits)
	return out
}

// Ones returns the number of set bits
func (c Code) Ones() int {
	var n int
	for _, b := range c.bits {
		n += int(b)
	}
	return n
}

func (c Code) String() string {
	var sb strings.Builder
	sb.Grow(len(c.bits))
	for _, b := range c.bits {
		sb.WriteByte('0' + b)
	}
	return sb.String()
}

// SupportedLengths returns the code lengths which have a characteristic polynomial
func SupportedLengths() []int {
	out := make([]int, len(supportedLengths))
	copy(out, supportedLengths)
	return out
}

// IsSupported reports whether length has a characteristic polynomial
func IsSupported(length int) bool {
	_, ok := polynomials[length]
	return ok
}

// Step clocks the Galois register once and returns the output bit and the next state
func Step(state, mask uint32) (bit uint8, next uint32) {
	bit = uint8(state & 1)
	next = state >> 1
	if bit == 1 {
		next ^= mask
	}
	return bit, next
}

// Period returns the number of clocks after which the register returns to seed.
// limit bounds the search, 0 is returned when the register does not recur within it.
func Period(mask, seed uint32, limit int) int {
	state := seed
	for i := 1; i <= limit; i++ {
		_, state = Step(state, mask)
		if state == seed {
			return i
		}
	}
	return 0
}

type cached struct {
	once sync.Once
	code Code
	err  error
}

var cache = func() map[int]*cached {
	m := make(map[int]*cached, len(polynomials))
	for length := range polynomials {
		m[length] = &cached{}
	}
	return m
}()

// Generate returns the maximal-length code of the given length. The code starts with the
// seed's own output bit followed by every bit clocked out until the register returns to the
// seed; a maximal n-bit register visits 2^n-1 states, so the code is exactly 2^n bits long.
// Codes are computed once per process.
func Generate(length int) (Code, error) {
	c, ok := cache[length]
	if !ok {
		return Code{}, driver.WrapConfigError(fmt.Sprintf("pn: length %d", length), ErrUnsupportedLength)
	}

	c.once.Do(func() {
		c.code, c.err = generate(length, polynomials[length], Seed)
	})
	return c.code, c.err
}

func generate(length int, mask, seed uint32) (Code, error) {
	bits := make([]uint8, 1, length)
	bits[0] = uint8(seed & 1)

	state := seed
	for {
		var bit uint8
		bit, state = Step(state, mask)
		bits = append(bits, bit)

		if state == seed {
			break
		}
		if len(bits) > length {
			return Code{}, &GenerationError{Length: length}
		}
	}

	if len(bits) != length {
		return Code{}, &GenerationError{Length: length, Period: len(bits) - 1}
	}
	return Code{bits: bits}, nil
}

// MustGenerateAll generates every supported code and panics on a corrupted polynomial table.
// Run it once at startup.
func MustGenerateAll() {
	for _, length := range supportedLengths {
		if _, err := Generate(length); err != nil {
			panic(err)
		}
	}
}
