// Package roundid generates round identifiers: UUIDv7 values encoded as 26
// lowercase Crockford base32 characters, so ids sort by creation time.
package roundid

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Crockford's base32, lower case
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the size of an encoded id
const Length = 26

var decodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = 0xff
	}
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	return m
}()

// Generator creates ids from a source of randomness
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading random bits from r. A nil reader
// uses crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// New creates an id using crypto/rand
func New() string {
	return NewGenerator(nil).New()
}

// New creates an id
func (g *Generator) New() string {
	var (
		u   uuid.UUID
		err error
	)
	if g.rand == nil {
		u, err = uuid.NewV7()
	} else {
		u, err = uuid.NewV7FromReader(g.rand)
	}
	if err != nil {
		panic("failed to generate round id: " + err.Error())
	}
	return Encode(u)
}

// Encode renders u as 130 bits (two leading zero bits) in base32, so the
// first character is always 0-7.
func Encode(u uuid.UUID) string {
	out := make([]byte, Length)
	for i := range out {
		var v byte
		for b := 0; b < 5; b++ {
			v = v<<1 | bitAt(u, i*5-2+b)
		}
		out[i] = alphabet[v]
	}
	return string(out)
}

// Decode parses an encoded id back into its UUID
func Decode(id string) (uuid.UUID, error) {
	var u uuid.UUID
	if err := Validate(id); err != nil {
		return u, err
	}
	for i := 0; i < Length; i++ {
		v := decodeMap[id[i]]
		for b := 0; b < 5; b++ {
			k := i*5 - 2 + b
			if k < 0 {
				continue
			}
			if v&(1<<(4-b)) != 0 {
				u[k/8] |= 1 << (7 - k%8)
			}
		}
	}
	return u, nil
}

// Validate checks that id has the right length and alphabet
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("round id must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("round id first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if decodeMap[id[i]] == 0xff {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}

// Timestamp returns the creation time embedded in an id
func Timestamp(id string) (time.Time, error) {
	u, err := Decode(id)
	if err != nil {
		return time.Time{}, err
	}
	var ms int64
	for i := 0; i < 6; i++ {
		ms = ms<<8 | int64(u[i])
	}
	return time.UnixMilli(ms).UTC(), nil
}

func bitAt(u uuid.UUID, k int) byte {
	if k < 0 {
		return 0
	}
	return (u[k/8] >> (7 - k%8)) & 1
}
