package utf8

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	for _, c := range []struct {
		name  string
		bytes []byte
		valid bool
	}{
		{name: "empty", bytes: []byte{}, valid: true},
		{name: "ascii", bytes: []byte("hello world"), valid: true},
		{name: "two byte", bytes: []byte{0xC2, 0x80}, valid: true},
		{name: "three byte", bytes: []byte{0xE0, 0xA0, 0x80}, valid: true},
		{name: "four byte", bytes: []byte{0xF0, 0x90, 0x80, 0x80}, valid: true},
		{name: "ascii then invalid continuation", bytes: []byte{'a', 0xC2, 0x00}, valid: false},
		{name: "lone continuation byte", bytes: []byte{0x80}, valid: false},
		{name: "overlong two byte", bytes: []byte{0xC0, 0x80}, valid: false},
		{name: "truncated two byte", bytes: []byte{0xC2}, valid: false},
		{name: "surrogate low bound", bytes: []byte{0xED, 0xA0, 0x80}, valid: false},
		{name: "surrogate high bound", bytes: []byte{0xED, 0xBF, 0xBF}, valid: false},
		{name: "just below surrogate range", bytes: []byte{0xED, 0x9F, 0xBF}, valid: true},
		{name: "above U+10FFFF lead byte", bytes: []byte{0xF5, 0x80, 0x80, 0x80}, valid: false},
		{name: "max code point", bytes: []byte{0xF4, 0x8F, 0xBF, 0xBF}, valid: true},
		{name: "F4 second byte out of range", bytes: []byte{0xF4, 0x90, 0x80, 0x80}, valid: false},
	} {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.valid, Valid(c.bytes))
		})
	}
}

func TestValid_continuesScanningPastLeadingASCII(t *testing.T) {
	// Regression: a validator that returns true as soon as it sees the
	// first ASCII byte would wrongly accept this string.
	assert.False(t, Valid([]byte{'o', 'k', 0xC2, 0x00}))
}
