package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestEscape_SpecialCharacters tests backslash escaping of the characters
// MySQL treats specially inside quoted literals.
func TestEscape_SpecialCharacters(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"single quote", "O'Brien", `O\'Brien`},
		{"double quote", `say "hi"`, `say \"hi\"`},
		{"backslash", `C:\path`, `C:\\path`},
		{"newline", "a\nb", `a\nb`},
		{"carriage return", "a\rb", `a\rb`},
		{"nul byte", "a\x00b", `a\0b`},
		{"ctrl-z", "a\x1ab", `a\Zb`},
		{"injection attempt", "'; DROP TABLE users; --", `\'; DROP TABLE users; --`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

// TestQuote_ScalarValues tests literal rendering for every scalar kind.
func TestQuote_ScalarValues(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, "NULL"},
		{"true", true, "1"},
		{"false", false, "0"},
		{"string", "alice", "'alice'"},
		{"string needing escape", "it's", `'it\'s'`},
		{"empty string", "", "' '"},
		{"bytes", []byte("raw"), "'raw'"},
		{"empty bytes", []byte{}, "' '"},
		{"int", 42, "'42'"},
		{"negative int", -7, "'-7'"},
		{"int64", int64(9000000000), "'9000000000'"},
		{"uint8", uint8(255), "'255'"},
		{"float stays raw", 3.14, "3.14"},
		{"negative float stays raw", -0.5, "-0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Quote(tt.in))
		})
	}
}

// TestQuote_Time tests DATETIME literal rendering.
func TestQuote_Time(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "'2024-03-15 09:30:00'", Quote(ts))
}

// TestQuote_Collections tests slice and array rendering into the
// parenthesized form usable directly after IN.
func TestQuote_Collections(t *testing.T) {
	assert.Equal(t, "('1', '2', '3')", Quote([]int{1, 2, 3}))
	assert.Equal(t, "('a', 'b')", Quote([]string{"a", "b"}))
	assert.Equal(t, "('1', 'x')", Quote([]interface{}{1, "x"}))
	assert.Equal(t, "' '", Quote([]int{}), "empty slices keep the single-space convention")
}

// TestQuote_Pointers tests that pointers dereference and nil pointers
// render NULL.
func TestQuote_Pointers(t *testing.T) {
	n := 10
	assert.Equal(t, "'10'", Quote(&n))

	var p *int
	assert.Equal(t, "NULL", Quote(p))
}
