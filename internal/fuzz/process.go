package fuzz

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Processor normalizes a string before comparison.
type Processor func(string) string

// DefaultProcess lowercases s rune by rune, replaces every rune that is not
// a letter or number with a space and trims the ends. Runs of inner spaces
// are kept and the rune count never changes before trimming.
func DefaultProcess(s string) string {
	mapped, _, _ := transform.String(defaultMapping, s)
	return strings.TrimSpace(mapped)
}

var defaultMapping = runes.Map(func(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return unicode.ToLower(r)
	}
	return ' '
})

type options struct {
	processor Processor
}

// Option configures a scorer call.
type Option func(*options)

// WithProcessor applies p to both inputs before scoring.
func WithProcessor(p Processor) Option {
	return func(o *options) {
		o.processor = p
	}
}

func prepare(s1, s2 string, opts []Option) (string, string) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.processor != nil {
		s1 = o.processor(s1)
		s2 = o.processor(s2)
	}
	return s1, s2
}
