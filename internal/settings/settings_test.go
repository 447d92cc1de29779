package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostcodePrefix(t *testing.T) {
	cases := map[string]string{
		"sw1a 1aa": "SW1",
		"EC2A 4BX": "EC2",
		"  n1 ":    "N1",
		"w1":       "W1",
	}
	for input, want := range cases {
		assert.Equal(t, want, PostcodePrefix(input), "input %q", input)
	}
}
