package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchConstraint(t *testing.T) {
	constraints := []string{No, Yes}
	tests := []struct {
		given    string
		expected string
	}{
		{"", No},
		{"y", Yes},
		{"Y", Yes},
		{" y ", Yes},
		{"n", No},
		{"yes", No},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			assert.Equal(t, test.expected, matchConstraint(test.given, constraints))
		})
	}
}
