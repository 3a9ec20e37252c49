package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  paris  ", "rome  ", "  oslo"},
			expected: []string{"paris", "rome", "oslo"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"paris", "rome", "paris", "oslo", "rome"},
			expected: []string{"paris", "rome", "oslo"},
		},
		{
			name:     "drops blank entries",
			input:    []string{"paris", "", "  ", "rome"},
			expected: []string{"paris", "rome"},
		},
		{
			name:     "duplicate after trimming",
			input:    []string{"paris", " paris "},
			expected: []string{"paris"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeSorted(t *testing.T) {
	got := DedupeSorted([]string{"rome", " paris", "oslo", "rome"})
	assert.Equal(t, []string{"oslo", "paris", "rome"}, got)
	assert.Empty(t, DedupeSorted(nil))
}
