package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNanoID(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "too short", length: MinLength - 1, wantErr: true},
		{name: "too long", length: MaxLength + 1, wantErr: true},
		{name: "min length", length: MinLength},
		{name: "max length", length: MaxLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewNanoID(tt.length)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, g)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestNanoID_Generate(t *testing.T) {
	g, err := NewNanoID(DefaultLength)
	require.NoError(t, err)

	seen := make(map[string]struct{}, 1000)

	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)

		assert.Len(t, code, DefaultLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected character %q", c)
		}

		seen[code] = struct{}{}
	}

	assert.Len(t, seen, 1000)
}

func TestIsReserved(t *testing.T) {
	for _, code := range []string{"api", "docs", "health", "metrics", "swagger"} {
		assert.True(t, IsReserved(code), code)
	}

	assert.False(t, IsReserved("Health"))
	assert.False(t, IsReserved("abc123"))
	assert.False(t, IsReserved(""))
}
