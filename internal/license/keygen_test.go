package license

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGeneratorFormat(t *testing.T) {
	gen := NewKeyGenerator("MCR")

	key, err := gen.Generate()
	require.NoError(t, err)

	parts := strings.Split(key, "-")
	require.Len(t, parts, 5)
	assert.Equal(t, "MCR", parts[0])
	for _, part := range parts[1:] {
		assert.Len(t, part, 4)
		for _, ch := range part {
			assert.Contains(t, tokenCharset, string(ch))
		}
	}
}

func TestKeyGeneratorUniqueness(t *testing.T) {
	gen := NewKeyGenerator("MCR")

	seen := make(map[string]struct{})
	for i := 0; i < 10_000; i++ {
		key, err := gen.Generate()
		require.NoError(t, err)
		_, dup := seen[key]
		require.False(t, dup, "duplicate token generated: %s", key)
		seen[key] = struct{}{}
	}
}

func TestValidTokenFormat(t *testing.T) {
	gen := NewKeyGenerator("MCR")

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"generated key", mustGenerate(t, gen), true},
		{"empty", "", false},
		{"wrong prefix", "ABC-2345-6789-ABCD-EFGH", false},
		{"missing group", "MCR-2345-6789-ABCD", false},
		{"short group", "MCR-234-6789-ABCD-EFGH", false},
		{"lowercase", "MCR-abcd-6789-ABCD-EFGH", false},
		{"excluded glyphs", "MCR-ILOU-6789-ABCD-EFGH", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gen.ValidTokenFormat(tt.key))
		})
	}
}

func mustGenerate(t *testing.T, gen *KeyGenerator) string {
	t.Helper()
	key, err := gen.Generate()
	require.NoError(t, err)
	return key
}
