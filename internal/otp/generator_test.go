package otp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	g := NewGenerator(Config{Length: 10, TTL: 10 * time.Minute})

	o, err := g.Generate()
	require.NoError(t, err)

	assert.Len(t, o.Code, 10)
	for _, r := range o.Code {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q", r)
	}
}

func TestGenerate_ExpiryIsNowPlusTTL(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := NewGenerator(Config{Length: 6, TTL: 10 * time.Minute})
	g.now = func() time.Time { return fixed }

	o, err := g.Generate()
	require.NoError(t, err)

	assert.Equal(t, fixed.Add(10*time.Minute), o.ExpiresAt)
	assert.False(t, o.Expired(fixed.Add(9*time.Minute)))
	assert.True(t, o.Expired(fixed.Add(10*time.Minute)))
}

func TestGenerate_SequentialCodesDiffer(t *testing.T) {
	g := NewGenerator(Config{})

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		o, err := g.Generate()
		require.NoError(t, err)
		seen[o.Code] = struct{}{}
	}

	// 36^10通りのため衝突は実質起こらない
	assert.Len(t, seen, 50)
}

func TestNewGenerator_Defaults(t *testing.T) {
	g := NewGenerator(Config{})

	assert.Equal(t, DefaultLength, g.length)
	assert.Equal(t, DefaultTTL, g.TTL())
}
