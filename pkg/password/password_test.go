package password

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithCoversAllClasses(t *testing.T) {
	src := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		pw, err := GenerateWith(src, 12)
		require.NoError(t, err)
		require.Len(t, pw, 12)

		assert.True(t, strings.ContainsAny(pw, upperChars), "missing uppercase in %q", pw)
		assert.True(t, strings.ContainsAny(pw, lowerChars), "missing lowercase in %q", pw)
		assert.True(t, strings.ContainsAny(pw, digitChars), "missing digit in %q", pw)
		assert.True(t, strings.ContainsAny(pw, symbolChars), "missing symbol in %q", pw)
	}
}

func TestGenerateWithShufflesClassPositions(t *testing.T) {
	src := rand.New(rand.NewSource(7))

	// Without the shuffle the first four characters would always follow the
	// fixed class order upper, lower, digit, symbol.
	fixedOrder := 0
	const rounds = 40
	for i := 0; i < rounds; i++ {
		pw, err := GenerateWith(src, 12)
		require.NoError(t, err)
		if strings.ContainsRune(upperChars, rune(pw[0])) &&
			strings.ContainsRune(lowerChars, rune(pw[1])) &&
			strings.ContainsRune(digitChars, rune(pw[2])) &&
			strings.ContainsRune(symbolChars, rune(pw[3])) {
			fixedOrder++
		}
	}
	assert.Less(t, fixedOrder, rounds/2)
}

func TestGenerateWithRejectsShortLength(t *testing.T) {
	src := rand.New(rand.NewSource(1))
	_, err := GenerateWith(src, 4)
	require.Error(t, err)
}

func TestGenerateIsDeterministicForSeededSource(t *testing.T) {
	a, err := GenerateWith(rand.New(rand.NewSource(99)), 12)
	require.NoError(t, err)
	b, err := GenerateWith(rand.New(rand.NewSource(99)), 12)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
