package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*-_=+?"

	// MinLength is the smallest length that can hold one character per class.
	MinLength = 8
)

// Source yields uniform random integers in [0, n). Injectable for deterministic tests.
type Source interface {
	Intn(n int) int
}

type cryptoSource struct{}

func (cryptoSource) Intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand failing means the process has no usable entropy; nothing sane to return.
		panic(fmt.Sprintf("password: crypto rand unavailable: %v", err))
	}
	return int(v.Int64())
}

// Generate returns a random password using the system entropy source.
func Generate(length int) (string, error) {
	return GenerateWith(cryptoSource{}, length)
}

// GenerateWith returns a password of the given length containing at least one
// uppercase letter, one lowercase letter, one digit and one symbol, with the
// character positions shuffled so class placement is not predictable.
func GenerateWith(src Source, length int) (string, error) {
	if length < MinLength {
		return "", fmt.Errorf("password length %d below minimum %d", length, MinLength)
	}

	classes := []string{upperChars, lowerChars, digitChars, symbolChars}
	all := upperChars + lowerChars + digitChars + symbolChars

	buf := make([]byte, 0, length)
	for _, class := range classes {
		buf = append(buf, class[src.Intn(len(class))])
	}
	for len(buf) < length {
		buf = append(buf, all[src.Intn(len(all))])
	}

	// Fisher-Yates so the guaranteed class characters do not sit at fixed offsets.
	for i := len(buf) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}
