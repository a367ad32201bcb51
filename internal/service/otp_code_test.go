package service

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^[1-9]\d{3}$`)
	seen := make(map[string]struct{})

	for i := 0; i < 10000; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, re, code)

		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 1000)
		require.Less(t, n, 9999)

		seen[code] = struct{}{}
	}

	// 10k draws over 8999 values leave very few holes
	assert.Greater(t, len(seen), 5000)
}
