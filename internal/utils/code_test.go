package utils

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNewBookingCode(t *testing.T) {
    seen := make(map[string]bool)
    for i := 0; i < 200; i++ {
        code, err := NewBookingCode()
        require.NoError(t, err)
        assert.Len(t, code, BookingCodeLen)
        for _, r := range code {
            assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected character %q in %s", r, code)
        }
        seen[code] = true
    }
    // 200 draws from a 36^8 space should not collide.
    assert.Len(t, seen, 200)
}
