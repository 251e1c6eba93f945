package xid

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := New("prd")
		require.Regexp(t, `^prd_[0-9a-f]{32}$`, id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestDocumentNumber(t *testing.T) {
	at := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	number := DocumentNumber("INV", at)
	require.True(t, regexp.MustCompile(`^INV-20260131-[0-9A-F]{10}$`).MatchString(number), number)
}
