package helpers

import (
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnitName(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 50 {
		name := UnitName("Evaluation")
		require.True(t, strings.HasPrefix(name, "Evaluation_"))
		require.True(t, token.IsIdentifier(name), "unit name must be a Go identifier: %s", name)
		_, dup := seen[name]
		require.False(t, dup, "duplicate unit name %s", name)
		seen[name] = struct{}{}
	}
}
