package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUuid(t *testing.T) {
	t.Run("dashless", func(t *testing.T) {
		id, err := ParseUuid("4566e69fc90748ee8d71d7ba5aa00d20")
		require.NoError(t, err)
		require.Equal(t, "4566e69f-c907-48ee-8d71-d7ba5aa00d20", id.String())
	})

	t.Run("hyphenated", func(t *testing.T) {
		id, err := ParseUuid("4566E69F-C907-48EE-8D71-D7BA5AA00D20")
		require.NoError(t, err)
		require.Equal(t, "4566e69fc90748ee8d71d7ba5aa00d20", MojangId(id))
	})

	t.Run("urn form is rejected", func(t *testing.T) {
		_, err := ParseUuid("urn:uuid:4566e69f-c907-48ee-8d71-d7ba5aa00d20")
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseUuid("not-a-uuid")
		require.Error(t, err)
	})
}
