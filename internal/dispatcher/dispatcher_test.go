package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalEventDispatcher(t *testing.T) {
	t.Run("delivers arguments to every subscriber in order", func(t *testing.T) {
		d := New()
		var calls []string
		d.Subscribe("skin:applied", func(playerName string, count int) {
			calls = append(calls, "first:"+playerName)
			require.Equal(t, 3, count)
		})
		d.Subscribe("skin:applied", func(playerName string, count int) {
			calls = append(calls, "second:"+playerName)
		})

		d.Emit("skin:applied", "Notch", 3)

		require.Equal(t, []string{"first:Notch", "second:Notch"}, calls)
	})

	t.Run("topic without subscribers", func(t *testing.T) {
		d := New()
		require.NotPanics(t, func() {
			d.Emit("skin:changed", "ignored")
		})
	})

	t.Run("subscribing a non-function", func(t *testing.T) {
		d := New()
		require.Panics(t, func() {
			d.Subscribe("skin:changed", "not a function")
		})
	})
}
