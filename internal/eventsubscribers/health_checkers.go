package eventsubscribers

import (
	"context"
	"errors"

	"github.com/etherlabsio/healthcheck/v2"
)

type Pingable interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker reports the connection as failed when the ping fails or doesn't finish in time
func DatabaseChecker(connection Pingable) healthcheck.CheckerFunc {
	return func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- connection.Ping(ctx)
		}()

		select {
		case <-ctx.Done():
			return errors.New("check timeout")
		case err := <-done:
			return err
		}
	}
}
