package di

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/defval/di"
)

var contextDiOptions = di.Options(
	di.Provide(newBaseContext),
)

func newBaseContext() context.Context {
	// The stop function is never called: the context lives until the process exits
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return ctx
}
