package di

import (
	"log/slog"

	"github.com/defval/di"

	d "ely.by/changeskin/internal/dispatcher"
	"ely.by/changeskin/internal/eventsubscribers"
	"ely.by/changeskin/internal/http"
)

var dispatcherDiOptions = di.Options(
	di.Provide(newDispatcher,
		di.As(new(d.Emitter)),
		di.As(new(d.Subscriber)),
		di.As(new(http.Emitter)),
	),
	di.Invoke(enableEventsHandlers),
)

func newDispatcher() d.Dispatcher {
	return d.New()
}

func enableEventsHandlers(dispatcher d.Subscriber) {
	(&eventsubscribers.Logger{Logger: slog.Default()}).ConfigureWithDispatcher(dispatcher)
}
