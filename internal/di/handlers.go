package di

import (
	"net/http"
	"strings"
	"time"

	"github.com/defval/di"
	"github.com/etherlabsio/healthcheck/v2"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	. "ely.by/changeskin/internal/http"
	"ely.by/changeskin/internal/messaging"
	"ely.by/changeskin/internal/security"
)

var handlersDiOptions = di.Options(
	di.Provide(newHandlerFactory, di.As(new(http.Handler))),
	di.Provide(newApi),
	di.Provide(newApiHandler, di.WithName("api")),
)

func newHandlerFactory(
	container *di.Container,
	config *viper.Viper,
	emitter Emitter,
	authenticator Authenticator,
) (*mux.Router, error) {
	router := mux.NewRouter()
	router.StrictSlash(true)
	requestEventsMiddleware := NewRequestEventsMiddleware(emitter)
	router.Use(requestEventsMiddleware)
	// NotFoundHandler doesn't call for registered middlewares, so we must wrap it manually.
	// See https://github.com/gorilla/mux/issues/416#issuecomment-600079279
	router.NotFoundHandler = requestEventsMiddleware(http.HandlerFunc(NotFoundHandler))

	config.SetDefault("messaging.enabled", false)
	config.SetDefault("messaging.timeout", 5*time.Second)

	// The servers api must be mounted first, since its prefix is covered by the main api prefix
	if config.GetBool("messaging.enabled") {
		var messenger *messaging.Messenger
		if err := container.Resolve(&messenger); err != nil {
			return nil, err
		}

		var skinsApi *Api
		if err := container.Resolve(&skinsApi); err != nil {
			return nil, err
		}

		serversRouter := NewServersApi(messenger, skinsApi, config.GetDuration("messaging.timeout")).Handler()
		serversRouter.Use(NewAuthenticationMiddleware(authenticator, security.MessagingScope))

		mount(router, "/api/servers", serversRouter)
	}

	var apiRouter *mux.Router
	if err := container.Resolve(&apiRouter, di.Name("api")); err != nil {
		return nil, err
	}

	apiRouter.Use(NewAuthenticationMiddleware(authenticator, security.SkinsScope))
	mount(router, "/api", apiRouter)

	// Resolve health checkers last, because all the services required by the application
	// must first be initialized and each of them can publish its own checkers
	var healthCheckers []*namedHealthChecker
	if has, _ := container.Has(&healthCheckers); has {
		if err := container.Resolve(&healthCheckers); err != nil {
			return nil, err
		}

		checkersOptions := make([]healthcheck.Option, len(healthCheckers))
		for i, checker := range healthCheckers {
			checkersOptions[i] = healthcheck.WithChecker(checker.Name, checker.Checker)
		}

		router.Handle("/healthcheck", healthcheck.Handler(checkersOptions...)).Methods("GET")
	}

	return router, nil
}

func newApi(resolver NamesResolver, store PreferencesStore, service SkinsService) (*Api, error) {
	return NewApi(resolver, store, service)
}

func newApiHandler(api *Api) *mux.Router {
	return api.Handler()
}

func mount(router *mux.Router, path string, handler http.Handler) {
	router.PathPrefix(path).Handler(
		http.StripPrefix(
			strings.TrimSuffix(path, "/"),
			handler,
		),
	)
}

type namedHealthChecker struct {
	Name    string
	Checker healthcheck.Checker
}
