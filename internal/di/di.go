package di

import "github.com/defval/di"

func New() (*di.Container, error) {
	return di.New(
		configDiOptions,
		contextDiOptions,
		dbDiOptions,
		dispatcherDiOptions,
		handlersDiOptions,
		httpClientDiOptions,
		loggerDiOptions,
		messagingDiOptions,
		mojangDiOptions,
		profilesDiOptions,
		serverDiOptions,
		skinsDiOptions,
		texturesDiOptions,
	)
}
