package di

import (
	"net/http"
	"net/url"

	"github.com/defval/di"
	"github.com/spf13/viper"

	"ely.by/changeskin/internal/mojang"
)

var mojangDiOptions = di.Options(
	di.Provide(newMojangApi),
	di.Provide(newMcApi),
	di.Provide(newMcApiDe),
)

func newMojangApi(config *viper.Viper, httpClient *http.Client) (*mojang.MojangApi, error) {
	uuidUrl := config.GetString("mojang.uuid_url")
	if err := validateUrl(uuidUrl); err != nil {
		return nil, err
	}

	profileUrl := config.GetString("mojang.profile_url")
	if err := validateUrl(profileUrl); err != nil {
		return nil, err
	}

	return mojang.NewMojangApi(httpClient, uuidUrl, profileUrl), nil
}

func newMcApi(config *viper.Viper, httpClient *http.Client) (*mojang.McApi, error) {
	uuidUrl := config.GetString("fallback.uuid_url")
	if err := validateUrl(uuidUrl); err != nil {
		return nil, err
	}

	return mojang.NewMcApi(httpClient, uuidUrl), nil
}

func newMcApiDe(config *viper.Viper, httpClient *http.Client) (*mojang.McApiDe, error) {
	texturesUrl := config.GetString("fallback.textures_url")
	if err := validateUrl(texturesUrl); err != nil {
		return nil, err
	}

	return mojang.NewMcApiDe(httpClient, texturesUrl), nil
}

// An empty value means the default url
func validateUrl(value string) error {
	if value == "" {
		return nil
	}

	_, err := url.ParseRequestURI(value)

	return err
}
