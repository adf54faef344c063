package di

import (
	"net"
	"net/http"
	"time"

	"github.com/defval/di"
	"github.com/spf13/viper"
)

var httpClientDiOptions = di.Options(
	di.Provide(newHttpClient),
)

// The connect timeout must stay lower than the read timeout, so a dead upstream is detected
// before a slow one. The client timeout bounds the whole exchange including the body read
func newHttpClient(config *viper.Viper) *http.Client {
	config.SetDefault("http.connect_timeout", 3*time.Second)
	config.SetDefault("http.read_timeout", 6*time.Second)

	dialer := &net.Dialer{
		Timeout:   config.GetDuration("http.connect_timeout"),
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: config.GetDuration("http.connect_timeout") + config.GetDuration("http.read_timeout"),
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: config.GetDuration("http.read_timeout"),
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   config.GetDuration("http.connect_timeout"),
		},
	}
}
