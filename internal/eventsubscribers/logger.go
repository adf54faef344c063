package eventsubscribers

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/dispatcher"
	"ely.by/changeskin/internal/skins"
)

// Logger writes the domain events into the log
type Logger struct {
	Logger *slog.Logger
}

func (l *Logger) ConfigureWithDispatcher(d dispatcher.Subscriber) {
	d.Subscribe("api:after_request", l.handleAfterRequest)
	d.Subscribe(skins.SkinChangedTopic, l.handleSkinChanged)
	d.Subscribe(skins.SkinAppliedTopic, l.handleSkinApplied)
}

func (l *Logger) handleAfterRequest(req *http.Request, statusCode int) {
	l.Logger.Info(
		"Handled API request",
		slog.String("ip", trimPort(req.RemoteAddr)),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("statusCode", statusCode),
		slog.String("userAgent", req.UserAgent()),
		slog.String("forwardedIp", req.Header.Get("X-Forwarded-For")),
	)
}

func (l *Logger) handleSkinChanged(receiver uuid.UUID, record *db.Record) {
	if record == nil {
		l.Logger.Info("Skin has been reset", slog.String("player", receiver.String()))
		return
	}

	l.Logger.Info(
		"Skin has been changed",
		slog.String("player", receiver.String()),
		slog.String("owner", record.ProfileId().String()),
		slog.Int64("skinId", record.Id()),
	)
}

func (l *Logger) handleSkinApplied(playerName string, record *db.Record) {
	attrs := []any{slog.String("player", playerName)}
	if record != nil {
		attrs = append(attrs, slog.String("owner", record.ProfileId().String()))
	}

	l.Logger.Debug("Skin update received from another server", attrs...)
}

func trimPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}
