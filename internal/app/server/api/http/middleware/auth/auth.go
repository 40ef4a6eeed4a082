package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// HeaderAPIKey заголовок с общим секретом узлов
const HeaderAPIKey = "X-API-Key"

// APIKey проверяет общий секрет, которым узлы подписывают обмен снимками
type APIKey struct {
	key []byte
	log *slog.Logger
}

func New(key string, log *slog.Logger) *APIKey {
	return &APIKey{
		key: []byte(key),
		log: log.With(slog.String("component", "api_key_auth")),
	}
}

// Middleware возвращает middleware для Huma с сигнатурой func(ctx Context, next func(Context))
func (a *APIKey) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !a.valid(ctx.Header(HeaderAPIKey)) {
			a.log.Warn("Rejected request with missing or wrong api key",
				slog.String("path", ctx.URL().Path),
				slog.String("remote_addr", ctx.RemoteAddr()))

			ctx.SetStatus(http.StatusUnauthorized)
			ctx.SetHeader("Content-Type", "application/json")
			if err := json.NewEncoder(ctx.BodyWriter()).Encode(map[string]string{
				"message": "Unauthorized",
			}); err != nil {
				a.log.Error("json encode", slog.String("error", err.Error()))
			}
			return
		}

		next(ctx)
	}
}

// Пустой ключ в конфигурации не пропускает никого
func (a *APIKey) valid(got string) bool {
	if len(a.key) == 0 || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), a.key) == 1
}
