package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

// ClientCookieName identifies the browser context that owns a session slot.
const ClientCookieName = "sf_client"

const clientCookieMaxAge = 365 * 24 * 60 * 60

// ClientContext binds every request to a browser context id, issuing a new
// cookie on first contact. Sign-in handlers call clientctx.Renew so a session
// is never stored under an id the browser brought along.
func ClientContext(logg *logger.Logger, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(ClientCookieName); err == nil {
				id = strings.TrimSpace(c.Value)
			}
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
				setClientCookie(w, id, secure)
			}

			ctx := bindClient(r.Context(), logg, id)
			ctx = clientctx.WithRenewer(ctx, func(ctx context.Context) (context.Context, func()) {
				fresh := uuid.NewString()
				return bindClient(ctx, logg, fresh), func() { setClientCookie(w, fresh, secure) }
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bindClient(ctx context.Context, logg *logger.Logger, id string) context.Context {
	ctx = clientctx.With(ctx, id)
	if logg != nil {
		ctx = logg.WithClientID(ctx, id)
	}
	return ctx
}

func setClientCookie(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   clientCookieMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
