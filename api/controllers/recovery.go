package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	"github.com/angelmondragon/pharmacare-storefront/api/validators"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	"github.com/angelmondragon/pharmacare-storefront/internal/identity"
	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

const (
	msgOfflineLinks      = "Email links are not available in offline mode"
	msgRecoverySucceeded = "Password updated successfully"
)

type recoverRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

// AuthRecover completes a password reset from the emailed link and signs the
// browser context in. Only the backend issues reset links, so auth is nil in
// fallback mode.
func AuthRecover(auth identity.Service, svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnsupported, msgOfflineLinks))
			return
		}

		var body recoverRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.CheckNewPassword(body.Password, body.ConfirmPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx, commit := clientctx.Renew(r.Context())
		if _, err := auth.Recover(ctx, strings.TrimSpace(body.Token), body.Password); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		commit()

		responses.WriteResult(w, accounts.Result{
			Success: true,
			User:    svc.CurrentUser(ctx),
			Message: msgRecoverySucceeded,
		})
	}
}

// AuthConfirm redeems an email confirmation link, then redirects back to the
// storefront when the link names a page on the public origin.
func AuthConfirm(auth identity.Service, publicOrigin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnsupported, msgOfflineLinks))
			return
		}

		token := strings.TrimSpace(r.URL.Query().Get("token"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "token is required"))
			return
		}

		user, err := auth.ConfirmEmail(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if target, ok := sameOrigin(r.URL.Query().Get("redirect_to"), publicOrigin); ok {
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		responses.WriteSuccess(w, map[string]any{"confirmed": true, "email": user.Email})
	}
}

func sameOrigin(raw, origin string) (string, bool) {
	if raw == "" || origin == "" {
		return "", false
	}
	target, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if target.Scheme != base.Scheme || target.Host != base.Host {
		return "", false
	}
	return target.String(), true
}
