package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	"github.com/angelmondragon/pharmacare-storefront/api/validators"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"omitempty,max=40"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type resetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type sessionResponse struct {
	LoggedIn bool              `json:"logged_in"`
	Mode     accounts.Mode     `json:"mode"`
	User     *accounts.Session `json:"user"`
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	err := pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable")
	responses.WriteError(r.Context(), logg, w, err)
}

// AuthRegister creates an account and signs the browser context in.
func AuthRegister(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx, commit := clientctx.Renew(r.Context())
		result := svc.Register(ctx, accounts.RegisterInput{
			Email:    strings.TrimSpace(body.Email),
			Password: body.Password,
			Name:     validators.SanitizeString(body.Name, 120),
			Phone:    validators.SanitizeString(body.Phone, 40),
		})
		if result.Success {
			commit()
		}
		responses.WriteResult(w, result)
	}
}

// AuthLogin wires the login endpoint into the HTTP layer.
func AuthLogin(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx, commit := clientctx.Renew(r.Context())
		result := svc.Login(ctx, strings.TrimSpace(body.Email), body.Password)
		if result.Success {
			commit()
		}
		responses.WriteResult(w, result)
	}
}

func AuthLogout(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		responses.WriteResult(w, svc.Logout(r.Context()))
	}
}

// AuthSession reports whether the browser context is signed in and who as.
func AuthSession(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		user := svc.CurrentUser(r.Context())
		responses.WriteSuccess(w, sessionResponse{
			LoggedIn: user != nil,
			Mode:     svc.Mode(),
			User:     user,
		})
	}
}

// AuthResetPassword sends a reset link that lands on the storefront origin.
func AuthResetPassword(svc accounts.Service, publicOrigin string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var body resetPasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteResult(w, svc.ResetPassword(r.Context(), strings.TrimSpace(body.Email), publicOrigin))
	}
}
