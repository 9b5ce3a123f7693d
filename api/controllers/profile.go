package controllers

import (
	"net/http"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	"github.com/angelmondragon/pharmacare-storefront/api/validators"
	"github.com/angelmondragon/pharmacare-storefront/internal/accounts"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

const msgNotLoggedIn = "Not logged in"

type profileUpdateRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=120"`
	Phone   *string `json:"phone" validate:"omitempty,max=40"`
	Address *string `json:"address" validate:"omitempty,max=500"`
}

type changePasswordRequest struct {
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

func ProfileGet(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		user := svc.CurrentUser(r.Context())
		if user == nil {
			responses.WriteResult(w, accounts.Result{Error: msgNotLoggedIn, Code: pkgerrors.CodeUnauthorized})
			return
		}
		responses.WriteResult(w, accounts.Result{Success: true, User: user})
	}
}

// ProfileUpdate applies a partial change; absent fields are kept.
func ProfileUpdate(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var body profileUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteResult(w, svc.UpdateProfile(r.Context(), accounts.ProfileUpdates{
			Name:    trimmed(body.Name, 120),
			Phone:   trimmed(body.Phone, 40),
			Address: trimmed(body.Address, 500),
		}))
	}
}

// ProfileAvatar accepts a multipart "file" field holding an image.
func ProfileAvatar(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, validators.MaxAvatarBytes+1<<20)
		upload, err := validators.ReadImageUpload(r, "file", validators.MaxAvatarBytes)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteResult(w, svc.UploadPhoto(r.Context(), accounts.Photo{
			Name:        upload.Name,
			ContentType: upload.ContentType,
			Data:        upload.Data,
		}))
	}
}

func ProfilePassword(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}

		var body changePasswordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.CheckNewPassword(body.Password, body.ConfirmPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteResult(w, svc.ChangePassword(r.Context(), body.Password))
	}
}

func ProfileOrders(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg)
			return
		}
		responses.WriteOrders(w, svc.ListOrders(r.Context()))
	}
}

func trimmed(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	out := validators.SanitizeString(*value, maxLen)
	return &out
}
