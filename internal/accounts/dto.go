package accounts

import (
	"context"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/internal/orders"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

// Mode names the strategy chosen at startup.
type Mode string

const (
	ModeBackend  Mode = "backend"
	ModeFallback Mode = "fallback"
)

const (
	msgEmailRegistered      = "Email already registered"
	msgInvalidCredentials   = "Invalid email or password"
	msgNotLoggedIn          = "Not logged in"
	msgUserNotFound         = "User not found"
	msgResetOffline         = "Password reset not available in offline mode"
	msgUploadUnavailable    = "Upload not available"
	msgOrdersUnavailable    = "Orders feature requires database connection"
	msgRegistered           = "Registration successful! Please check your email to verify your account."
	msgResetSent            = "Password reset email sent! Check your inbox."
	msgPasswordUpdated      = "Password updated successfully"
	msgRegistrationFailed   = "Registration failed"
	msgUpdateFailed         = "Failed to update profile"
	msgResetFailed          = "Failed to send reset email"
	msgUploadFailed         = "Failed to upload photo"
	msgPasswordUpdateFailed = "Failed to update password"
	msgOrdersFailed         = "Failed to load orders"

	resetPasswordPath = "/pages/reset-password.html"
)

// Session is the cached view of the signed-in user.
type Session struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	IsAdmin   bool   `json:"isAdmin"`
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Result is the uniform outcome of every account operation. Failures never
// surface as Go errors; Error carries the user-facing message.
type Result struct {
	Success bool           `json:"success"`
	User    *Session       `json:"user,omitempty"`
	Message string         `json:"message,omitempty"`
	URL     string         `json:"url,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    pkgerrors.Code `json:"code,omitempty"`
}

// OrdersResult is the outcome of listing the signed-in user's orders.
type OrdersResult struct {
	Success bool             `json:"success"`
	Orders  []orders.Summary `json:"orders"`
	Error   string           `json:"error,omitempty"`
	Code    pkgerrors.Code   `json:"code,omitempty"`
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
}

// ProfileUpdates is a partial profile change; nil fields are kept.
type ProfileUpdates struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`
}

// Photo is an avatar upload.
type Photo struct {
	Name        string
	ContentType string
	Data        []byte
}

// UserRecord is a fallback registry entry. Password only appears in
// registries written before hashing and is upgraded on the next login.
type UserRecord struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Password     string    `json:"password,omitempty"`
	Name         string    `json:"name"`
	Phone        *string   `json:"phone,omitempty"`
	Address      *string   `json:"address,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Listener receives auth state changes. user is nil when signed out.
type Listener func(ctx context.Context, event string, user *Session)

func failure(message string, code pkgerrors.Code) Result {
	return Result{Success: false, Error: message, Code: code}
}

// failureFrom shows the message carried by err unless it describes an
// infrastructure fault, which users see as the fallback text.
func failureFrom(err error, fallback string) Result {
	code := pkgerrors.CodeOf(err)
	if !pkgerrors.MetadataFor(code).ExposeMessage {
		return failure(fallback, code)
	}
	return failure(pkgerrors.MessageOr(err, fallback), code)
}
