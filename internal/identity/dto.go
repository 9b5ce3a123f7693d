package identity

import (
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	"github.com/google/uuid"
)

// Event names the auth state transitions delivered to subscribers.
type Event string

const (
	EventInitialSession   Event = "INITIAL_SESSION"
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventUserUpdated      Event = "USER_UPDATED"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// Metadata is the user-editable part of an identity.
type Metadata struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// User is the public view of an identity.
type User struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Metadata         Metadata   `json:"user_metadata"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Session is an active sign-in for one browser context.
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SignUpInput carries the registration form.
type SignUpInput struct {
	Email    string
	Password string
	FullName string
	Phone    string
	// RedirectTo is where the confirmation link sends the browser afterwards.
	RedirectTo string
}

// UserUpdate changes metadata and/or the password of the signed-in identity.
type UserUpdate struct {
	FullName *string
	Phone    *string
	Password *string
}

func (u UserUpdate) empty() bool {
	return u.FullName == nil && u.Phone == nil && u.Password == nil
}

func userFromModel(m *models.Identity) User {
	u := User{
		ID:               m.ID,
		Email:            m.Email,
		Metadata:         Metadata{FullName: m.FullName},
		EmailConfirmedAt: m.EmailConfirmedAt,
		LastSignInAt:     m.LastSignInAt,
		CreatedAt:        m.CreatedAt,
	}
	if m.Phone != nil {
		u.Metadata.Phone = *m.Phone
	}
	return u
}
