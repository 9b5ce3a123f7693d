package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/internal/avatars"
	"github.com/angelmondragon/pharmacare-storefront/internal/identity"
	"github.com/angelmondragon/pharmacare-storefront/internal/orders"
	"github.com/angelmondragon/pharmacare-storefront/internal/profiles"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/google/uuid"
)

type identityClient interface {
	SignUp(ctx context.Context, input identity.SignUpInput) (*identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*identity.Session, error)
	GetUser(ctx context.Context) (*identity.User, error)
	UpdateUser(ctx context.Context, update identity.UserUpdate) (*identity.User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	OnAuthStateChange(ctx context.Context, listener identity.Listener) func()
}

type profileStore interface {
	Insert(ctx context.Context, profile *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, changes profiles.Changes) error
}

type orderLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
}

type avatarUploader interface {
	Upload(ctx context.Context, userID uuid.UUID, file avatars.File) (string, error)
}

type backendDeps struct {
	auth     identityClient
	profiles profileStore
	orders   orderLister
	avatars  avatarUploader
	cache    sessionCache
	currency string
	logg     *logger.Logger
}

type backendService struct {
	backendDeps
}

func newBackendService(deps backendDeps) (*backendService, error) {
	switch {
	case deps.auth == nil:
		return nil, fmt.Errorf("identity client is required")
	case deps.profiles == nil:
		return nil, fmt.Errorf("profiles repository is required")
	case deps.orders == nil:
		return nil, fmt.Errorf("orders repository is required")
	case deps.avatars == nil:
		return nil, fmt.Errorf("avatar service is required")
	case deps.cache == nil:
		return nil, fmt.Errorf("local cache is required")
	}
	if deps.logg == nil {
		deps.logg = logger.Nop()
	}
	return &backendService{backendDeps: deps}, nil
}

func (b *backendService) Mode() Mode { return ModeBackend }

func (b *backendService) Register(ctx context.Context, input RegisterInput) Result {
	user, err := b.auth.SignUp(ctx, identity.SignUpInput{
		Email:    input.Email,
		Password: input.Password,
		FullName: input.Name,
		Phone:    input.Phone,
	})
	if err != nil {
		b.logg.Error(ctx, "registration failed", err)
		return failureFrom(err, msgRegistrationFailed)
	}
	ctx = b.logg.WithUserID(ctx, user.ID.String())

	phone := input.Phone
	profile := &models.User{
		ID:       user.ID,
		Email:    input.Email,
		FullName: input.Name,
		Phone:    &phone,
		Role:     models.RoleCustomer,
	}
	if err := b.profiles.Insert(ctx, profile); err != nil {
		b.logg.Error(ctx, "profile creation failed", err)
	}

	session := &Session{ID: user.ID.String(), Email: user.Email, Name: input.Name, IsAdmin: false}
	b.store(ctx, session)
	return Result{Success: true, User: session, Message: msgRegistered}
}

func (b *backendService) Login(ctx context.Context, email, password string) Result {
	sess, err := b.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		b.logg.Error(ctx, "login failed", err)
		return failureFrom(err, msgInvalidCredentials)
	}
	ctx = b.logg.WithUserID(ctx, sess.User.ID.String())

	session := compose(sess.User, b.profile(ctx, sess.User.ID), email)
	session.AvatarURL = ""
	session.Address = ""
	b.store(ctx, session)
	return Result{Success: true, User: session}
}

// Logout always succeeds; a failed remote sign-out is only logged.
func (b *backendService) Logout(ctx context.Context) Result {
	if err := b.auth.SignOut(ctx); err != nil {
		b.logg.Error(ctx, "backend sign out failed", err)
	}
	if err := b.cache.Remove(ctx, b.cache.CurrentUserKey(ctx)); err != nil {
		b.logg.Error(ctx, "clearing cached session failed", err)
	}
	return Result{Success: true}
}

func (b *backendService) IsLoggedIn(ctx context.Context) bool {
	sess, err := b.auth.GetSession(ctx)
	if err != nil {
		b.logg.Error(ctx, "session lookup failed", err)
		return false
	}
	return sess != nil
}

// CurrentUser re-reads the profile on every call and refreshes the cache.
func (b *backendService) CurrentUser(ctx context.Context) *Session {
	sess, err := b.auth.GetSession(ctx)
	if err != nil {
		b.logg.Error(ctx, "session lookup failed", err)
		return nil
	}
	if sess == nil {
		return nil
	}
	ctx = b.logg.WithUserID(ctx, sess.User.ID.String())
	session := compose(sess.User, b.profile(ctx, sess.User.ID), sess.User.Email)
	b.store(ctx, session)
	return session
}

func (b *backendService) UpdateProfile(ctx context.Context, updates ProfileUpdates) Result {
	user, err := b.auth.GetUser(ctx)
	if err != nil {
		b.logg.Error(ctx, "user lookup failed", err)
		return failureFrom(err, msgUpdateFailed)
	}
	if user == nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}
	ctx = b.logg.WithUserID(ctx, user.ID.String())

	changes := profiles.Changes{FullName: updates.Name, Phone: updates.Phone, Address: updates.Address}
	err = b.profiles.Update(ctx, user.ID, changes)
	if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
		b.logg.Warn(ctx, "profile row missing, recreating")
		err = b.profiles.Insert(ctx, profileFor(*user, changes))
	}
	if err != nil {
		b.logg.Error(ctx, "profile update failed", err)
		return failureFrom(err, msgUpdateFailed)
	}
	if updates.Name != nil && *updates.Name != "" {
		if _, err := b.auth.UpdateUser(ctx, identity.UserUpdate{FullName: updates.Name}); err != nil {
			b.logg.Error(ctx, "identity metadata update failed", err)
		}
	}
	return Result{Success: true, User: b.CurrentUser(ctx)}
}

func (b *backendService) ResetPassword(ctx context.Context, email, origin string) Result {
	redirect := strings.TrimRight(origin, "/") + resetPasswordPath
	if err := b.auth.ResetPasswordForEmail(ctx, email, redirect); err != nil {
		b.logg.Error(ctx, "password reset failed", err)
		return failureFrom(err, msgResetFailed)
	}
	return Result{Success: true, Message: msgResetSent}
}

func (b *backendService) UploadPhoto(ctx context.Context, photo Photo) Result {
	user := b.CurrentUser(ctx)
	if user == nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}
	id, err := uuid.Parse(user.ID)
	if err != nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}
	ctx = b.logg.WithUserID(ctx, user.ID)

	url, err := b.avatars.Upload(ctx, id, avatars.File{Name: photo.Name, ContentType: photo.ContentType, Data: photo.Data})
	if err != nil {
		b.logg.Error(ctx, "photo upload failed", err)
		return failureFrom(err, msgUploadFailed)
	}
	return Result{Success: true, URL: url}
}

func (b *backendService) ChangePassword(ctx context.Context, newPassword string) Result {
	user, err := b.auth.GetUser(ctx)
	if err != nil {
		b.logg.Error(ctx, "user lookup failed", err)
		return failureFrom(err, msgPasswordUpdateFailed)
	}
	if user == nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}
	ctx = b.logg.WithUserID(ctx, user.ID.String())
	if _, err := b.auth.UpdateUser(ctx, identity.UserUpdate{Password: &newPassword}); err != nil {
		b.logg.Error(ctx, "password update failed", err)
		return failureFrom(err, msgPasswordUpdateFailed)
	}
	return Result{Success: true, Message: msgPasswordUpdated}
}

func (b *backendService) ListOrders(ctx context.Context) OrdersResult {
	user, err := b.auth.GetUser(ctx)
	if err != nil {
		b.logg.Error(ctx, "user lookup failed", err)
		return OrdersResult{Error: msgOrdersFailed, Code: pkgerrors.CodeOf(err)}
	}
	if user == nil {
		return OrdersResult{Error: msgNotLoggedIn, Code: pkgerrors.CodeUnauthorized}
	}
	rows, err := b.orders.ListByUser(ctx, user.ID)
	if err != nil {
		b.logg.Error(b.logg.WithUserID(ctx, user.ID.String()), "listing orders failed", err)
		return OrdersResult{Error: msgOrdersFailed, Code: pkgerrors.CodeOf(err)}
	}
	return OrdersResult{Success: true, Orders: orders.SummarizeAll(rows, b.currency)}
}

// OnAuthStateChange forwards identity events for the caller's browser context,
// resolving the full session for signed-in events.
func (b *backendService) OnAuthStateChange(ctx context.Context, listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	return b.auth.OnAuthStateChange(ctx, func(ctx context.Context, event identity.Event, sess *identity.Session) {
		if sess != nil {
			listener(ctx, string(event), b.CurrentUser(ctx))
			return
		}
		if err := b.cache.Remove(ctx, b.cache.CurrentUserKey(ctx)); err != nil {
			b.logg.Error(ctx, "clearing cached session failed", err)
		}
		listener(ctx, string(event), nil)
	})
}

// profile returns nil when the row is missing or unreadable; the session is
// still composed from the identity.
func (b *backendService) profile(ctx context.Context, id uuid.UUID) *models.User {
	row, err := b.profiles.FindByID(ctx, id)
	if err != nil {
		if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
			b.logg.Error(ctx, "profile lookup failed", err)
		}
		return nil
	}
	return row
}

// profileFor rebuilds a customer profile row from the identity with changes
// applied on top.
func profileFor(user identity.User, changes profiles.Changes) *models.User {
	row := &models.User{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.Metadata.FullName,
		Role:     models.RoleCustomer,
	}
	if phone := user.Metadata.Phone; phone != "" {
		row.Phone = &phone
	}
	if changes.FullName != nil {
		row.FullName = *changes.FullName
	}
	if changes.Phone != nil {
		row.Phone = changes.Phone
	}
	if changes.Address != nil {
		row.Address = changes.Address
	}
	return row
}

func (b *backendService) store(ctx context.Context, session *Session) {
	if err := b.cache.SetJSON(ctx, b.cache.CurrentUserKey(ctx), session); err != nil {
		b.logg.Error(ctx, "caching session failed", err)
	}
}

// compose builds the session: the profile name wins, then the identity
// metadata, then fallbackName.
func compose(user identity.User, profile *models.User, fallbackName string) *Session {
	s := &Session{
		ID:    user.ID.String(),
		Email: user.Email,
		Role:  models.RoleCustomer,
	}
	if profile != nil {
		s.Name = profile.FullName
		if profile.Phone != nil {
			s.Phone = *profile.Phone
		}
		if profile.Address != nil {
			s.Address = *profile.Address
		}
		if profile.AvatarURL != nil {
			s.AvatarURL = *profile.AvatarURL
		}
		if profile.Role != "" {
			s.Role = profile.Role
		}
		s.IsAdmin = profile.IsAdmin()
	}
	if s.Name == "" {
		s.Name = user.Metadata.FullName
	}
	if s.Name == "" {
		s.Name = fallbackName
	}
	return s
}
