package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	pkgauth "github.com/angelmondragon/pharmacare-storefront/pkg/auth"
	"github.com/angelmondragon/pharmacare-storefront/pkg/auth/session"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	minPasswordLength = 6

	msgInvalidCredentials = "Invalid login credentials"
	msgSessionMissing     = "Auth session missing!"
	msgInvalidLink        = "Token has expired or is invalid"
)

// Service is the self-hosted identity provider: password sign-in backed by
// JWT access tokens and Redis refresh sessions, one session per browser context.
type Service interface {
	SignUp(ctx context.Context, input SignUpInput) (*User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	UpdateUser(ctx context.Context, update UserUpdate) (*User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	Recover(ctx context.Context, token, newPassword string) (*Session, error)
	ConfirmEmail(ctx context.Context, token string) (*User, error)
	OnAuthStateChange(ctx context.Context, listener Listener) (unsubscribe func())
}

type identityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

type tokenMarker interface {
	MarkTokenUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// ServiceParams bundles the dependencies required to build the identity service.
type ServiceParams struct {
	Repo         identityRepository
	Sessions     sessionManager
	Cache        slotCache
	Hasher       passwordHasher
	Mailer       Mailer
	TokenMarker  tokenMarker
	JWTConfig    config.JWTConfig
	PublicOrigin string
	Logger       *logger.Logger
	Dropped      droppedCounter
	Now          func() time.Time
}

type service struct {
	repo     identityRepository
	sessions sessionManager
	slot     tokenSlot
	hasher   passwordHasher
	mailer   Mailer
	marker   tokenMarker
	jwtCfg   config.JWTConfig
	origin   string
	logg     *logger.Logger
	events   *hub
	now      func() time.Time
}

// NewService constructs the identity service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("identity repository is required")
	case params.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	case params.Cache == nil:
		return nil, fmt.Errorf("token cache is required")
	case params.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	case params.Mailer == nil:
		return nil, fmt.Errorf("mailer is required")
	case params.TokenMarker == nil:
		return nil, fmt.Errorf("token marker is required")
	case params.JWTConfig.Secret == "":
		return nil, fmt.Errorf("jwt secret is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		sessions: params.Sessions,
		slot:     tokenSlot{cache: params.Cache},
		hasher:   params.Hasher,
		mailer:   params.Mailer,
		marker:   params.TokenMarker,
		jwtCfg:   params.JWTConfig,
		origin:   strings.TrimRight(params.PublicOrigin, "/"),
		logg:     logg,
		events:   newHub(logg, params.Dropped),
		now:      now,
	}, nil
}

// SignUp creates the identity, requests a confirmation email and signs the
// browser context in. Confirmation is not required to sign in.
func (s *service) SignUp(ctx context.Context, input SignUpInput) (*User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(input.Password); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	record := &models.Identity{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(input.FullName),
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		record.Phone = &phone
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, record.ID.String())
	if err := s.sendLink(ctx, EmailSignupConfirmation, record, input.RedirectTo); err != nil {
		s.logg.Error(ctx, "signup confirmation email not sent", err)
	}

	// The identity row is authoritative; a missing session only means the
	// user signs in by hand.
	sess, err := s.startSession(ctx, record)
	if err != nil {
		s.logg.Error(ctx, "signup session not started", err)
		user := userFromModel(record)
		return &user, nil
	}
	s.events.emit(ctx, EventSignedIn, sess)
	user := sess.User
	return &user, nil
}

func (s *service) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	record, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgInvalidCredentials)
		}
		return nil, err
	}
	ok, err := s.hasher.Verify(password, record.PasswordHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgInvalidCredentials)
	}

	sess, err := s.startSession(ctx, record)
	if err != nil {
		return nil, err
	}
	s.events.emit(ctx, EventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the refresh session and always clears the token slot.
func (s *service) SignOut(ctx context.Context) error {
	pair, loadErr := s.slot.load(ctx)
	var revokeErr error
	if pair != nil {
		if claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, pair.AccessToken); err == nil {
			revokeErr = s.sessions.Revoke(ctx, claims.ID)
		}
	}
	clearErr := s.slot.clear(ctx)
	if pair != nil {
		s.events.emit(ctx, EventSignedOut, nil)
	}
	return errors.Join(loadErr, revokeErr, clearErr)
}

// GetSession returns the active session of the browser context, or nil. An
// expired access token is rotated through its refresh token.
func (s *service) GetSession(ctx context.Context) (*Session, error) {
	pair, err := s.slot.load(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if pair == nil {
		return nil, nil
	}

	claims, err := pkgauth.ParseAccessToken(s.jwtCfg, pair.AccessToken)
	switch {
	case err == nil:
		active, err := s.sessions.HasSession(ctx, claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check session")
		}
		if !active {
			return nil, s.dropSession(ctx)
		}
		return s.sessionFor(ctx, claims.UserID, *pair)
	case errors.Is(err, jwt.ErrTokenExpired):
		return s.refresh(ctx, *pair)
	default:
		s.logg.Warn(ctx, "discarding unreadable access token")
		return nil, s.dropSession(ctx)
	}
}

func (s *service) GetUser(ctx context.Context) (*User, error) {
	sess, err := s.GetSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	user := sess.User
	return &user, nil
}

func (s *service) UpdateUser(ctx context.Context, update UserUpdate) (*User, error) {
	sess, err := s.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgSessionMissing)
	}
	if update.empty() {
		user := sess.User
		return &user, nil
	}

	fields := map[string]any{}
	if update.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.Phone != nil {
		fields["phone"] = strings.TrimSpace(*update.Phone)
	}
	if update.Password != nil {
		if err := checkPassword(*update.Password); err != nil {
			return nil, err
		}
		hash, err := s.hasher.Hash(*update.Password)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
		}
		fields["password_hash"] = hash
	}
	if err := s.repo.UpdateFields(ctx, sess.User.ID, fields); err != nil {
		return nil, err
	}

	record, err := s.repo.FindByID(ctx, sess.User.ID)
	if err != nil {
		return nil, err
	}
	user := userFromModel(record)
	updated := &Session{User: user, AccessToken: sess.AccessToken, ExpiresAt: sess.ExpiresAt}
	s.events.emit(ctx, EventUserUpdated, updated)
	return &user, nil
}

func (s *service) OnAuthStateChange(ctx context.Context, listener Listener) func() {
	sub, unsubscribe := s.events.subscribe(ctx, listener)
	sess, err := s.GetSession(ctx)
	if err != nil {
		s.logg.Error(ctx, "initial session lookup failed", err)
	}
	s.events.send(ctx, sub, EventInitialSession, sess)
	return unsubscribe
}

func (s *service) startSession(ctx context.Context, record *models.Identity) (*Session, error) {
	now := s.now().UTC()
	accessID := session.NewAccessID()
	refresh, err := s.sessions.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	access, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.TokenPayload{UserID: record.ID, Email: record.Email, JTI: accessID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	pair := tokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: now.Add(s.jwtCfg.AccessTokenTTL())}
	if err := s.slot.save(ctx, pair); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}

	if err := s.repo.UpdateFields(ctx, record.ID, map[string]any{"last_sign_in_at": now}); err != nil {
		s.logg.Warn(ctx, "failed to record last sign in")
	} else {
		record.LastSignInAt = &now
	}
	return &Session{User: userFromModel(record), AccessToken: access, ExpiresAt: pair.ExpiresAt}, nil
}

func (s *service) refresh(ctx context.Context, pair tokenPair) (*Session, error) {
	claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, pair.AccessToken)
	if err != nil {
		return nil, s.dropSession(ctx)
	}
	newAccessID, newRefresh, err := s.sessions.Rotate(ctx, claims.ID, pair.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			dropErr := s.dropSession(ctx)
			s.events.emit(ctx, EventSignedOut, nil)
			return nil, dropErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	now := s.now().UTC()
	access, err := pkgauth.MintAccessToken(s.jwtCfg, now, pkgauth.TokenPayload{UserID: claims.UserID, Email: claims.Email, JTI: newAccessID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	next := tokenPair{AccessToken: access, RefreshToken: newRefresh, ExpiresAt: now.Add(s.jwtCfg.AccessTokenTTL())}
	if err := s.slot.save(ctx, next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}

	sess, err := s.sessionFor(ctx, claims.UserID, next)
	if err != nil || sess == nil {
		return sess, err
	}
	s.events.emit(ctx, EventTokenRefreshed, sess)
	return sess, nil
}

func (s *service) sessionFor(ctx context.Context, userID uuid.UUID, pair tokenPair) (*Session, error) {
	record, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			return nil, s.dropSession(ctx)
		}
		return nil, err
	}
	return &Session{User: userFromModel(record), AccessToken: pair.AccessToken, ExpiresAt: pair.ExpiresAt}, nil
}

// dropSession forgets a token pair that no longer maps to a live session.
func (s *service) dropSession(ctx context.Context) error {
	if err := s.slot.clear(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear session")
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Unable to validate email address: invalid format")
	}
	return email, nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Password should be at least %d characters.", minPasswordLength))
	}
	return nil
}
