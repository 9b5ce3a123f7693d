package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/auth/session"
	"github.com/angelmondragon/pharmacare-storefront/pkg/cache"
	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubSessions struct {
	mu          sync.Mutex
	sessions    map[string]string
	rotated     int
	generateErr error
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: map[string]string{}}
}

func (s *stubSessions) Generate(_ context.Context, accessID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generateErr != nil {
		return "", s.generateErr
	}
	token := "refresh-" + accessID
	s.sessions[accessID] = token
	return token, nil
}

func (s *stubSessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[oldAccessID] != provided || provided == "" {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(s.sessions, oldAccessID)
	next := session.NewAccessID()
	s.sessions[next] = "refresh-" + next
	s.rotated++
	return next, "refresh-" + next, nil
}

func (s *stubSessions) Revoke(_ context.Context, accessID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, accessID)
	return nil
}

func (s *stubSessions) HasSession(_ context.Context, accessID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[accessID]
	return ok, nil
}

func (s *stubSessions) revokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
}

type stubMailer struct {
	mu   sync.Mutex
	sent []AccountEmail
	err  error
}

func (m *stubMailer) Send(_ context.Context, email AccountEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *stubMailer) last(t *testing.T) AccountEmail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "expected an email")
	return m.sent[len(m.sent)-1]
}

type stubMarker struct {
	mu   sync.Mutex
	used map[string]bool
}

func (m *stubMarker) MarkTokenUsed(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[tokenID] {
		return false, nil
	}
	m.used[tokenID] = true
	return true, nil
}

type fixture struct {
	svc      *service
	sessions *stubSessions
	mailer   *stubMailer
	now      time.Time
}

func setupIdentityTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	identities := `
CREATE TABLE IF NOT EXISTS identities (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  full_name TEXT NOT NULL DEFAULT '',
  phone TEXT,
  email_confirmed_at DATETIME,
  last_sign_in_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(identities).Error)
	return conn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := cache.New(cache.NewMemoryStore(), config.StorageConfig{UserKey: "pharmacare_user", AuthKey: "pharmacare_auth_token"})
	require.NoError(t, err)

	f := &fixture{
		sessions: newStubSessions(),
		mailer:   &stubMailer{},
		now:      time.Now(),
	}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(setupIdentityTestDB(t)),
		Sessions:    f.sessions,
		Cache:       store,
		Hasher:      security.NewHasher(config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}),
		Mailer:      f.mailer,
		TokenMarker: &stubMarker{used: map[string]bool{}},
		JWTConfig: config.JWTConfig{
			Secret:                 "test-secret",
			Issuer:                 "pharmacare",
			ExpirationMinutes:      15,
			RefreshTokenTTLMinutes: 60,
		},
		PublicOrigin: "https://shop.example.com",
		Now:          func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc.(*service)
	return f
}

func clientCtx(id string) context.Context {
	return clientctx.With(context.Background(), id)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 32)}
}

func (r *recorder) listen(_ context.Context, event Event, _ *Session) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.ch <- event
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth event")
		return ""
	}
}

func TestSignUpSignsInAndSendsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")
	rec := newRecorder()
	unsubscribe := f.svc.OnAuthStateChange(ctx, rec.listen)
	defer unsubscribe()
	require.Equal(t, EventInitialSession, rec.next(t))

	user, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1", FullName: "Ana", Phone: "555", RedirectTo: "/pages/login.html"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Metadata.FullName)
	assert.Equal(t, "555", user.Metadata.Phone)
	assert.Nil(t, user.EmailConfirmedAt)
	assert.Equal(t, EventSignedIn, rec.next(t))

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, user.ID, sess.User.ID)

	mail := f.mailer.last(t)
	assert.Equal(t, EmailSignupConfirmation, mail.Type)
	assert.Equal(t, "ana@example.com", mail.Email)
	assert.True(t, strings.HasPrefix(mail.Link, "https://shop.example.com/api/v1/auth/confirm?"))
	assert.Contains(t, mail.Link, url.QueryEscape("https://shop.example.com/pages/login.html"))
}

func TestSignUpRejectsDuplicateAndWeakPassword(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")

	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.svc.SignUp(clientCtx("browser-2"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
	assert.Equal(t, "User already registered", pkgerrors.MessageOr(err, ""))

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "bo@example.com", Password: "123"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "not-an-email", Password: "secret1"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestSignUpSurvivesMailerFailure(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = fmt.Errorf("topic unavailable")

	user, err := f.svc.SignUp(clientCtx("browser-1"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
}

func TestSignUpKeepsIdentityWhenSessionStoreFails(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")
	f.sessions.generateErr = fmt.Errorf("redis down")

	user, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1", FullName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Metadata.FullName)
	assert.Len(t, f.mailer.sent, 1)

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess, "no session without a refresh token")

	f.sessions.generateErr = nil
	sess, err = f.svc.SignInWithPassword(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, sess.User.ID)
}

func TestSignInWithPassword(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignUp(clientCtx("setup"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	ctx := clientCtx("browser-2")
	_, err = f.svc.SignInWithPassword(ctx, "ana@example.com", "wrong-password")
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	assert.Equal(t, msgInvalidCredentials, pkgerrors.MessageOr(err, ""))

	_, err = f.svc.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, msgInvalidCredentials, pkgerrors.MessageOr(err, ""))

	sess, err := f.svc.SignInWithPassword(ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, sess.User.LastSignInAt)
	assert.NotEmpty(t, sess.AccessToken)
}

func TestSessionsAreScopedPerClient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignUp(clientCtx("browser-1"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	other, err := f.svc.GetSession(clientCtx("browser-2"))
	require.NoError(t, err)
	assert.Nil(t, other)

	user, err := f.svc.GetUser(clientCtx("browser-1"))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "ana@example.com", user.Email)
}

func TestGetSessionRefreshesExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")

	f.now = time.Now().Add(-2 * time.Hour)
	first, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	f.now = time.Now()

	rec := newRecorder()
	unsubscribe := f.svc.OnAuthStateChange(ctx, rec.listen)
	defer unsubscribe()

	// The initial lookup performs the refresh, so it is announced before the snapshot.
	assert.Equal(t, EventTokenRefreshed, rec.next(t))
	assert.Equal(t, EventInitialSession, rec.next(t))
	assert.Equal(t, 1, f.sessions.rotated)

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, first.ID, sess.User.ID)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
	assert.Equal(t, 1, f.sessions.rotated)
}

func TestGetSessionDropsRevokedSession(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")
	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	f.sessions.revokeAll()

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	pair, err := f.svc.slot.load(ctx)
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestGetSessionSignsOutWhenRefreshRejected(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")

	f.now = time.Now().Add(-2 * time.Hour)
	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	f.now = time.Now()
	f.sessions.revokeAll()

	rec := newRecorder()
	unsubscribe := f.svc.OnAuthStateChange(ctx, rec.listen)
	defer unsubscribe()
	assert.Equal(t, EventSignedOut, rec.next(t))
	assert.Equal(t, EventInitialSession, rec.next(t))

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSignOutRevokesAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")
	_, err := f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	rec := newRecorder()
	unsubscribe := f.svc.OnAuthStateChange(ctx, rec.listen)
	defer unsubscribe()
	require.Equal(t, EventInitialSession, rec.next(t))

	require.NoError(t, f.svc.SignOut(ctx))
	assert.Equal(t, EventSignedOut, rec.next(t))
	assert.Empty(t, f.sessions.sessions)

	sess, err := f.svc.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// Signing out again is a no-op.
	require.NoError(t, f.svc.SignOut(ctx))
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := clientCtx("browser-1")

	_, err := f.svc.UpdateUser(ctx, UserUpdate{FullName: strPtr("Nobody")})
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	_, err = f.svc.SignUp(ctx, SignUpInput{Email: "ana@example.com", Password: "secret1", FullName: "Ana"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateUser(ctx, UserUpdate{FullName: strPtr("Ana Maria"), Password: strPtr("another1")})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Metadata.FullName)

	_, err = f.svc.SignInWithPassword(clientCtx("browser-2"), "ana@example.com", "another1")
	require.NoError(t, err)

	_, err = f.svc.UpdateUser(ctx, UserUpdate{Password: strPtr("x")})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestPasswordRecoveryFlow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignUp(clientCtx("setup"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	sentBefore := len(f.mailer.sent)

	require.NoError(t, f.svc.ResetPasswordForEmail(context.Background(), "nobody@example.com", ""))
	assert.Len(t, f.mailer.sent, sentBefore)

	require.NoError(t, f.svc.ResetPasswordForEmail(context.Background(), "ana@example.com", "https://shop.example.com/pages/reset-password.html"))
	mail := f.mailer.last(t)
	assert.Equal(t, EmailPasswordReset, mail.Type)

	link, err := url.Parse(mail.Link)
	require.NoError(t, err)
	assert.Equal(t, "/pages/reset-password.html", link.Path)
	assert.Equal(t, "recovery", link.Query().Get("type"))
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	ctx := clientCtx("browser-3")
	rec := newRecorder()
	unsubscribe := f.svc.OnAuthStateChange(ctx, rec.listen)
	defer unsubscribe()
	require.Equal(t, EventInitialSession, rec.next(t))

	sess, err := f.svc.Recover(ctx, token, "brand-new")
	require.NoError(t, err)
	assert.NotNil(t, sess.User.EmailConfirmedAt)
	assert.Equal(t, EventPasswordRecovery, rec.next(t))

	_, err = f.svc.Recover(ctx, token, "brand-new")
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	_, err = f.svc.SignInWithPassword(clientCtx("browser-4"), "ana@example.com", "brand-new")
	require.NoError(t, err)
}

func TestConfirmEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignUp(clientCtx("setup"), SignUpInput{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	link, err := url.Parse(f.mailer.last(t).Link)
	require.NoError(t, err)
	token := link.Query().Get("token")

	user, err := f.svc.ConfirmEmail(context.Background(), token)
	require.NoError(t, err)
	assert.NotNil(t, user.EmailConfirmedAt)

	_, err = f.svc.ConfirmEmail(context.Background(), token)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

	_, err = f.svc.ConfirmEmail(context.Background(), "garbage")
	assert.Equal(t, msgInvalidLink, pkgerrors.MessageOr(err, ""))
}

func TestResolveRedirectStaysOnOrigin(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "https://shop.example.com/", f.svc.resolveRedirect(""))
	assert.Equal(t, "https://shop.example.com/pages/a.html", f.svc.resolveRedirect("/pages/a.html"))
	assert.Equal(t, "https://shop.example.com/", f.svc.resolveRedirect("https://evil.example.net/x"))
	assert.Equal(t, "https://shop.example.com/", f.svc.resolveRedirect("//evil.example.net"))
	assert.Equal(t, "https://shop.example.com/pages/b.html", f.svc.resolveRedirect("https://shop.example.com/pages/b.html"))
}

func strPtr(s string) *string { return &s }
