package accounts

import (
	"context"
	"sync"
	"testing"

	"github.com/angelmondragon/pharmacare-storefront/pkg/cache"
	"github.com/angelmondragon/pharmacare-storefront/pkg/clientctx"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorageConfig() config.StorageConfig {
	return config.StorageConfig{UserKey: "pharmacare_user", AuthKey: "pharmacare_auth_token"}
}

func testHasher() *security.Hasher {
	return security.NewHasher(config.PasswordConfig{ArgonMemoryKB: 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32})
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(cache.NewMemoryStore(), testStorageConfig())
	require.NoError(t, err)
	return c
}

func newFallback(t *testing.T) (*fallbackService, *cache.Cache) {
	t.Helper()
	c := newTestCache(t)
	return newFallbackService(c, testHasher(), nil), c
}

func registry(t *testing.T, c *cache.Cache) []UserRecord {
	t.Helper()
	var users []UserRecord
	_, err := c.GetJSON(context.Background(), c.RegistryKey(), &users)
	require.NoError(t, err)
	return users
}

func browser(id string) context.Context {
	return clientctx.With(context.Background(), id)
}

func TestFallbackRegisterScenario(t *testing.T) {
	svc, c := newFallback(t)
	ctx := browser("tab-1")

	res := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, &Session{ID: "1", Email: "a@x.com", Name: "A", IsAdmin: false}, res.User)
	assert.Equal(t, res.User, svc.CurrentUser(ctx))

	users := registry(t, c)
	require.Len(t, users, 1)
	assert.Equal(t, 1, users[0].ID)
	assert.Empty(t, users[0].Password)
	assert.NotEqual(t, "pw1", users[0].PasswordHash)
	assert.False(t, users[0].CreatedAt.IsZero())

	dup := svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "other", Name: "B"})
	assert.False(t, dup.Success)
	assert.Equal(t, "Email already registered", dup.Error)
	assert.Equal(t, pkgerrors.CodeConflict, dup.Code)
	assert.Len(t, registry(t, c), 1)

	second := svc.Register(ctx, RegisterInput{Email: "b@x.com", Password: "pw2", Name: "B"})
	require.True(t, second.Success)
	assert.Equal(t, "2", second.User.ID)
}

func TestFallbackLoginScenario(t *testing.T) {
	svc, _ := newFallback(t)
	require.True(t, svc.Register(browser("setup"), RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)

	ctx := browser("tab-2")
	res := svc.Login(ctx, "a@x.com", "wrong")
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid email or password", res.Error)
	assert.Nil(t, svc.CurrentUser(ctx))

	res = svc.Login(ctx, "A@x.com", "pw1")
	assert.False(t, res.Success, "email match is exact")

	res = svc.Login(ctx, "a@x.com", "pw1")
	require.True(t, res.Success)
	assert.Equal(t, "1", res.User.ID)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.True(t, svc.IsLoggedIn(ctx))
}

func TestFallbackRegisterThenLoginRoundTrip(t *testing.T) {
	svc, _ := newFallback(t)
	inputs := []RegisterInput{
		{Email: "one@example.com", Password: "secret-1", Name: "One"},
		{Email: "two@example.com", Password: "p", Name: "Two"},
		{Email: "three+tag@example.com", Password: "päss wörd", Name: ""},
	}
	for _, in := range inputs {
		require.True(t, svc.Register(browser("reg"), in).Success, in.Email)
		res := svc.Login(browser("login-"+in.Email), in.Email, in.Password)
		require.True(t, res.Success, in.Email)
		assert.Equal(t, in.Email, res.User.Email)
	}
}

func TestFallbackLogoutClearsSession(t *testing.T) {
	svc, _ := newFallback(t)
	ctx := browser("tab-1")
	require.True(t, svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)
	require.True(t, svc.IsLoggedIn(ctx))

	assert.True(t, svc.Logout(ctx).Success)
	assert.False(t, svc.IsLoggedIn(ctx))
	assert.Nil(t, svc.CurrentUser(ctx))

	assert.True(t, svc.Logout(ctx).Success)
}

func TestFallbackSessionsArePerBrowser(t *testing.T) {
	svc, _ := newFallback(t)
	require.True(t, svc.Register(browser("tab-1"), RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)

	assert.False(t, svc.IsLoggedIn(browser("tab-2")))
	require.True(t, svc.Login(browser("tab-2"), "a@x.com", "pw1").Success)
	require.True(t, svc.Logout(browser("tab-1")).Success)
	assert.True(t, svc.IsLoggedIn(browser("tab-2")))
}

func TestFallbackUpdateProfileMergesProvidedFields(t *testing.T) {
	svc, c := newFallback(t)
	ctx := browser("tab-1")

	res := svc.UpdateProfile(ctx, ProfileUpdates{Name: strPtr("X")})
	assert.Equal(t, "Not logged in", res.Error)

	require.True(t, svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)

	update := ProfileUpdates{Phone: strPtr("555-1111")}
	res = svc.UpdateProfile(ctx, update)
	require.True(t, res.Success)
	assert.Equal(t, &Session{ID: "1", Email: "a@x.com", Name: "A", IsAdmin: false}, res.User)

	first := registry(t, c)
	require.Len(t, first, 1)
	require.NotNil(t, first[0].Phone)
	assert.Equal(t, "555-1111", *first[0].Phone)
	assert.Equal(t, "A", first[0].Name)
	assert.Equal(t, "a@x.com", first[0].Email)
	assert.Nil(t, first[0].Address)

	require.True(t, svc.UpdateProfile(ctx, update).Success)
	assert.Equal(t, first, registry(t, c))

	res = svc.UpdateProfile(ctx, ProfileUpdates{Name: strPtr("Alice"), Address: strPtr("1 Main St")})
	require.True(t, res.Success)
	assert.Equal(t, "Alice", res.User.Name)
	after := registry(t, c)[0]
	assert.Equal(t, "555-1111", *after.Phone)
	assert.Equal(t, "1 Main St", *after.Address)
	assert.Equal(t, "Alice", svc.CurrentUser(ctx).Name)
}

func TestFallbackUpdateProfileUserMissing(t *testing.T) {
	svc, c := newFallback(t)
	ctx := browser("tab-1")
	require.NoError(t, c.SetJSON(ctx, c.CurrentUserKey(ctx), Session{ID: "42", Email: "ghost@x.com"}))

	res := svc.UpdateProfile(ctx, ProfileUpdates{Name: strPtr("Ghost")})
	assert.False(t, res.Success)
	assert.Equal(t, "User not found", res.Error)
}

func TestFallbackUpgradesLegacyPlaintextPassword(t *testing.T) {
	svc, c := newFallback(t)
	ctx := browser("tab-1")
	legacy := []UserRecord{{ID: 7, Email: "old@x.com", Password: "pw1", Name: "Old", IsAdmin: true}}
	require.NoError(t, c.SetJSON(ctx, c.RegistryKey(), legacy))

	require.False(t, svc.Login(ctx, "old@x.com", "nope").Success)
	res := svc.Login(ctx, "old@x.com", "pw1")
	require.True(t, res.Success)
	assert.True(t, res.User.IsAdmin)
	assert.Equal(t, "7", res.User.ID)

	users := registry(t, c)
	assert.Empty(t, users[0].Password)
	assert.NotEmpty(t, users[0].PasswordHash)
	assert.True(t, svc.Login(browser("tab-2"), "old@x.com", "pw1").Success)

	next := svc.Register(ctx, RegisterInput{Email: "new@x.com", Password: "pw2", Name: "New"})
	assert.Equal(t, "8", next.User.ID)
}

func TestFallbackChangePassword(t *testing.T) {
	svc, _ := newFallback(t)
	ctx := browser("tab-1")
	assert.Equal(t, "Not logged in", svc.ChangePassword(ctx, "newpass").Error)

	require.True(t, svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)
	res := svc.ChangePassword(ctx, "newpass")
	require.True(t, res.Success)
	assert.Equal(t, "Password updated successfully", res.Message)

	assert.False(t, svc.Login(browser("tab-2"), "a@x.com", "pw1").Success)
	assert.True(t, svc.Login(browser("tab-2"), "a@x.com", "newpass").Success)
}

func TestFallbackUnsupportedOperations(t *testing.T) {
	svc, _ := newFallback(t)
	ctx := browser("tab-1")
	require.True(t, svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)

	reset := svc.ResetPassword(ctx, "a@x.com", "https://shop.example.com")
	assert.Equal(t, "Password reset not available in offline mode", reset.Error)
	assert.Equal(t, pkgerrors.CodeUnsupported, reset.Code)

	upload := svc.UploadPhoto(ctx, Photo{Name: "me.png", Data: []byte("x")})
	assert.Equal(t, "Upload not available", upload.Error)

	orders := svc.ListOrders(ctx)
	assert.False(t, orders.Success)
	assert.Equal(t, "Orders feature requires database connection", orders.Error)
}

func TestFallbackAuthStateListenerNeverCalled(t *testing.T) {
	svc, _ := newFallback(t)
	ctx := browser("tab-1")
	var calls int
	var mu sync.Mutex
	unsubscribe := svc.OnAuthStateChange(ctx, func(context.Context, string, *Session) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.True(t, svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "pw1", Name: "A"}).Success)
	for i := 0; i < 3; i++ {
		require.True(t, svc.Logout(ctx).Success)
		require.True(t, svc.Login(ctx, "a@x.com", "pw1").Success)
	}
	require.True(t, svc.UpdateProfile(ctx, ProfileUpdates{Name: strPtr("B")}).Success)
	unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestFallbackConcurrentRegistrationsKeepUniqueIDs(t *testing.T) {
	svc, c := newFallback(t)
	var wg sync.WaitGroup
	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com", "a@x.com"}
	for _, email := range emails {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			svc.Register(browser(email), RegisterInput{Email: email, Password: "pw", Name: email})
		}(email)
	}
	wg.Wait()

	users := registry(t, c)
	require.Len(t, users, 5)
	seen := map[int]bool{}
	for _, u := range users {
		assert.False(t, seen[u.ID], "duplicate id %d", u.ID)
		seen[u.ID] = true
	}
}

func strPtr(s string) *string { return &s }
