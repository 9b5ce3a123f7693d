package accounts

import (
	"context"
	"crypto/subtle"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
)

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// fallbackService keeps every account in the local cache. The registry is a
// single shared value, so its read-modify-write cycles hold mu.
type fallbackService struct {
	mu     sync.Mutex
	cache  sessionCache
	hasher passwordHasher
	logg   *logger.Logger
	now    func() time.Time
}

func newFallbackService(cache sessionCache, hasher passwordHasher, logg *logger.Logger) *fallbackService {
	if logg == nil {
		logg = logger.Nop()
	}
	return &fallbackService{cache: cache, hasher: hasher, logg: logg, now: time.Now}
}

func (f *fallbackService) Mode() Mode { return ModeFallback }

func (f *fallbackService) Register(ctx context.Context, input RegisterInput) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadRegistry(ctx)
	if err != nil {
		return failure(msgRegistrationFailed, pkgerrors.CodeDependency)
	}
	for _, u := range users {
		if u.Email == input.Email {
			return failure(msgEmailRegistered, pkgerrors.CodeConflict)
		}
	}

	hash, err := f.hasher.Hash(input.Password)
	if err != nil {
		f.logg.Error(ctx, "hashing password failed", err)
		return failure(msgRegistrationFailed, pkgerrors.CodeInternal)
	}
	record := UserRecord{
		ID:           nextID(users),
		Email:        input.Email,
		PasswordHash: hash,
		Name:         input.Name,
		IsAdmin:      false,
		CreatedAt:    f.now().UTC(),
	}
	if input.Phone != "" {
		phone := input.Phone
		record.Phone = &phone
	}
	users = append(users, record)
	if err := f.saveRegistry(ctx, users); err != nil {
		return failure(msgRegistrationFailed, pkgerrors.CodeDependency)
	}

	session := reducedSession(record)
	f.store(ctx, session)
	return Result{Success: true, User: session}
}

func (f *fallbackService) Login(ctx context.Context, email, password string) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadRegistry(ctx)
	if err != nil {
		return failure(msgInvalidCredentials, pkgerrors.CodeDependency)
	}
	for i := range users {
		if users[i].Email != email {
			continue
		}
		ok, upgraded := f.checkPassword(ctx, &users[i], password)
		if !ok {
			continue
		}
		if upgraded {
			if err := f.saveRegistry(ctx, users); err != nil {
				f.logg.Warn(ctx, "persisting upgraded password hash failed")
			}
		}
		session := reducedSession(users[i])
		f.store(ctx, session)
		return Result{Success: true, User: session}
	}
	return failure(msgInvalidCredentials, pkgerrors.CodeUnauthorized)
}

func (f *fallbackService) Logout(ctx context.Context) Result {
	if err := f.cache.Remove(ctx, f.cache.CurrentUserKey(ctx)); err != nil {
		f.logg.Error(ctx, "clearing cached session failed", err)
	}
	return Result{Success: true}
}

func (f *fallbackService) IsLoggedIn(ctx context.Context) bool {
	return f.CurrentUser(ctx) != nil
}

// CurrentUser returns the cached session verbatim.
func (f *fallbackService) CurrentUser(ctx context.Context) *Session {
	var session Session
	ok, err := f.cache.GetJSON(ctx, f.cache.CurrentUserKey(ctx), &session)
	if err != nil {
		f.logg.Error(ctx, "reading cached session failed", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &session
}

// UpdateProfile merges the provided fields into the registry record and
// caches the reduced session.
func (f *fallbackService) UpdateProfile(ctx context.Context, updates ProfileUpdates) Result {
	current := f.CurrentUser(ctx)
	if current == nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadRegistry(ctx)
	if err != nil {
		return failure(msgUpdateFailed, pkgerrors.CodeDependency)
	}
	idx := indexOf(users, current.ID)
	if idx < 0 {
		return failure(msgUserNotFound, pkgerrors.CodeNotFound)
	}

	record := &users[idx]
	if updates.Name != nil {
		record.Name = *updates.Name
	}
	if updates.Phone != nil {
		phone := *updates.Phone
		record.Phone = &phone
	}
	if updates.Address != nil {
		address := *updates.Address
		record.Address = &address
	}
	if err := f.saveRegistry(ctx, users); err != nil {
		return failure(msgUpdateFailed, pkgerrors.CodeDependency)
	}

	session := reducedSession(*record)
	f.store(ctx, session)
	return Result{Success: true, User: session}
}

func (f *fallbackService) ResetPassword(context.Context, string, string) Result {
	return failure(msgResetOffline, pkgerrors.CodeUnsupported)
}

func (f *fallbackService) UploadPhoto(context.Context, Photo) Result {
	return failure(msgUploadUnavailable, pkgerrors.CodeUnsupported)
}

func (f *fallbackService) ChangePassword(ctx context.Context, newPassword string) Result {
	current := f.CurrentUser(ctx)
	if current == nil {
		return failure(msgNotLoggedIn, pkgerrors.CodeUnauthorized)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	users, err := f.loadRegistry(ctx)
	if err != nil {
		return failure(msgPasswordUpdateFailed, pkgerrors.CodeDependency)
	}
	idx := indexOf(users, current.ID)
	if idx < 0 {
		return failure(msgUserNotFound, pkgerrors.CodeNotFound)
	}
	hash, err := f.hasher.Hash(newPassword)
	if err != nil {
		f.logg.Error(ctx, "hashing password failed", err)
		return failure(msgPasswordUpdateFailed, pkgerrors.CodeInternal)
	}
	users[idx].PasswordHash = hash
	users[idx].Password = ""
	if err := f.saveRegistry(ctx, users); err != nil {
		return failure(msgPasswordUpdateFailed, pkgerrors.CodeDependency)
	}
	return Result{Success: true, Message: msgPasswordUpdated}
}

func (f *fallbackService) ListOrders(context.Context) OrdersResult {
	return OrdersResult{Error: msgOrdersUnavailable, Code: pkgerrors.CodeUnsupported}
}

// OnAuthStateChange never calls listener: there is no remote session to watch.
func (f *fallbackService) OnAuthStateChange(context.Context, Listener) func() {
	return func() {}
}

// checkPassword verifies password against the record. A legacy plaintext
// entry that matches is rehashed in place; upgraded reports that.
func (f *fallbackService) checkPassword(ctx context.Context, record *UserRecord, password string) (ok, upgraded bool) {
	if record.PasswordHash != "" {
		ok, err := f.hasher.Verify(password, record.PasswordHash)
		if err != nil {
			f.logg.Warn(f.logg.WithField(ctx, "user_id", record.ID), "stored password hash is unreadable")
			return false, false
		}
		return ok, false
	}
	if record.Password == "" || subtle.ConstantTimeCompare([]byte(record.Password), []byte(password)) != 1 {
		return false, false
	}
	hash, err := f.hasher.Hash(password)
	if err != nil {
		f.logg.Error(ctx, "rehashing legacy password failed", err)
		return true, false
	}
	record.PasswordHash = hash
	record.Password = ""
	return true, true
}

func (f *fallbackService) loadRegistry(ctx context.Context) ([]UserRecord, error) {
	var users []UserRecord
	if _, err := f.cache.GetJSON(ctx, f.cache.RegistryKey(), &users); err != nil {
		f.logg.Error(ctx, "reading user registry failed", err)
		return nil, err
	}
	return users, nil
}

func (f *fallbackService) saveRegistry(ctx context.Context, users []UserRecord) error {
	if err := f.cache.SetJSON(ctx, f.cache.RegistryKey(), users); err != nil {
		f.logg.Error(ctx, "writing user registry failed", err)
		return err
	}
	return nil
}

func (f *fallbackService) store(ctx context.Context, session *Session) {
	if err := f.cache.SetJSON(ctx, f.cache.CurrentUserKey(ctx), session); err != nil {
		f.logg.Error(ctx, "caching session failed", err)
	}
}

func reducedSession(u UserRecord) *Session {
	return &Session{ID: strconv.Itoa(u.ID), Email: u.Email, Name: u.Name, IsAdmin: u.IsAdmin}
}

// nextID is one more than the largest id, or 1 for an empty registry.
func nextID(users []UserRecord) int {
	maxID := 0
	for _, u := range users {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return maxID + 1
}

func indexOf(users []UserRecord, id string) int {
	for i, u := range users {
		if strconv.Itoa(u.ID) == id {
			return i
		}
	}
	return -1
}
