// Package accounts is the storefront session and profile service. One
// strategy is chosen at startup: the hosted backend when it is configured,
// otherwise the local cache.
package accounts

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pharmacare-storefront/internal/backend"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/angelmondragon/pharmacare-storefront/pkg/metrics"
	"github.com/angelmondragon/pharmacare-storefront/pkg/security"
)

// Service is the account API shared by both strategies.
type Service interface {
	Mode() Mode
	Register(ctx context.Context, input RegisterInput) Result
	Login(ctx context.Context, email, password string) Result
	Logout(ctx context.Context) Result
	IsLoggedIn(ctx context.Context) bool
	CurrentUser(ctx context.Context) *Session
	UpdateProfile(ctx context.Context, updates ProfileUpdates) Result
	ResetPassword(ctx context.Context, email, origin string) Result
	UploadPhoto(ctx context.Context, photo Photo) Result
	ChangePassword(ctx context.Context, newPassword string) Result
	ListOrders(ctx context.Context) OrdersResult
	OnAuthStateChange(ctx context.Context, listener Listener) (unsubscribe func())
}

// sessionCache is the subset of the local cache the strategies use.
type sessionCache interface {
	CurrentUserKey(ctx context.Context) string
	RegistryKey() string
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Params bundles what New needs. Backend is nil when backend.Probe found no
// backend configuration.
type Params struct {
	Backend *backend.Client
	Cache   sessionCache
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.AccountMetrics
}

// New selects the strategy once: backend when a client is present, fallback otherwise.
func New(params Params) (Service, error) {
	if params.Cache == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	var svc Service
	if params.Backend != nil {
		b, err := newBackendService(backendDeps{
			auth:     params.Backend.Auth,
			profiles: params.Backend.Profiles,
			orders:   params.Backend.Orders,
			avatars:  params.Backend.Avatars,
			cache:    params.Cache,
			currency: params.Config.Storefront.CurrencySymbol,
			logg:     logg,
		})
		if err != nil {
			return nil, err
		}
		svc = b
	} else {
		svc = newFallbackService(params.Cache, security.NewHasher(params.Config.Password), logg)
	}

	logg.Info(logg.WithField(context.Background(), "mode", string(svc.Mode())), "accounts service ready")
	return instrument(svc, params.Metrics), nil
}
