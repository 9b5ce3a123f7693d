// Package backend assembles the hosted services behind backend mode.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/pharmacare-storefront/internal/avatars"
	"github.com/angelmondragon/pharmacare-storefront/internal/identity"
	"github.com/angelmondragon/pharmacare-storefront/internal/orders"
	"github.com/angelmondragon/pharmacare-storefront/internal/profiles"
	"github.com/angelmondragon/pharmacare-storefront/pkg/auth/session"
	"github.com/angelmondragon/pharmacare-storefront/pkg/cache"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db"
	"github.com/angelmondragon/pharmacare-storefront/pkg/logger"
	"github.com/angelmondragon/pharmacare-storefront/pkg/metrics"
	"github.com/angelmondragon/pharmacare-storefront/pkg/migrate"
	"github.com/angelmondragon/pharmacare-storefront/pkg/pubsub"
	redisclient "github.com/angelmondragon/pharmacare-storefront/pkg/redis"
	"github.com/angelmondragon/pharmacare-storefront/pkg/security"
	"github.com/angelmondragon/pharmacare-storefront/pkg/storage/gcs"
	"github.com/angelmondragon/pharmacare-storefront/pkg/storage/s3"
	"go.uber.org/multierr"
)

// Client bundles the backend collaborators used by the accounts service.
type Client struct {
	Auth     identity.Service
	Profiles *profiles.Repository
	Orders   *orders.Repository
	Avatars  avatars.Service

	db      *db.Client
	redis   *redisclient.Client
	objects objectBackend
	pubsub  *pubsub.Client
}

// objectBackend is the avatar bucket client, GCS or S3 depending on config.
type objectBackend interface {
	avatars.ObjectStore
	DefaultBucket() string
	Ping(ctx context.Context) error
	Close() error
}

// Params carries what Probe needs to connect.
type Params struct {
	Config  *config.Config
	Cache   *cache.Cache
	Logger  *logger.Logger
	Metrics *metrics.AccountMetrics
}

// Configured reports whether cfg asks for backend mode with the settings it cannot run without.
func Configured(cfg *config.Config) bool {
	if cfg == nil || !cfg.Backend.Enabled {
		return false
	}
	return cfg.DB.Configured() &&
		strings.TrimSpace(cfg.JWT.Secret) != "" &&
		strings.TrimSpace(avatarBucket(cfg)) != ""
}

func avatarBucket(cfg *config.Config) string {
	if cfg.Backend.AvatarStore == config.AvatarStoreS3 {
		return cfg.S3.AvatarBucket
	}
	return cfg.GCS.AvatarBucket
}

func openObjectStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (objectBackend, error) {
	if cfg.Backend.AvatarStore == config.AvatarStoreS3 {
		client, err := s3.NewClient(ctx, cfg.S3, logg)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Probe returns nil, nil when backend mode is not configured. Otherwise it
// connects every backend service and fails on the first one that is unreachable.
func Probe(ctx context.Context, p Params) (client *Client, err error) {
	if !Configured(p.Config) {
		return nil, nil
	}
	if p.Cache == nil {
		return nil, fmt.Errorf("local cache is required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := p.Config

	c := &Client{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, c.Close())
			client = nil
		}
	}()

	if c.db, err = db.New(ctx, cfg.DB, logg); err != nil {
		return nil, err
	}
	if err = migrate.MaybeRunDev(ctx, cfg, logg, c.db); err != nil {
		return nil, err
	}
	if c.redis, err = redisclient.New(ctx, cfg.Redis, logg); err != nil {
		return nil, err
	}
	if c.objects, err = openObjectStore(ctx, cfg, logg); err != nil {
		return nil, err
	}
	if c.pubsub, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg); err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(c.redis, cfg.JWT)
	if err != nil {
		return nil, err
	}
	mailer, err := identity.NewPubSubMailer(c.pubsub.AccountEmailPublisher())
	if err != nil {
		return nil, err
	}
	params := identity.ServiceParams{
		Repo:         identity.NewRepository(c.db.DB()),
		Sessions:     sessions,
		Cache:        p.Cache,
		Hasher:       security.NewHasher(cfg.Password),
		Mailer:       mailer,
		TokenMarker:  c.redis,
		JWTConfig:    cfg.JWT,
		PublicOrigin: cfg.App.PublicOrigin,
		Logger:       logg,
	}
	if p.Metrics != nil {
		params.Dropped = p.Metrics
	}
	if c.Auth, err = identity.NewService(params); err != nil {
		return nil, err
	}

	c.Profiles = profiles.NewRepository(c.db.DB())
	c.Orders = orders.NewRepository(c.db.DB())
	if c.Avatars, err = avatars.NewService(c.objects, c.Profiles, c.objects.DefaultBucket()); err != nil {
		return nil, err
	}

	logg.Info(ctx, "backend mode enabled")
	return c, nil
}

// Redis exposes the shared Redis client for rate limiting.
func (c *Client) Redis() *redisclient.Client {
	if c == nil {
		return nil
	}
	return c.redis
}

// Ping checks every backend dependency.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var err error
	if c.db != nil {
		err = multierr.Append(err, wrapPing("database", c.db.Ping(ctx)))
	}
	if c.redis != nil {
		err = multierr.Append(err, wrapPing("redis", c.redis.Ping(ctx)))
	}
	if c.objects != nil {
		err = multierr.Append(err, wrapPing("object storage", c.objects.Ping(ctx)))
	}
	if c.pubsub != nil {
		err = multierr.Append(err, wrapPing("pubsub", c.pubsub.Ping(ctx)))
	}
	return err
}

// Close releases every connection that was opened.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.pubsub != nil {
		err = multierr.Append(err, c.pubsub.Close())
	}
	if c.objects != nil {
		err = multierr.Append(err, c.objects.Close())
	}
	if c.redis != nil {
		err = multierr.Append(err, c.redis.Close())
	}
	if c.db != nil {
		err = multierr.Append(err, c.db.Close())
	}
	return err
}

func wrapPing(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
