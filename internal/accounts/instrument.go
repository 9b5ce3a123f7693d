package accounts

import (
	"context"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/pkg/metrics"
)

type observer interface {
	Observe(operation, mode string, success bool, elapsed time.Duration)
}

// instrumented records the duration and outcome of every Result-returning call.
type instrumented struct {
	Service
	obs observer
}

func instrument(svc Service, m *metrics.AccountMetrics) Service {
	if m == nil {
		return svc
	}
	return &instrumented{Service: svc, obs: m}
}

func (i *instrumented) observe(op string, start time.Time, success bool) {
	i.obs.Observe(op, string(i.Mode()), success, time.Since(start))
}

func (i *instrumented) Register(ctx context.Context, input RegisterInput) Result {
	start := time.Now()
	res := i.Service.Register(ctx, input)
	i.observe("register", start, res.Success)
	return res
}

func (i *instrumented) Login(ctx context.Context, email, password string) Result {
	start := time.Now()
	res := i.Service.Login(ctx, email, password)
	i.observe("login", start, res.Success)
	return res
}

func (i *instrumented) Logout(ctx context.Context) Result {
	start := time.Now()
	res := i.Service.Logout(ctx)
	i.observe("logout", start, res.Success)
	return res
}

func (i *instrumented) UpdateProfile(ctx context.Context, updates ProfileUpdates) Result {
	start := time.Now()
	res := i.Service.UpdateProfile(ctx, updates)
	i.observe("update_profile", start, res.Success)
	return res
}

func (i *instrumented) ResetPassword(ctx context.Context, email, origin string) Result {
	start := time.Now()
	res := i.Service.ResetPassword(ctx, email, origin)
	i.observe("reset_password", start, res.Success)
	return res
}

func (i *instrumented) UploadPhoto(ctx context.Context, photo Photo) Result {
	start := time.Now()
	res := i.Service.UploadPhoto(ctx, photo)
	i.observe("upload_photo", start, res.Success)
	return res
}

func (i *instrumented) ChangePassword(ctx context.Context, newPassword string) Result {
	start := time.Now()
	res := i.Service.ChangePassword(ctx, newPassword)
	i.observe("change_password", start, res.Success)
	return res
}

func (i *instrumented) ListOrders(ctx context.Context) OrdersResult {
	start := time.Now()
	res := i.Service.ListOrders(ctx)
	i.observe("list_orders", start, res.Success)
	return res
}
