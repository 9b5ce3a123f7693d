// Package clientctx carries the browser context identifier on a context.Context.
//
// A browser context is the unit that owns one "current session" slot in the
// local cache, the same way a browser profile owns one localStorage.
package clientctx

import (
	"context"
	"strings"
)

// DefaultID is used when no browser context was attached, e.g. from tooling.
const DefaultID = "default"

type ctxKey struct{}

// With returns a child context bound to the given client id.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(id))
}

// ID returns the client id bound to ctx, or DefaultID.
func ID(ctx context.Context) string {
	if ctx == nil {
		return DefaultID
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return v
	}
	return DefaultID
}

// Renewer binds a freshly issued browser context id to ctx. The returned
// commit hands the new id to the browser.
type Renewer func(ctx context.Context) (context.Context, func())

type renewerKey struct{}

// WithRenewer installs the renewer used by Renew.
func WithRenewer(ctx context.Context, r Renewer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, renewerKey{}, r)
}

// Renew moves ctx onto a new browser context id before a sign-in. commit must
// only run once the sign-in succeeded; until then the browser keeps its old id.
// Without an installed renewer ctx is returned unchanged.
func Renew(ctx context.Context) (context.Context, func()) {
	if ctx != nil {
		if r, ok := ctx.Value(renewerKey{}).(Renewer); ok && r != nil {
			return r(ctx)
		}
	}
	return ctx, func() {}
}
