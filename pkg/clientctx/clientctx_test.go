package clientctx

import (
	"context"
	"testing"
)

func TestIDDefaultsWhenUnset(t *testing.T) {
	if got := ID(context.Background()); got != DefaultID {
		t.Fatalf("expected default id, got %q", got)
	}
	if got := ID(With(context.Background(), "   ")); got != DefaultID {
		t.Fatalf("expected blank id to fall back to default, got %q", got)
	}
}

func TestIDRoundTrip(t *testing.T) {
	ctx := With(context.Background(), "browser-1")
	if got := ID(ctx); got != "browser-1" {
		t.Fatalf("expected browser-1, got %q", got)
	}
}

func TestRenewWithoutRenewerKeepsContext(t *testing.T) {
	ctx := With(context.Background(), "browser-1")
	renewed, commit := Renew(ctx)
	commit()
	if got := ID(renewed); got != "browser-1" {
		t.Fatalf("expected id to be kept, got %q", got)
	}
}

func TestRenewUsesInstalledRenewer(t *testing.T) {
	committed := false
	ctx := WithRenewer(With(context.Background(), "planted"), func(ctx context.Context) (context.Context, func()) {
		return With(ctx, "fresh"), func() { committed = true }
	})

	renewed, commit := Renew(ctx)
	if got := ID(renewed); got != "fresh" {
		t.Fatalf("expected fresh id, got %q", got)
	}
	if committed {
		t.Fatal("commit ran before it was called")
	}
	commit()
	if !committed {
		t.Fatal("expected commit to run")
	}
}
