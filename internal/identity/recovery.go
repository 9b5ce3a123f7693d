package identity

import (
	"context"
	"net/url"
	"strings"
	"time"

	pkgauth "github.com/angelmondragon/pharmacare-storefront/pkg/auth"
	"github.com/angelmondragon/pharmacare-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pharmacare-storefront/pkg/errors"
)

// ResetPasswordForEmail emails a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	record, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			s.logg.Info(ctx, "password reset requested for unknown email")
			return nil
		}
		return err
	}
	ctx = s.logg.WithUserID(ctx, record.ID.String())
	if err := s.sendLink(ctx, EmailPasswordReset, record, redirectTo); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send reset email")
	}
	return nil
}

// Recover consumes a recovery token, sets the new password and signs the
// browser context in.
func (s *service) Recover(ctx context.Context, token, newPassword string) (*Session, error) {
	if err := checkPassword(newPassword); err != nil {
		return nil, err
	}
	record, err := s.redeem(ctx, token, pkgauth.PurposeRecovery, s.jwtCfg.RecoveryTTL())
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	fields := map[string]any{"password_hash": hash}
	if record.EmailConfirmedAt == nil {
		// Following an emailed link proves ownership of the address.
		now := s.now().UTC()
		fields["email_confirmed_at"] = now
		record.EmailConfirmedAt = &now
	}
	if err := s.repo.UpdateFields(ctx, record.ID, fields); err != nil {
		return nil, err
	}

	sess, err := s.startSession(ctx, record)
	if err != nil {
		return nil, err
	}
	s.events.emit(ctx, EventPasswordRecovery, sess)
	return sess, nil
}

func (s *service) ConfirmEmail(ctx context.Context, token string) (*User, error) {
	record, err := s.redeem(ctx, token, pkgauth.PurposeConfirmation, s.jwtCfg.ConfirmationTTL())
	if err != nil {
		return nil, err
	}
	if record.EmailConfirmedAt == nil {
		now := s.now().UTC()
		if err := s.repo.UpdateFields(ctx, record.ID, map[string]any{"email_confirmed_at": now}); err != nil {
			return nil, err
		}
		record.EmailConfirmedAt = &now
	}
	user := userFromModel(record)
	return &user, nil
}

// redeem validates an emailed token and burns its id so the link works once.
func (s *service) redeem(ctx context.Context, token string, purpose pkgauth.Purpose, ttl time.Duration) (*models.Identity, error) {
	claims, err := pkgauth.ParseToken(s.jwtCfg, strings.TrimSpace(token), purpose)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgInvalidLink)
	}
	fresh, err := s.marker.MarkTokenUsed(ctx, claims.ID, ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark token used")
	}
	if !fresh {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgInvalidLink)
	}
	record, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgInvalidLink)
		}
		return nil, err
	}
	return record, nil
}

func (s *service) sendLink(ctx context.Context, kind string, record *models.Identity, redirectTo string) error {
	now := s.now().UTC()
	payload := pkgauth.TokenPayload{UserID: record.ID, Email: record.Email}

	var link string
	switch kind {
	case EmailPasswordReset:
		token, err := pkgauth.MintRecoveryToken(s.jwtCfg, now, payload)
		if err != nil {
			return err
		}
		link = withQuery(s.resolveRedirect(redirectTo), url.Values{"token": {token}, "type": {"recovery"}})
	default:
		token, err := pkgauth.MintConfirmationToken(s.jwtCfg, now, payload)
		if err != nil {
			return err
		}
		q := url.Values{"token": {token}}
		if target := s.resolveRedirect(redirectTo); target != "" {
			q.Set("redirect_to", target)
		}
		link = withQuery(s.origin+"/api/v1/auth/confirm", q)
	}

	return s.mailer.Send(ctx, AccountEmail{Type: kind, Email: record.Email, Link: link, OccurredAt: now})
}

// resolveRedirect keeps redirects on the storefront origin.
func (s *service) resolveRedirect(redirectTo string) string {
	target := strings.TrimSpace(redirectTo)
	if target == "" {
		return s.origin + "/"
	}
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") {
		return s.origin + target
	}
	if s.origin != "" && !strings.HasPrefix(target, s.origin+"/") && target != s.origin {
		return s.origin + "/"
	}
	return target
}

func withQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
