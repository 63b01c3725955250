package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/geocoder89/devicewatch/internal/notifications"
	"github.com/geocoder89/devicewatch/internal/security"
)

// UserStore is the credential store the service needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (user.User, error)
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID string) error
	// CompletePasswordReset swaps the hash and clears the token fields only if
	// tokenHash is still the stored one; otherwise it returns user.ErrNotFound.
	CompletePasswordReset(ctx context.Context, userID, tokenHash, passwordHash string) error
}

type Session struct {
	Token  string
	Claims *Claims
}

type Service struct {
	users    UserStore
	sessions *Manager
	notifier notifications.Notifier
	baseURL  string
	log      *slog.Logger
	now      func() time.Time
}

func NewService(users UserStore, sessions *Manager, notifier notifications.Notifier, baseURL string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		users:    users,
		sessions: sessions,
		notifier: notifier,
		baseURL:  baseURL,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) Sessions() *Manager {
	return s.sessions
}

// Login validates credentials and issues a session. Unknown email and wrong
// password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			security.CheckAgainstDummy(password)
			return Session{}, ErrInvalidCredentials
		}

		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	err = security.CheckPassword(u.PasswordHash, password)

	if err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return s.issue(u)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a USER account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, Session, error) {
	hash, err := security.HashPassword(in.Password)

	if err != nil {
		return user.User{}, Session{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, user.NewUser{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         user.RoleUser,
	})

	if err != nil {
		return user.User{}, Session{}, err
	}

	sess, err := s.issue(u)
	if err != nil {
		return user.User{}, Session{}, err
	}

	return u, sess, nil
}

// Logout revokes the session's token id when a denylist is configured.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	return s.sessions.Revoke(ctx, claims)
}

// RequestPasswordReset stores a fresh reset token and mails the link. It
// returns nil for unknown emails and for delivery failures, which are only
// logged, so callers cannot tell whether the account exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	raw, err := GenerateResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := expirationFrom(s.now().UTC(), DefaultResetTTLHours)

	err = s.users.SetResetToken(ctx, u.ID, HashResetToken(raw), expiresAt)

	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	err = s.notifier.SendPasswordReset(ctx, notifications.PasswordResetInput{
		Email:     u.Email,
		Name:      u.Name,
		ResetURL:  s.ResetLink(raw),
		ExpiresIn: (DefaultResetTTLHours * time.Hour).String(),
	})

	if err != nil {
		s.log.ErrorContext(ctx, "password reset delivery failed", "user_id", u.ID, "err", err)
	}

	return nil
}

// ResetLink builds {baseUrl}/reset-password?token={hex}.
func (s *Service) ResetLink(raw string) string {
	return s.baseURL + "/reset-password?token=" + url.QueryEscape(raw)
}

// ResetPassword consumes a reset token. The token works at most once.
func (s *Service) ResetPassword(ctx context.Context, raw, newPassword string) error {
	if raw == "" {
		return ErrTokenInvalid
	}

	digest := HashResetToken(raw)

	u, err := s.users.GetByResetToken(ctx, digest)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if isExpiredAt(u.ResetTokenExpiry, s.now()) {
		err = s.users.ClearResetToken(ctx, u.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "clear expired reset token failed", "user_id", u.ID, "err", err)
		}
		return ErrTokenExpired
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.users.CompletePasswordReset(ctx, u.ID, digest, hash)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("complete reset: %w", err)
	}

	return nil
}

// Me reloads the account behind verified claims.
func (s *Service) Me(ctx context.Context, claims *Claims) (user.User, error) {
	if claims == nil {
		return user.User{}, ErrUnauthorized
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrUnauthorized
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Service) issue(u user.User) (Session, error) {
	raw, claims, err := s.sessions.Issue(u)

	if err != nil {
		return Session{}, err
	}

	return Session{Token: raw, Claims: claims}, nil
}
