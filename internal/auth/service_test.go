package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/devicewatch/internal/domain/user"
	"github.com/geocoder89/devicewatch/internal/notifications"
	"github.com/geocoder89/devicewatch/internal/repo/memory"
	"github.com/geocoder89/devicewatch/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notifications.PasswordResetInput
	err  error
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, in notifications.PasswordResetInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, in)
	return n.err
}

func (n *captureNotifier) last(t *testing.T) notifications.PasswordResetInput {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

func newTestService(t *testing.T) (*Service, *memory.UsersRepo, *captureNotifier) {
	t.Helper()

	repo := memory.NewUsersRepo()
	m, err := NewManager(testSecret, NewMemoryDenylist())
	require.NoError(t, err)

	n := &captureNotifier{}
	svc := NewService(repo, m, n, "http://localhost:8080", slog.New(slog.NewTextHandler(io.Discard, nil)))

	return svc, repo, n
}

func seedUser(t *testing.T, repo *memory.UsersRepo, email, password string, role user.Role) user.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	require.NoError(t, err)

	u, err := repo.Create(context.Background(), user.NewUser{Email: email, PasswordHash: hash, Name: "Test", Role: role})
	require.NoError(t, err)
	return u
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/reset-password", u.Path)
	return u.Query().Get("token")
}

func TestService_LoginSuccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "ada@example.com", "correct-horse", user.RoleAdmin)

	sess, err := svc.Login(context.Background(), "ada@example.com", "correct-horse")
	require.NoError(t, err)

	claims, err := svc.Sessions().Verify(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, user.RoleAdmin, claims.Role)
}

func TestService_LoginFailuresAreUniform(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedUser(t, repo, "ada@example.com", "correct-horse", user.RoleUser)

	_, errWrongPw := svc.Login(context.Background(), "ada@example.com", "wrong")
	_, errNoUser := svc.Login(context.Background(), "nobody@example.com", "wrong")

	assert.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	assert.ErrorIs(t, errNoUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())
}

func TestService_Register(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, sess, err := svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "long-enough", Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.Equal(t, u.ID, sess.Claims.UserID)

	_, _, err = svc.Register(ctx, RegisterInput{Email: "new@example.com", Password: "long-enough", Name: "Dup"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	_, err = svc.Login(ctx, "new@example.com", "long-enough")
	assert.NoError(t, err)
}

func TestService_LogoutRevokesSession(t *testing.T) {
	svc, repo, _ := newTestService(t)
	seedUser(t, repo, "ada@example.com", "correct-horse", user.RoleUser)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.Claims))

	_, err = svc.Sessions().Verify(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestService_ForgotPasswordUnknownEmail(t *testing.T) {
	svc, _, n := newTestService(t)

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "ghost@example.com"))
	assert.Empty(t, n.sent)
}

func TestService_ForgotPasswordDeliveryFailureIsHidden(t *testing.T) {
	svc, repo, n := newTestService(t)
	seedUser(t, repo, "ada@example.com", "correct-horse", user.RoleUser)
	n.err = errors.New("smtp down")

	assert.NoError(t, svc.RequestPasswordReset(context.Background(), "ada@example.com"))
}

func TestService_ResetPasswordIsSingleUse(t *testing.T) {
	svc, repo, n := newTestService(t)
	u := seedUser(t, repo, "ada@example.com", "old-password", user.RoleUser)
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))

	sent := n.last(t)
	assert.Equal(t, "ada@example.com", sent.Email)
	assert.True(t, strings.HasPrefix(sent.ResetURL, "http://localhost:8080/reset-password?token="))

	raw := tokenFromLink(t, sent.ResetURL)
	assert.Len(t, raw, 64)

	stored, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResetToken)
	assert.NotEqual(t, raw, *stored.ResetToken, "raw token must not be persisted")
	assert.WithinDuration(t, time.Now().Add(time.Hour), *stored.ResetTokenExpiry, time.Minute)

	require.NoError(t, svc.ResetPassword(ctx, raw, "new-password"))

	_, err = svc.Login(ctx, "ada@example.com", "new-password")
	assert.NoError(t, err)
	_, err = svc.Login(ctx, "ada@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ResetPassword(ctx, raw, "another-password")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	stored, _ = repo.GetByID(ctx, u.ID)
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiry)
}

func TestService_ResetPasswordExpired(t *testing.T) {
	svc, repo, n := newTestService(t)
	u := seedUser(t, repo, "ada@example.com", "old-password", user.RoleUser)
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))
	raw := tokenFromLink(t, n.last(t).ResetURL)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	assert.ErrorIs(t, svc.ResetPassword(ctx, raw, "new-password"), ErrTokenExpired)

	stored, _ := repo.GetByID(ctx, u.ID)
	assert.Nil(t, stored.ResetToken)

	_, err := svc.Login(ctx, "ada@example.com", "old-password")
	assert.NoError(t, err)
}

func TestService_ResetPasswordUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	assert.ErrorIs(t, svc.ResetPassword(context.Background(), "", "x"), ErrTokenInvalid)
	assert.ErrorIs(t, svc.ResetPassword(context.Background(), strings.Repeat("a", 64), "x"), ErrTokenInvalid)
}

func TestService_NewRequestReplacesOldToken(t *testing.T) {
	svc, repo, n := newTestService(t)
	seedUser(t, repo, "ada@example.com", "old-password", user.RoleUser)
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))
	first := tokenFromLink(t, n.last(t).ResetURL)
	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))
	second := tokenFromLink(t, n.last(t).ResetURL)

	assert.ErrorIs(t, svc.ResetPassword(ctx, first, "new-password"), ErrTokenInvalid)
	assert.NoError(t, svc.ResetPassword(ctx, second, "new-password"))
}

func TestService_Me(t *testing.T) {
	svc, repo, _ := newTestService(t)
	u := seedUser(t, repo, "ada@example.com", "pw-12345678", user.RoleManager)

	got, err := svc.Me(context.Background(), &Claims{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.Me(context.Background(), &Claims{UserID: "missing"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Me(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
