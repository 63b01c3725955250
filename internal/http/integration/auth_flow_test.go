package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/domain/user"
)

func TestRegister_SetsSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "ada@example.com", "password": "supersecret", "name": "Ada",
	}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("got %d body=%s", w.Code, w.Body.String())
	}

	c := sessionCookie(t, w)
	if !c.HttpOnly || !c.Secure || c.Path != "/" || c.MaxAge != 86400 {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("SameSite = %v", c.SameSite)
	}

	var resp struct {
		User struct {
			ID   string    `json:"id"`
			Role user.Role `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.User.Role != user.RoleUser || resp.User.ID == "" {
		t.Fatalf("unexpected user %+v", resp.User)
	}

	dup := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "ada@example.com", "password": "supersecret", "name": "Ada",
	}, nil)
	if dup.Code != http.StatusConflict || decodeError(t, dup).Error.Code != "email_taken" {
		t.Fatalf("duplicate: got %d body=%s", dup.Code, dup.Body.String())
	}
}

func TestRegister_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": "nope", "password": "short"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d", w.Code)
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []struct {
					Field string `json:"field"`
					Rule  string `json:"rule"`
				} `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}

	got := map[string]string{}
	for _, f := range body.Error.Details.Fields {
		got[f.Field] = f.Rule
	}
	want := map[string]string{"email": "email", "password": "min", "name": "required"}
	for field, rule := range want {
		if got[field] != rule {
			t.Fatalf("field %q: got rule %q, all=%v", field, got[field], got)
		}
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "ada@example.com", "correct-horse", user.RoleUser)

	wrongPw := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "nope"}, nil)
	noUser := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "nope"}, nil)

	if wrongPw.Code != http.StatusUnauthorized || noUser.Code != http.StatusUnauthorized {
		t.Fatalf("codes %d / %d", wrongPw.Code, noUser.Code)
	}

	a, b := decodeError(t, wrongPw), decodeError(t, noUser)
	if a.Error.Code != "invalid_credentials" || a.Error.Code != b.Error.Code || a.Error.Message != b.Error.Message {
		t.Fatalf("responses differ: %+v vs %+v", a, b)
	}
	if len(wrongPw.Result().Cookies()) != 0 {
		t.Fatalf("failed login must not set a cookie")
	}
}

func TestLogin_MeAndLogout(t *testing.T) {
	env := newTestEnv(t)
	u := env.seed(t, "ada@example.com", "correct-horse", user.RoleManager)

	cookie := env.login(t, "ada@example.com", "correct-horse")

	me := env.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if me.Code != http.StatusOK {
		t.Fatalf("me: got %d body=%s", me.Code, me.Body.String())
	}

	var resp struct {
		User struct {
			ID    string    `json:"id"`
			Email string    `json:"email"`
			Role  user.Role `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(me.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.User.ID != u.ID || resp.User.Email != u.Email || resp.User.Role != user.RoleManager {
		t.Fatalf("me returned %+v", resp.User)
	}

	fresh := env.do(t, http.MethodGet, "/api/auth/me?fresh=true", nil, cookie)
	if fresh.Code != http.StatusOK || strings.Contains(fresh.Body.String(), "password") {
		t.Fatalf("fresh me: got %d body=%s", fresh.Code, fresh.Body.String())
	}

	out := env.do(t, http.MethodPost, "/api/auth/logout", nil, cookie)
	if out.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d", out.Code)
	}
	if cleared := sessionCookie(t, out); cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("cookie not cleared: %+v", cleared)
	}

	// the old token is on the denylist now
	again := env.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	if again.Code != http.StatusUnauthorized {
		t.Fatalf("replayed token: got %d", again.Code)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "ada@example.com", "old-password", user.RoleUser)

	known := env.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ada@example.com"}, nil)
	unknown := env.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK || known.Body.String() != unknown.Body.String() {
		t.Fatalf("forgot responses differ: %d %s / %d %s", known.Code, known.Body, unknown.Code, unknown.Body)
	}
	if env.notifier.count() != 1 {
		t.Fatalf("expected exactly one reset mail, got %d", env.notifier.count())
	}

	link, err := url.Parse(env.notifier.lastURL(t))
	if err != nil {
		t.Fatal(err)
	}
	if link.Host != "devicewatch.test" || link.Path != "/reset-password" {
		t.Fatalf("unexpected reset link %s", link)
	}
	token := link.Query().Get("token")

	ok := env.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "new-password"}, nil)
	if ok.Code != http.StatusOK {
		t.Fatalf("reset: got %d body=%s", ok.Code, ok.Body.String())
	}

	reuse := env.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "password": "other-password"}, nil)
	if reuse.Code != http.StatusBadRequest || decodeError(t, reuse).Error.Code != "invalid_token" {
		t.Fatalf("reuse: got %d body=%s", reuse.Code, reuse.Body.String())
	}

	env.login(t, "ada@example.com", "new-password")
}

func TestRateLimit_PublicAuth(t *testing.T) {
	env := newTestEnv(t)

	var last int
	for i := 0; i < 11; i++ {
		w := env.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429 after burst", last)
	}
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t)

	var last int
	for i := 0; i < 15; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password", strings.NewReader(`{"email":"ghost@example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		req.RemoteAddr = "203.0.113.9:4321"

		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429 with rotating X-Forwarded-For", last)
	}
}

func TestLogout_StaleCookieIsCleared(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/auth/logout", nil, &http.Cookie{Name: auth.CookieName, Value: "not-a-jwt"})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}

	c := sessionCookie(t, w)
	if c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", c)
	}
	if !c.HttpOnly || c.Path != "/" {
		t.Fatalf("clearing cookie attributes: %+v", c)
	}
}
