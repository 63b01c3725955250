package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/geocoder89/devicewatch/internal/auth"
	"github.com/geocoder89/devicewatch/internal/config"
	"github.com/geocoder89/devicewatch/internal/domain/user"
	apphttp "github.com/geocoder89/devicewatch/internal/http"
	"github.com/geocoder89/devicewatch/internal/http/handlers"
	"github.com/geocoder89/devicewatch/internal/notifications"
	"github.com/geocoder89/devicewatch/internal/observability"
	"github.com/geocoder89/devicewatch/internal/realtime"
	"github.com/geocoder89/devicewatch/internal/repo/memory"
	"github.com/geocoder89/devicewatch/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "integration-secret-at-least-32-bytes"

type captureNotifier struct {
	mu   sync.Mutex
	sent []notifications.PasswordResetInput
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, in notifications.PasswordResetInput) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, in)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *captureNotifier) lastURL(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("no reset mail sent")
	}
	return n.sent[len(n.sent)-1].ResetURL
}

type testEnv struct {
	router   *gin.Engine
	repo     *memory.UsersRepo
	notifier *captureNotifier
	hub      *realtime.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := memory.NewUsersRepo()
	sessions, err := auth.NewManager(testSecret, auth.NewMemoryDenylist())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	n := &captureNotifier{}
	svc := auth.NewService(repo, sessions, n, "http://devicewatch.test", log)

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	hub := realtime.NewHub(log, prom)
	t.Cleanup(hub.Close)

	router := apphttp.NewRouter(apphttp.Deps{
		Config:   config.Config{Env: "test"},
		Log:      log,
		Prom:     prom,
		Gatherer: reg,
		Auth:     svc,
		Hub:      hub,
		Checks:   map[string]handlers.Pinger{"users": repo.Ping},
	})

	return &testEnv{router: router, repo: repo, notifier: n, hub: hub}
}

func (e *testEnv) seed(t *testing.T, email, password string, role user.Role) user.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	u, err := e.repo.Create(context.Background(), user.NewUser{Email: email, PasswordHash: hash, Name: "Seeded", Role: role})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: got %d body=%s", w.Code, w.Body.String())
	}
	return sessionCookie(t, w)
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", auth.CookieName)
	return nil
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()

	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return body
}
