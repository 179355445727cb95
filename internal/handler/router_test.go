package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/chatline/internal/auth"
	"github.com/hitoshi/chatline/internal/middleware"
	"github.com/hitoshi/chatline/internal/model"
)

// createTestRouter はテスト用の完全なルーターを構築するヘルパー。
func createTestRouter(t *testing.T, modify func(*RouterDeps)) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		SessionFinder: &mockSessionFinder{
			sessions: map[string]*model.Session{
				"valid-session": {
					ID:        "valid-session",
					UserID:    1,
					ExpiresAt: time.Now().Add(time.Hour),
				},
			},
		},
		CORSAllowedOrigin: "*",
		RateLimiter:       rl,
		HealthChecker:     &mockHealthChecker{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
		AuthService: &mockAuthService{
			registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
				return testUser(1, in.Username), nil
			},
		},
		UserService: &mockUserService{
			getProfileFn: func(ctx context.Context, userID int64) (*model.User, error) {
				return testUser(userID, "someone"), nil
			},
		},
		UserFinder:    existingUsers(1),
		Presence:      staticPresence{1},
		MessageLister: &mockMessageLister{},
		HistoryLimit:  100,
		Location:      time.UTC,
	}
	if modify != nil {
		modify(deps)
	}
	return NewRouter(deps)
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{"database reachable", nil, http.StatusOK},
		{"database down", errors.New("connection refused"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := createTestRouter(t, func(d *RouterDeps) {
				d.HealthChecker = &mockHealthChecker{err: tt.pingErr}
			})

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("GET /health status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_Metrics_IsPublic(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Register_IsPublic(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/register?username=alice&email=alice@example.com&password=secret123", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("POST /register status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestRouter_AuthRoutes_AreRateLimitedPerIP(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 2))
	t.Cleanup(rl.Stop)
	router := createTestRouter(t, func(d *RouterDeps) {
		d.RateLimiter = rl
		d.AuthService = &mockAuthService{
			loginFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
				return nil, nil, model.NewInvalidCredentialsError()
			},
		}
	})

	var last int
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/login?email=a@example.com&password=x", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("third POST /login status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestRouter_ProtectedRoutes_RequireSession(t *testing.T) {
	router := createTestRouter(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/messages"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPatch, "/api/users/me"},
		{http.MethodPut, "/api/users/me/password"},
		{http.MethodGet, "/api/users/online"},
		{http.MethodGet, "/api/users/1"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_ProtectedRoutes_WithBearerSession(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer valid-session")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/users/me status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"id":1`) {
		t.Errorf("body = %s, want user 1", w.Body.String())
	}
}

func TestRouter_OnlineRoute_TakesPrecedenceOverUserID(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users/online", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"user_ids":[1]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRouter_WebSocket_UnknownUserWithoutUpgrade_ReturnsNotFound(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/ws/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /ws/99 status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_UnknownRoute_Returns404Or405(t *testing.T) {
	router := createTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// 存在しないルートには404か405が返ること
	if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /unknown status = %d, want 404 or 405", w.Code)
	}
}
