package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/paygate/internal/middleware"
	"github.com/hitoshi/paygate/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	beginLoginFn    func(state string) string
	completeLoginFn func(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error)
	logoutFn        func(ctx context.Context, w http.ResponseWriter, session *model.Session) error
}

func (m *mockAuthService) BeginLogin(state string) string {
	if m.beginLoginFn != nil {
		return m.beginLoginFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (m *mockAuthService) CompleteLogin(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error) {
	if m.completeLoginFn != nil {
		return m.completeLoginFn(ctx, w, current, code)
	}
	return &model.Session{ID: "new", Identity: &model.Identity{DisplayName: "Alice"}}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, w http.ResponseWriter, session *model.Session) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, w, session)
	}
	return nil
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

// --- ヘルパー ---

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	return NewAuthHandler(svc, AuthHandlerConfig{
		LandingURL: "/",
		ProfileURL: "/profile",
	}, nil)
}

// withSession はセッションミドルウェア通過後のリクエストを再現する。
func withSession(req *http.Request, s *model.Session) *http.Request {
	return req.WithContext(middleware.ContextWithSession(req.Context(), s))
}

func callbackRequest(query, cookieState string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/login-callback?"+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookieState})
	}
	return withSession(req, &model.Session{ID: "anon", IsNew: true})
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- LoginStart ---

func TestAuthHandler_LoginStart_RedirectsToProviderWithState(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		beginLoginFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.LoginStart(w, httptest.NewRequest(http.MethodGet, "/auth/login-start", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); !strings.HasPrefix(loc, "https://accounts.google.com/") {
		t.Errorf("Location = %q", loc)
	}

	stateCookie := findCookie(resp, oauthStateCookie)
	if stateCookie == nil {
		t.Fatal("expected oauth_state cookie")
	}
	if stateCookie.Value != gotState || len(gotState) != 32 {
		t.Errorf("state cookie = %q, state = %q", stateCookie.Value, gotState)
	}
	if !stateCookie.HttpOnly {
		t.Error("oauth_state cookie should be HttpOnly")
	}
}

// --- LoginCallback ---

func TestAuthHandler_LoginCallback_Success_RedirectsToProfile(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		completeLoginFn: func(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error) {
			gotCode = code
			return &model.Session{ID: "new"}, nil
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.LoginCallback(w, callbackRequest("code=auth-code&state=s1", "s1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/profile" {
		t.Errorf("Location = %q, want /profile", loc)
	}
	if gotCode != "auth-code" {
		t.Errorf("code = %q, want auth-code", gotCode)
	}
	if c := findCookie(resp, oauthStateCookie); c == nil || c.MaxAge >= 0 {
		t.Error("oauth_state cookie should be cleared")
	}
}

func TestAuthHandler_LoginCallback_FailuresRedirectToLanding(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		cookieState string
		loginErr    error
	}{
		{"access denied", "error=access_denied&state=s1", "s1", nil},
		{"state mismatch", "code=c&state=other", "s1", nil},
		{"missing state cookie", "code=c&state=s1", "", nil},
		{"missing state param", "code=c", "s1", nil},
		{"exchange failure", "code=c&state=s1", "s1", model.ErrProviderExchangeFailed},
		{"store failure", "code=c&state=s1", "s1", model.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completeCalled := false
			svc := &mockAuthService{
				completeLoginFn: func(ctx context.Context, w http.ResponseWriter, current *model.Session, code string) (*model.Session, error) {
					completeCalled = true
					if tt.loginErr != nil {
						return nil, tt.loginErr
					}
					return &model.Session{}, nil
				},
			}
			h := newTestAuthHandler(svc)

			w := httptest.NewRecorder()
			h.LoginCallback(w, callbackRequest(tt.query, tt.cookieState))

			resp := w.Result()
			if resp.StatusCode != http.StatusFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
			}
			if loc := resp.Header.Get("Location"); loc != "/" {
				t.Errorf("Location = %q, want /", loc)
			}
			if tt.loginErr == nil && completeCalled {
				t.Error("CompleteLogin should not be called")
			}
			if strings.Contains(w.Body.String(), "access_denied") {
				t.Error("failure detail must not be leaked to the browser")
			}
		})
	}
}

// --- Logout ---

func TestAuthHandler_Logout_RedirectsToLanding(t *testing.T) {
	var destroyed *model.Session
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
			destroyed = s
			return nil
		},
	}
	h := newTestAuthHandler(svc)

	sess := &model.Session{ID: "s1", Identity: &model.Identity{DisplayName: "Alice"}}
	w := httptest.NewRecorder()
	h.Logout(w, withSession(httptest.NewRequest(http.MethodGet, "/logout", nil), sess))

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if destroyed != sess {
		t.Error("Logout should receive the current session")
	}
}

func TestAuthHandler_Logout_StoreError_Returns500JSON(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, w http.ResponseWriter, s *model.Session) error {
			return errors.New("store down")
		},
	}
	h := newTestAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Logout(w, withSession(httptest.NewRequest(http.MethodGet, "/logout", nil), &model.Session{ID: "s1"}))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), model.MsgLogoutFailed) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGenerateState_Unique(t *testing.T) {
	a, err := generateState()
	if err != nil {
		t.Fatalf("generateState() error = %v", err)
	}
	b, _ := generateState()
	if a == b {
		t.Error("states should be unique")
	}
}
