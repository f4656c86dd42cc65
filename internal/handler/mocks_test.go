package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/hitoshi/confman/internal/conference"
	"github.com/hitoshi/confman/internal/model"
)

// --- モック定義 ---

type mockConferenceService struct {
	listPublicFn  func(ctx context.Context, caller model.Principal) ([]conference.Summary, error)
	listPendingFn func(ctx context.Context, caller model.Principal) ([]conference.Summary, error)
	getFn         func(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error)
	createFn      func(ctx context.Context, caller model.Principal, in model.CreateConferenceInput) (*conference.Created, error)
	approveFn     func(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error)
	deleteFn      func(ctx context.Context, caller model.Principal, id string) error
	calls         int
}

func (m *mockConferenceService) ListPublic(ctx context.Context, caller model.Principal) ([]conference.Summary, error) {
	m.calls++
	if m.listPublicFn != nil {
		return m.listPublicFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockConferenceService) ListPending(ctx context.Context, caller model.Principal) ([]conference.Summary, error) {
	m.calls++
	if m.listPendingFn != nil {
		return m.listPendingFn(ctx, caller)
	}
	return nil, nil
}

func (m *mockConferenceService) Get(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error) {
	m.calls++
	if m.getFn != nil {
		return m.getFn(ctx, caller, id)
	}
	return nil, model.NewConferenceNotFoundError(id)
}

func (m *mockConferenceService) Create(ctx context.Context, caller model.Principal, in model.CreateConferenceInput) (*conference.Created, error) {
	m.calls++
	if m.createFn != nil {
		return m.createFn(ctx, caller, in)
	}
	return nil, nil
}

func (m *mockConferenceService) Approve(ctx context.Context, caller model.Principal, id string) (*conference.Detail, error) {
	m.calls++
	if m.approveFn != nil {
		return m.approveFn(ctx, caller, id)
	}
	return nil, model.NewConferenceNotFoundError(id)
}

func (m *mockConferenceService) Delete(ctx context.Context, caller model.Principal, id string) error {
	m.calls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, caller, id)
	}
	return nil
}

type mockAuthService struct {
	currentUserFn func(ctx context.Context, caller model.Principal) (*model.User, error)
	logoutFn      func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) CurrentUser(ctx context.Context, caller model.Principal) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, caller)
	}
	return nil, model.NewUnauthenticatedError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

// sessionResolver はセッションIDごとに固定のPrincipalを返すPrincipalResolver。
type sessionResolver map[string]model.Principal

func (s sessionResolver) ResolvePrincipal(ctx context.Context, sessionID string) (model.Principal, error) {
	if p, ok := s[sessionID]; ok {
		return p, nil
	}
	return model.Anonymous{}, nil
}

// テストで使うセッションID
const (
	sessAdmin      = "sess-admin"
	sessVerified   = "sess-verified"
	sessUnverified = "sess-unverified"
)

func testResolver() sessionResolver {
	return sessionResolver{
		sessAdmin:      model.AdminPrincipal{UserID: "admin-1"},
		sessVerified:   model.UserPrincipal{UserID: "user-1", Verified: true},
		sessUnverified: model.UserPrincipal{UserID: "user-2", Verified: false},
	}
}

const testCSRFToken = "csrf-test-token"

// newRequest はセッションCookieと、状態変更メソッドの場合はCSRFトークンを付与したリクエストを作る。
func newRequest(method, path, session, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: session})
	}
	if method != http.MethodGet {
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
		req.Header.Set("X-CSRF-Token", testCSRFToken)
	}
	return req
}
